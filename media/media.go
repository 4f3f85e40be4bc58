// Package media resolves the media reference attached to a changelog
// version into a URL that can be displayed.
package media

import (
	"context"
	"errors"
	"time"
)

// DefaultTimeout bounds a single resolution.
const DefaultTimeout = 5 * time.Second

var (
	// ErrMediaNotFound is returned when the referenced page has no usable
	// image or video.
	ErrMediaNotFound = errors.New("media not found")

	// ErrInvalidReference is returned for references that cannot be turned
	// into an http(s) URL.
	ErrInvalidReference = errors.New("invalid media reference")
)

// Resolver turns a media reference into a concrete URL.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, ref string) (string, error)

func (f ResolverFunc) Resolve(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}
