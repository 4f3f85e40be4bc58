package widget

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/webframp/relnotes/changelog"
	"github.com/webframp/relnotes/media"
	"github.com/webframp/relnotes/telemetry"
)

type resolution struct {
	url string
	err error
}

// Prepare resolves the media of a selected version. It never fails: a
// resolution error or timeout is logged and the version is returned without
// media. The resolver is not called when the version has no media.
func Prepare(ctx context.Context, r media.Resolver, sel changelog.Selection, timeout time.Duration) PreparedVersion {
	pv := PreparedVersion{
		Source: sel.Version,
		Label:  sel.Label,
		Index:  sel.Index,
	}

	ref := sel.Version.Info.Media
	if ref == "" {
		return pv
	}
	if r == nil {
		slog.Debug("no media resolver configured", "version", sel.Label, "media", ref)
		return pv
	}
	if timeout <= 0 {
		timeout = media.DefaultTimeout
	}

	ctx, span := telemetry.StartSpan(ctx, "media.resolve",
		attribute.String("changelog.version", sel.Label),
		attribute.String("media.reference", ref),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// The resolver runs on its own goroutine so a resolver that ignores its
	// context still cannot hold the version past the deadline.
	ch := make(chan resolution, 1)
	go func() {
		u, err := r.Resolve(ctx, ref)
		ch <- resolution{url: u, err: err}
	}()

	var res resolution
	select {
	case res = <-ch:
	case <-ctx.Done():
		res.err = ctx.Err()
	}

	if res.err == nil && res.url == "" {
		res.err = media.ErrMediaNotFound
	}
	if res.err != nil {
		slog.Warn("failed to resolve media", "version", sel.Label, "media", ref, "error", res.err)
		telemetry.RecordTolerated(span, res.err)
		return pv
	}

	span.SetAttributes(attribute.String("media.url", res.url))
	pv.MediaURL = res.url
	return pv
}
