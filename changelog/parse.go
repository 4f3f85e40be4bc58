package changelog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ParseError reports a changelog document that is not valid JSON or does
// not have the expected shape.
type ParseError struct {
	Field   string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	msg := "changelog"
	if e.Field != "" {
		msg += ": " + e.Field
	}
	msg += ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// document mirrors the wire format. Pointers distinguish a missing field
// from an empty one.
type document struct {
	Current  *string          `json:"current"`
	Versions *orderedVersions `json:"versions"`
}

// orderedVersions decodes the versions object while keeping key order,
// which a Go map would lose.
type orderedVersions []Entry

func (v *orderedVersions) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return &ParseError{Field: "versions", Message: "invalid JSON", Err: err}
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return &ParseError{Field: "versions", Message: "must be an object"}
	}

	seen := make(map[string]bool)
	var out orderedVersions
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return &ParseError{Field: "versions", Message: "invalid JSON", Err: err}
		}
		label, _ := tok.(string)
		if seen[label] {
			return &ParseError{Field: "versions." + label, Message: "duplicate version"}
		}
		seen[label] = true

		var ver Version
		if err := dec.Decode(&ver); err != nil {
			return &ParseError{Field: "versions." + label, Message: "invalid version", Err: err}
		}
		out = append(out, Entry{Label: label, Version: ver})
	}
	if _, err := dec.Token(); err != nil {
		return &ParseError{Field: "versions", Message: "invalid JSON", Err: err}
	}

	if out == nil {
		out = orderedVersions{}
	}
	*v = out
	return nil
}

// Parse decodes a changelog document and validates its shape: current and
// versions are required, and current must name one of the versions unless
// there are no versions at all.
func Parse(data []byte) (*Changelog, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			return nil, perr
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, &ParseError{
				Field:   typeErr.Field,
				Message: fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value),
				Err:     err,
			}
		}
		return nil, &ParseError{Message: "invalid JSON", Err: err}
	}

	if doc.Current == nil || *doc.Current == "" {
		return nil, &ParseError{Field: "current", Message: "is required"}
	}
	if doc.Versions == nil {
		return nil, &ParseError{Field: "versions", Message: "is required"}
	}

	cl := &Changelog{
		Current:  *doc.Current,
		Versions: []Entry(*doc.Versions),
	}
	if _, ok := cl.Lookup(cl.Current); !ok && len(cl.Versions) > 0 {
		return nil, &ParseError{
			Field:   "current",
			Message: fmt.Sprintf("version %q not found in versions", cl.Current),
		}
	}
	return cl, nil
}

// Load reads the changelog at path. An empty path loads the embedded
// changelog.
func Load(path string) ([]byte, error) {
	if path == "" {
		return Embedded(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read changelog %s: %w", path, err)
	}
	return data, nil
}
