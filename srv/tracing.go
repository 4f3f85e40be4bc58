package srv

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/webframp/relnotes/widget"
)

// AddChangelogAttributes annotates the request span with what was served.
func AddChangelogAttributes(r *http.Request, listAll bool, state widget.State, versions int) {
	span := trace.SpanFromContext(r.Context())
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(
		attribute.Bool("changelog.list_all", listAll),
		attribute.String("changelog.state", state.String()),
		attribute.Int("changelog.versions", versions),
	)
}

// WantsJSON checks if the client prefers JSON response based on Accept header.
// Returns false (plain text) by default for chat bot compatibility.
func WantsJSON(r *http.Request) bool {
	// Be lenient: accept application/json anywhere in the header
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// ChangelogResponse is the JSON body of GET /api/changelog.
type ChangelogResponse struct {
	Current  string               `json:"current"`
	State    string               `json:"state"`
	Versions []widget.VersionView `json:"versions"`
}

// WriteJSON writes v as a JSON response.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteText writes a plain text response.
func WriteText(w http.ResponseWriter, status int, format string, args ...any) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, format, args...)
}
