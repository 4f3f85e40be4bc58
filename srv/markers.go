package srv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"
)

const (
	MarkerTypeDeploy = "deploy"

	honeycombAPI = "https://api.honeycomb.io"
)

// Build-time variables (set via -ldflags)
var (
	Version   = "dev"
	CommitSHA = "unknown"
)

// Marker is a Honeycomb marker.
type Marker struct {
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time,omitempty"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	URL       string `json:"url,omitempty"`
}

// MarkerClient posts markers to the Honeycomb Markers API.
type MarkerClient struct {
	apiKey  string
	apiBase string
	dataset string
	client  *http.Client
}

// NewMarkerClient creates a marker client from environment variables.
// Returns nil if HONEYCOMB_API_KEY is not set.
func NewMarkerClient() *MarkerClient {
	apiKey := os.Getenv("HONEYCOMB_API_KEY")
	if apiKey == "" {
		return nil
	}

	dataset := os.Getenv("OTEL_SERVICE_NAME")
	if dataset == "" {
		dataset = "relnotes"
	}

	return &MarkerClient{
		apiKey:  apiKey,
		apiBase: honeycombAPI,
		dataset: dataset,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// CreateMarker sends a marker to Honeycomb. Failures are logged, not
// returned: markers are best effort.
func (mc *MarkerClient) CreateMarker(ctx context.Context, m Marker) {
	if mc == nil {
		return
	}
	if m.StartTime == 0 {
		m.StartTime = time.Now().Unix()
	}

	body, err := json.Marshal(m)
	if err != nil {
		slog.Error("marshal marker", "error", err)
		return
	}

	url := fmt.Sprintf("%s/1/markers/%s", mc.apiBase, mc.dataset)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		slog.Error("create marker request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Honeycomb-Team", mc.apiKey)

	resp, err := mc.client.Do(req)
	if err != nil {
		slog.Error("send marker", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		slog.Error("marker API error", "status", resp.StatusCode, "type", m.Type, "message", m.Message)
		return
	}
	slog.Info("marker created", "type", m.Type, "message", m.Message)
}

// CreateDeployMarker marks a deploy with the build version and the
// changelog's current version.
func (mc *MarkerClient) CreateDeployMarker(ctx context.Context, current string) {
	if mc == nil {
		return
	}

	message := fmt.Sprintf("Deploy %s", Version)
	if CommitSHA != "unknown" && CommitSHA != "" {
		message = fmt.Sprintf("Deploy %s (%s)", Version, CommitSHA[:min(7, len(CommitSHA))])
	}
	if current != "" {
		message += ", changelog " + current
	}

	m := Marker{Message: message, Type: MarkerTypeDeploy}
	if CommitSHA != "unknown" && CommitSHA != "" {
		m.URL = fmt.Sprintf("https://github.com/webframp/relnotes/commit/%s", CommitSHA)
	}
	mc.CreateMarker(ctx, m)
}
