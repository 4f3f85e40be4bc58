// Package widget implements the changelog widget: it selects versions from a
// changelog document, resolves each version's media concurrently, and
// projects the result into a render tree once every resolution has settled.
package widget

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/webframp/relnotes/changelog"
	"github.com/webframp/relnotes/media"
	"github.com/webframp/relnotes/telemetry"
)

// State is the widget's loading state. It moves from Loading to Ready once.
type State int

const (
	Loading State = iota
	Ready
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// PreparedVersion is a selected version with its media resolved. MediaURL
// is empty when the version has no media or its media could not be
// resolved. Index is the version's position in the selection.
type PreparedVersion struct {
	Source   changelog.Version
	Label    string
	MediaURL string
	Index    int
}

// HasMedia reports whether a media element should be shown.
func (p PreparedVersion) HasMedia() bool {
	return p.MediaURL != ""
}

// Options configures a Widget.
type Options struct {
	// ListAll shows every version instead of only the current one.
	ListAll bool

	// Resolver resolves media references. Without one, versions are shown
	// without media.
	Resolver media.Resolver

	// MediaTimeout bounds each resolution. Defaults to media.DefaultTimeout.
	MediaTimeout time.Duration

	// MaxParallel limits concurrent resolutions. Zero means no limit.
	MaxParallel int

	// DocumentOrder makes Snapshot return versions in selection order
	// instead of the order their resolution finished.
	DocumentOrder bool

	// FeatureURLTemplate is prefixed to a change ID to build its link.
	FeatureURLTemplate string

	// OnReady is called once, from its own goroutine, after every
	// resolution has settled and before Done is closed. It must not call
	// Close or Wait.
	OnReady func(*Widget)
}

// Widget is one instance of the changelog widget.
type Widget struct {
	opts      Options
	changelog *changelog.Changelog
	cancel    context.CancelFunc
	done      chan struct{}

	mu       sync.Mutex
	state    State
	prepared []PreparedVersion
}

// New parses doc, selects the versions to show and starts resolving their
// media in the background. It returns a *changelog.ParseError if doc is
// malformed. Resolution runs until it finishes, ctx is cancelled, or Close is
// called.
func New(ctx context.Context, doc []byte, opts Options) (*Widget, error) {
	cl, err := changelog.Parse(doc)
	if err != nil {
		return nil, err
	}
	if opts.MediaTimeout <= 0 {
		opts.MediaTimeout = media.DefaultTimeout
	}

	ctx, cancel := context.WithCancel(ctx)
	w := &Widget{
		opts:      opts,
		changelog: cl,
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     Loading,
	}

	selections := cl.Select(opts.ListAll)
	ctx, span := telemetry.StartSpan(ctx, "widget.build",
		attribute.Bool("widget.list_all", opts.ListAll),
		attribute.Int("widget.versions", len(selections)),
	)
	go w.run(ctx, span, selections)
	return w, nil
}

func (w *Widget) run(ctx context.Context, span trace.Span, selections []changelog.Selection) {
	defer span.End()
	start := time.Now()

	g := new(errgroup.Group)
	if w.opts.MaxParallel > 0 {
		g.SetLimit(w.opts.MaxParallel)
	}
	for _, sel := range selections {
		g.Go(func() error {
			w.add(Prepare(ctx, w.opts.Resolver, sel, w.opts.MediaTimeout))
			return nil
		})
	}
	_ = g.Wait()

	w.mu.Lock()
	w.state = Ready
	n := len(w.prepared)
	w.mu.Unlock()

	slog.Info("changelog widget ready",
		"versions", n,
		"list_all", w.opts.ListAll,
		"duration", time.Since(start),
	)
	if w.opts.OnReady != nil {
		w.opts.OnReady(w)
	}
	close(w.done)
}

func (w *Widget) add(p PreparedVersion) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prepared = append(w.prepared, p)
}

// Changelog returns the parsed changelog.
func (w *Widget) Changelog() *changelog.Changelog {
	return w.changelog
}

// State returns the current loading state.
func (w *Widget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Snapshot returns the state and a copy of the versions prepared so far.
func (w *Widget) Snapshot() (State, []PreparedVersion) {
	w.mu.Lock()
	state := w.state
	out := slices.Clone(w.prepared)
	w.mu.Unlock()

	if w.opts.DocumentOrder {
		slices.SortStableFunc(out, func(a, b PreparedVersion) int {
			return a.Index - b.Index
		})
	}
	return state, out
}

// Render projects the current snapshot into a render tree.
func (w *Widget) Render() *Node {
	state, versions := w.Snapshot()
	return Project(state, versions, w.opts.FeatureURLTemplate)
}

// Done is closed once the widget is Ready and OnReady has returned.
func (w *Widget) Done() <-chan struct{} {
	return w.done
}

// Wait blocks until the widget is Ready or ctx is done.
func (w *Widget) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels outstanding resolutions and waits for them to settle. The
// widget is Ready once Close returns.
func (w *Widget) Close() error {
	w.cancel()
	<-w.done
	return nil
}
