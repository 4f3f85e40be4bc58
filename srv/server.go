package srv

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/webframp/relnotes/changelog"
	"github.com/webframp/relnotes/media"
	"github.com/webframp/relnotes/widget"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// loadingRefresh is how often the page reloads while media is resolving.
const loadingRefresh = 1

type Server struct {
	Config     Config
	Hostname   string
	APILimiter *RateLimiter

	doc       []byte
	docFixed  bool // doc came from WithChangelog and is never reloaded
	resolver  media.Resolver
	templates *template.Template
	stop      context.CancelFunc
	loops     sync.WaitGroup

	mu      sync.RWMutex
	current *widget.Widget // current version only
	all     *widget.Widget // every version

	httpServer *http.Server
}

type pageData struct {
	Hostname string
	Now      string
	Current  string
	ListAll  bool
	Loading  bool
	Refresh  int
	Widget   template.HTML
}

// Option customizes a Server.
type Option func(*Server)

// WithResolver replaces the page resolver built from the config. It is
// still wrapped in the media cache.
func WithResolver(r media.Resolver) Option {
	return func(s *Server) { s.resolver = r }
}

// WithChangelog serves doc instead of reading Config.ChangelogPath.
func WithChangelog(doc []byte) Option {
	return func(s *Server) { s.doc = doc }
}

// New builds both widgets and starts resolving their media. A malformed
// changelog is returned as a *changelog.ParseError. With a positive
// Config.RefreshInterval the widgets are rebuilt on that schedule.
func New(cfg Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	srv := &Server{
		Config:     cfg,
		Hostname:   cfg.Hostname,
		APILimiter: NewRateLimiter(ctx, cfg.APIRateLimit, cfg.APIRateInterval, cfg.APIRateBurst),
		stop:       cancel,
	}
	for _, opt := range opts {
		opt(srv)
	}

	if err := srv.setUp(ctx); err != nil {
		srv.Close()
		return nil, err
	}
	if cfg.RefreshInterval > 0 {
		srv.loops.Add(1)
		go srv.refreshLoop(ctx, cfg.RefreshInterval)
	}
	return srv, nil
}

func (s *Server) setUp(ctx context.Context) error {
	s.docFixed = s.doc != nil
	doc, err := s.loadChangelog()
	if err != nil {
		return err
	}
	resolver := s.resolver
	if resolver == nil {
		page, err := media.NewPageResolver(s.Config.MediaBaseURL, media.WithRequestTimeout(s.Config.MediaTimeout))
		if err != nil {
			return fmt.Errorf("create media resolver: %w", err)
		}
		resolver = page
	}
	s.resolver = media.NewCached(resolver, s.Config.MediaCacheTTL, media.WithLookupTimeout(s.Config.MediaTimeout))
	if err := s.loadTemplates(); err != nil {
		return err
	}

	current, all, err := s.build(ctx, doc)
	if err != nil {
		return err
	}
	s.current, s.all = current, all
	return nil
}

func (s *Server) loadChangelog() ([]byte, error) {
	if s.docFixed {
		return s.doc, nil
	}
	doc, err := changelog.Load(s.Config.ChangelogPath)
	if err != nil {
		return nil, fmt.Errorf("load changelog: %w", err)
	}
	return doc, nil
}

// build starts a widget pair over doc.
func (s *Server) build(ctx context.Context, doc []byte) (current, all *widget.Widget, err error) {
	if current, err = s.newWidget(ctx, doc, false); err != nil {
		return nil, nil, err
	}
	if all, err = s.newWidget(ctx, doc, true); err != nil {
		current.Close()
		return nil, nil, err
	}
	return current, all, nil
}

func (s *Server) refreshLoop(ctx context.Context, every time.Duration) {
	defer s.loops.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.refresh(ctx); err != nil && ctx.Err() == nil {
				slog.Error("refresh changelog", "error", err)
			}
		}
	}
}

// refresh reloads the changelog and swaps in a new widget pair once it is
// ready, so pages never fall back to Loading. On error the served pair is
// kept.
func (s *Server) refresh(ctx context.Context) error {
	doc, err := s.loadChangelog()
	if err != nil {
		return err
	}
	current, all, err := s.build(ctx, doc)
	if err != nil {
		return err
	}
	if err := current.Wait(ctx); err != nil {
		current.Close()
		all.Close()
		return err
	}
	if err := all.Wait(ctx); err != nil {
		current.Close()
		all.Close()
		return err
	}

	s.mu.Lock()
	oldCurrent, oldAll := s.current, s.all
	s.current, s.all = current, all
	s.mu.Unlock()

	oldCurrent.Close()
	oldAll.Close()
	slog.Info("changelog refreshed", "current", current.Changelog().Current)
	return nil
}

// widgets returns the pair currently served.
func (s *Server) widgets() (current, all *widget.Widget) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.all
}

func (s *Server) newWidget(ctx context.Context, doc []byte, listAll bool) (*widget.Widget, error) {
	return widget.New(ctx, doc, widget.Options{
		ListAll:            listAll,
		Resolver:           s.resolver,
		MediaTimeout:       s.Config.MediaTimeout,
		MaxParallel:        s.Config.MediaMaxParallel,
		DocumentOrder:      s.Config.DocumentOrder,
		FeatureURLTemplate: s.Config.FeatureURLTemplate,
		OnReady: func(w *widget.Widget) {
			_, versions := w.Snapshot()
			slog.Info("changelog ready", "list_all", listAll, "versions", len(versions))
		},
	})
}

// widgetFor picks the widget for the ?all query parameter.
func (s *Server) widgetFor(r *http.Request) (*widget.Widget, bool) {
	current, all := s.widgets()
	switch strings.ToLower(r.URL.Query().Get("all")) {
	case "1", "true", "yes":
		return all, true
	}
	return current, false
}

// Current is the changelog's current version label.
func (s *Server) Current() string {
	current, _ := s.widgets()
	return current.Changelog().Current
}

// Wait blocks until both widgets are ready or ctx is done.
func (s *Server) Wait(ctx context.Context) error {
	current, all := s.widgets()
	if err := current.Wait(ctx); err != nil {
		return err
	}
	return all.Wait(ctx)
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	current, all := s.widgets()
	if current.State() != widget.Ready || all.State() != widget.Ready {
		WriteText(w, http.StatusServiceUnavailable, "loading\n")
		return
	}
	WriteText(w, http.StatusOK, "ok\n")
}

func (s *Server) HandleChangelog(w http.ResponseWriter, r *http.Request) {
	wg, listAll := s.widgetFor(r)
	state, versions := wg.Snapshot()
	AddChangelogAttributes(r, listAll, state, len(versions))

	body, err := widget.HTML(widget.Project(state, versions, s.Config.FeatureURLTemplate))
	if err != nil {
		slog.Error("render changelog", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	data := pageData{
		Hostname: s.Hostname,
		Now:      time.Now().Format(time.RFC3339),
		Current:  wg.Changelog().Current,
		ListAll:  listAll,
		Loading:  state == widget.Loading,
		Refresh:  loadingRefresh,
		Widget:   body,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.renderTemplate(w, "changelog.html", data); err != nil {
		slog.Error("render template", "error", err)
	}
}

func (s *Server) HandleAPIChangelog(w http.ResponseWriter, r *http.Request) {
	wg, listAll := s.widgetFor(r)
	state, versions := wg.Snapshot()
	AddChangelogAttributes(r, listAll, state, len(versions))

	if bot := GetBotChannel(r); bot != nil {
		AddBotAttributes(r, bot)
		if state == widget.Loading {
			WriteText(w, http.StatusOK, "%s", widget.LoadingMessage)
			return
		}
		if len(versions) == 0 {
			WriteText(w, http.StatusOK, "%s", widget.EmptyMessage)
			return
		}
		WriteText(w, http.StatusOK, "%s", BotSummary(versions, MaxBotMessageLen))
		return
	}

	if WantsJSON(r) {
		WriteJSON(w, http.StatusOK, ChangelogResponse{
			Current:  wg.Changelog().Current,
			State:    state.String(),
			Versions: widget.Views(versions, s.Config.FeatureURLTemplate),
		})
		return
	}

	var b strings.Builder
	tree := widget.Project(state, versions, s.Config.FeatureURLTemplate)
	if err := widget.RenderText(&b, tree, widget.PlainTextStyle()); err != nil {
		slog.Error("render changelog text", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	WriteText(w, http.StatusOK, "%s", b.String())
}

func (s *Server) loadTemplates() error {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}
	s.templates = tmpl
	slog.Info("templates loaded", "count", len(tmpl.Templates()))
	return nil
}

func (s *Server) renderTemplate(w http.ResponseWriter, name string, data any) error {
	if s.templates.Lookup(name) == nil {
		return fmt.Errorf("template %q not found", name)
	}
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		return fmt.Errorf("execute template %q: %w", name, err)
	}
	return nil
}

// Handler returns the full middleware-wrapped route table.
func (s *Server) Handler() http.Handler {
	static, _ := fs.Sub(staticFS, "static")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/changelog", http.StatusFound)
	})
	mux.HandleFunc("GET /changelog", s.HandleChangelog)
	mux.HandleFunc("GET /health", s.HandleHealth)
	mux.Handle("/static/", http.StripPrefix("/static/", StaticFileServer(static)))

	// API routes with rate limiting
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /api/changelog", s.HandleAPIChangelog)
	apiMux.HandleFunc("GET /api/openapi.json", s.HandleAPISpec)
	apiMux.HandleFunc("GET /api/{$}", s.HandleAPIDocs)
	mux.Handle("/api/", s.APILimiter.Middleware(apiMux))

	return otelhttp.NewHandler(RequestLogger(SecurityHeaders(Gzip(LimitRequestBody(mux)))), "relnotes")
}

func (s *Server) Serve(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("starting server", "addr", addr, "current", s.Current())
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close stops the refresh loop, media resolution and the rate limiter's
// cleanup loop.
func (s *Server) Close() {
	s.stop()
	s.loops.Wait()

	current, all := s.widgets()
	if current != nil {
		current.Close()
	}
	if all != nil {
		all.Close()
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.Close()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
