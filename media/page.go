package media

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/webframp/relnotes/telemetry"
)

const (
	defaultUserAgent = "relnotes-media/1.0 (+https://github.com/webframp/relnotes)"
	maxPageSize      = 2 * 1024 * 1024
)

// metaSelectors are tried in order; video wins over a still image.
var metaSelectors = []string{
	`meta[property="og:video:secure_url"]`,
	`meta[property="og:video:url"]`,
	`meta[property="og:video"]`,
	`meta[property="og:image:secure_url"]`,
	`meta[property="og:image"]`,
	`meta[name="twitter:image"]`,
	`meta[property="twitter:image"]`,
}

var elementSelectors = []string{
	"video source[src]",
	"video[src]",
	"img[src]",
}

// PageResolver resolves a reference by fetching it. A reference to an image
// or video resolves to itself; a reference to an HTML page resolves to the
// media the page advertises.
type PageResolver struct {
	baseURL        *url.URL
	userAgent      string
	transport      http.RoundTripper
	requestTimeout time.Duration
}

// PageOption configures a PageResolver.
type PageOption func(*PageResolver)

// WithTransport sets the HTTP transport used for fetches. The transport is
// wrapped for tracing.
func WithTransport(rt http.RoundTripper) PageOption {
	return func(p *PageResolver) {
		if rt != nil {
			p.transport = otelhttp.NewTransport(rt)
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) PageOption {
	return func(p *PageResolver) {
		if ua != "" {
			p.userAgent = ua
		}
	}
}

// WithRequestTimeout bounds each fetch when the context has no deadline.
func WithRequestTimeout(d time.Duration) PageOption {
	return func(p *PageResolver) {
		if d > 0 {
			p.requestTimeout = d
		}
	}
}

// NewPageResolver creates a PageResolver. Relative references are resolved
// against baseURL; with an empty baseURL only absolute references work.
func NewPageResolver(baseURL string, opts ...PageOption) (*PageResolver, error) {
	p := &PageResolver{
		userAgent:      defaultUserAgent,
		transport:      otelhttp.NewTransport(http.DefaultTransport),
		requestTimeout: DefaultTimeout,
	}
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("parse media base url: %w", err)
		}
		if !isHTTP(u) {
			return nil, fmt.Errorf("media base url %q must be an absolute http(s) url", baseURL)
		}
		p.baseURL = u
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Resolve fetches ref and returns the media URL it points at.
func (p *PageResolver) Resolve(ctx context.Context, ref string) (string, error) {
	target, err := p.reference(ref)
	if err != nil {
		return "", err
	}

	ctx, span := telemetry.StartClientSpan(ctx, "media.fetch",
		attribute.String("media.reference", ref),
		attribute.String("url.full", target.String()),
	)
	defer span.End()

	if err := ctx.Err(); err != nil {
		telemetry.RecordError(span, err)
		return "", err
	}

	timeout := p.requestTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	c := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.UserAgent(p.userAgent),
		colly.MaxBodySize(maxPageSize),
	)
	c.WithTransport(p.transport)
	c.SetRequestTimeout(timeout)

	var found string
	c.OnResponse(func(r *colly.Response) {
		if isDirectMedia(r.Headers.Get("Content-Type")) {
			found = r.Request.URL.String()
		}
	})
	c.OnHTML("html", func(e *colly.HTMLElement) {
		if found == "" {
			found = extractMedia(e.DOM, e.Request.URL)
		}
	})

	if err := c.Visit(target.String()); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		err = fmt.Errorf("fetch %s: %w", target, err)
		telemetry.RecordError(span, err)
		return "", err
	}

	if found == "" {
		err := fmt.Errorf("%s: %w", target, ErrMediaNotFound)
		telemetry.RecordError(span, err)
		return "", err
	}

	span.SetAttributes(attribute.String("media.url", found))
	return found, nil
}

func (p *PageResolver) reference(ref string) (*url.URL, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("empty reference: %w", ErrInvalidReference)
	}
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", ref, ErrInvalidReference)
	}
	if u.IsAbs() {
		if !isHTTP(u) {
			return nil, fmt.Errorf("%q: unsupported scheme: %w", ref, ErrInvalidReference)
		}
		return u, nil
	}
	if p.baseURL == nil {
		return nil, fmt.Errorf("%q: relative reference without base url: %w", ref, ErrInvalidReference)
	}
	return p.baseURL.ResolveReference(u), nil
}

// extractMedia returns the first media URL advertised by the page, made
// absolute against base, or "" if there is none.
func extractMedia(doc *goquery.Selection, base *url.URL) string {
	for _, sel := range metaSelectors {
		if v, ok := doc.Find(sel).First().Attr("content"); ok {
			if abs := absolute(base, v); abs != "" {
				return abs
			}
		}
	}
	for _, sel := range elementSelectors {
		if v, ok := doc.Find(sel).First().Attr("src"); ok {
			if abs := absolute(base, v); abs != "" {
				return abs
			}
		}
	}
	return ""
}

func absolute(base *url.URL, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := base.Parse(raw)
	if err != nil {
		return ""
	}
	return u.String()
}

func isDirectMedia(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "image/") || strings.HasPrefix(ct, "video/")
}

func isHTTP(u *url.URL) bool {
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
