package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// newMediaSite serves a handful of pages the resolver has to handle.
func newMediaSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/feature", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head>
<meta property="og:image" content="/img/shot.png">
</head><body><img src="/img/other.png"></body></html>`)
	})
	mux.HandleFunc("/clip", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body><video controls><source src="media/clip.mp4" type="video/mp4"></video></body></html>`)
	})
	mux.HandleFunc("/img/direct.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 'P', 'N', 'G'})
	})
	mux.HandleFunc("/bare", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body><p>nothing to see</p></body></html>`)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><meta property="og:image" content="/late.png"></head></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestPageResolver_Resolve(t *testing.T) {
	site := newMediaSite(t)
	resolver, err := NewPageResolver(site.URL + "/")
	if err != nil {
		t.Fatalf("NewPageResolver: %v", err)
	}

	tests := []struct {
		name string
		ref  string
		want string
	}{
		{"og image on page", site.URL + "/feature", site.URL + "/img/shot.png"},
		{"relative reference", "feature", site.URL + "/img/shot.png"},
		{"video source", site.URL + "/clip", site.URL + "/media/clip.mp4"},
		{"direct image", site.URL + "/img/direct.png", site.URL + "/img/direct.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolver.Resolve(context.Background(), tt.ref)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.ref, got, tt.want)
			}
		})
	}
}

func TestPageResolver_Failures(t *testing.T) {
	site := newMediaSite(t)
	resolver, err := NewPageResolver("")
	if err != nil {
		t.Fatalf("NewPageResolver: %v", err)
	}

	t.Run("page without media", func(t *testing.T) {
		_, err := resolver.Resolve(context.Background(), site.URL+"/bare")
		if !errors.Is(err, ErrMediaNotFound) {
			t.Errorf("expected ErrMediaNotFound, got %v", err)
		}
	})

	t.Run("not found", func(t *testing.T) {
		_, err := resolver.Resolve(context.Background(), site.URL+"/missing")
		if err == nil {
			t.Fatal("expected error for 404")
		}
	})

	t.Run("timeout", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := resolver.Resolve(ctx, site.URL+"/slow")
		if err == nil {
			t.Fatal("expected timeout error")
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("resolve took %v, expected it to give up near the deadline", elapsed)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := resolver.Resolve(ctx, site.URL+"/feature")
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("relative reference without base", func(t *testing.T) {
		_, err := resolver.Resolve(context.Background(), "feature")
		if !errors.Is(err, ErrInvalidReference) {
			t.Errorf("expected ErrInvalidReference, got %v", err)
		}
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		_, err := resolver.Resolve(context.Background(), "ftp://example.com/clip.mp4")
		if !errors.Is(err, ErrInvalidReference) {
			t.Errorf("expected ErrInvalidReference, got %v", err)
		}
	})
}

func TestNewPageResolver_BadBaseURL(t *testing.T) {
	for _, base := range []string{"not a url", "/relative/only", "ftp://example.com"} {
		if _, err := NewPageResolver(base); err == nil {
			t.Errorf("expected error for base url %q", base)
		}
	}
}

func TestExtractMedia(t *testing.T) {
	base, _ := url.Parse("https://example.com/releases/2.0")

	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "video meta wins over image meta",
			html: `<head><meta property="og:image" content="a.png"><meta property="og:video" content="https://cdn.example.com/b.mp4"></head>`,
			want: "https://cdn.example.com/b.mp4",
		},
		{
			name: "twitter image",
			html: `<head><meta name="twitter:image" content="/t.png"></head>`,
			want: "https://example.com/t.png",
		},
		{
			name: "empty meta falls through to img",
			html: `<head><meta property="og:image" content=" "></head><body><img src="shot.jpg"></body>`,
			want: "https://example.com/releases/shot.jpg",
		},
		{
			name: "nothing",
			html: `<body><p>text</p></body>`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader("<html>" + tt.html + "</html>"))
			if err != nil {
				t.Fatal(err)
			}
			if got := extractMedia(doc.Selection, base); got != tt.want {
				t.Errorf("extractMedia = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolverFunc(t *testing.T) {
	var r Resolver = ResolverFunc(func(ctx context.Context, ref string) (string, error) {
		return "https://cdn.example.com/" + ref, nil
	})
	got, err := r.Resolve(context.Background(), "x.png")
	if err != nil || got != "https://cdn.example.com/x.png" {
		t.Errorf("got %q, %v", got, err)
	}
}

func TestCached(t *testing.T) {
	t.Run("remembers successes", func(t *testing.T) {
		var calls atomic.Int32
		c := NewCached(ResolverFunc(func(ctx context.Context, ref string) (string, error) {
			calls.Add(1)
			return "https://cdn.example.com/" + ref, nil
		}), time.Minute)

		for i := 0; i < 3; i++ {
			if _, err := c.Resolve(context.Background(), "a"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if calls.Load() != 1 {
			t.Errorf("expected 1 call, got %d", calls.Load())
		}
	})

	t.Run("expires entries", func(t *testing.T) {
		var calls atomic.Int32
		c := NewCached(ResolverFunc(func(ctx context.Context, ref string) (string, error) {
			calls.Add(1)
			return "u", nil
		}), time.Minute)
		now := time.Now()
		c.now = func() time.Time { return now }

		c.Resolve(context.Background(), "a")
		now = now.Add(2 * time.Minute)
		c.Resolve(context.Background(), "a")

		if calls.Load() != 2 {
			t.Errorf("expected 2 calls after expiry, got %d", calls.Load())
		}
	})

	t.Run("does not remember failures", func(t *testing.T) {
		var calls atomic.Int32
		c := NewCached(ResolverFunc(func(ctx context.Context, ref string) (string, error) {
			calls.Add(1)
			return "", ErrMediaNotFound
		}), time.Minute)

		for i := 0; i < 2; i++ {
			if _, err := c.Resolve(context.Background(), "a"); !errors.Is(err, ErrMediaNotFound) {
				t.Fatalf("expected ErrMediaNotFound, got %v", err)
			}
		}
		if calls.Load() != 2 {
			t.Errorf("expected 2 calls, got %d", calls.Load())
		}
	})

	t.Run("shares concurrent lookups", func(t *testing.T) {
		var calls atomic.Int32
		release := make(chan struct{})
		c := NewCached(ResolverFunc(func(ctx context.Context, ref string) (string, error) {
			calls.Add(1)
			<-release
			return "u", nil
		}), 0)

		var wg sync.WaitGroup
		started := make(chan struct{}, 5)
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				started <- struct{}{}
				c.Resolve(context.Background(), "same")
			}()
		}
		for i := 0; i < 5; i++ {
			<-started
		}
		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()

		if n := calls.Load(); n != 1 {
			t.Errorf("expected concurrent lookups to share 1 call, got %d", n)
		}
	})

	t.Run("cancelled caller does not fail a sharing caller", func(t *testing.T) {
		release := make(chan struct{})
		var calls atomic.Int32
		c := NewCached(ResolverFunc(func(ctx context.Context, ref string) (string, error) {
			calls.Add(1)
			select {
			case <-release:
				return "https://cdn.example.com/shared.png", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}), time.Minute)

		firstCtx, cancelFirst := context.WithCancel(context.Background())
		firstErr := make(chan error, 1)
		go func() {
			_, err := c.Resolve(firstCtx, "shared")
			firstErr <- err
		}()
		for calls.Load() == 0 {
			time.Sleep(time.Millisecond)
		}

		type result struct {
			url string
			err error
		}
		second := make(chan result, 1)
		go func() {
			u, err := c.Resolve(context.Background(), "shared")
			second <- result{u, err}
		}()
		time.Sleep(20 * time.Millisecond)

		cancelFirst()
		if err := <-firstErr; !errors.Is(err, context.Canceled) {
			t.Errorf("cancelled caller: expected context.Canceled, got %v", err)
		}

		close(release)
		res := <-second
		if res.err != nil || res.url != "https://cdn.example.com/shared.png" {
			t.Errorf("sharing caller got %q, %v", res.url, res.err)
		}
		if n := calls.Load(); n != 1 {
			t.Errorf("expected 1 call, got %d", n)
		}
	})

	t.Run("shared call is bounded by the lookup timeout", func(t *testing.T) {
		c := NewCached(ResolverFunc(func(ctx context.Context, ref string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}), time.Minute, WithLookupTimeout(20*time.Millisecond))

		start := time.Now()
		_, err := c.Resolve(context.Background(), "never")
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected context.DeadlineExceeded, got %v", err)
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("lookup took %v", elapsed)
		}
	})

	t.Run("purge", func(t *testing.T) {
		var calls atomic.Int32
		c := NewCached(ResolverFunc(func(ctx context.Context, ref string) (string, error) {
			calls.Add(1)
			return "u", nil
		}), time.Minute)
		c.Resolve(context.Background(), "a")
		c.Purge()
		c.Resolve(context.Background(), "a")
		if calls.Load() != 2 {
			t.Errorf("expected 2 calls after purge, got %d", calls.Load())
		}
	})
}
