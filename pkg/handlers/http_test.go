package handlers

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/CodeTease/custom404/pkg/cache"
	"github.com/CodeTease/custom404/pkg/config"
	"github.com/CodeTease/custom404/pkg/ratelimit"
	"github.com/CodeTease/custom404/pkg/session"
	"github.com/CodeTease/custom404/pkg/watermark"
)

type gatedLoader struct {
	mu   sync.Mutex
	gate chan struct{}
}

func (l *gatedLoader) hold() {
	l.mu.Lock()
	l.gate = make(chan struct{})
	l.mu.Unlock()
}

func (l *gatedLoader) release() {
	l.mu.Lock()
	close(l.gate)
	l.gate = nil
	l.mu.Unlock()
}

func (l *gatedLoader) Load(ctx context.Context, src string) (*watermark.Source, error) {
	l.mu.Lock()
	gate := l.gate
	l.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &watermark.Source{Image: image.NewNRGBA(image.Rect(0, 0, 40, 20)), Readable: true}, nil
}

func newTestServer(t *testing.T, cfg config.Config, opts config.Options, l watermark.Loader) (*httptest.Server, *Handler) {
	t.Helper()
	p, err := watermark.NewPipeline(l)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ImageWait == 0 {
		cfg.ImageWait = 5 * time.Second
	}
	h := &Handler{
		ConfigManager: config.NewStaticManager(cfg, opts),
		Factory: &session.Factory{
			Pipeline: p,
			Catalog:  []string{"https://img.test/1.webp", "https://img.test/2.webp"},
			Cache:    cache.NewMemoryCache(100, 0, time.Minute),
			CacheTTL: time.Minute,
		},
		Sessions: session.NewStore(100, time.Minute),
		Limiter:  ratelimit.NewMemoryLimiter(cfg.RateLimit, 100, time.Minute),
	}
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return srv, h
}

func automatic() config.Options {
	return config.Options{Automatic404Image: config.Ptr(true)}
}

func get(t *testing.T, url, acceptEncoding string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	// Disable the transport's transparent gzip handling
	req.Header.Set("Accept-Encoding", acceptEncoding)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthcheck(t *testing.T) {
	srv, _ := newTestServer(t, config.Config{}, automatic(), &gatedLoader{})
	resp := get(t, srv.URL+"/healthcheck", "identity")
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "OK" {
		t.Fatalf("got %d %q", resp.StatusCode, body)
	}
}

func TestNotFoundPage(t *testing.T) {
	srv, h := newTestServer(t, config.Config{}, automatic(), &gatedLoader{})

	tests := []struct {
		encoding string
		decode   func(io.Reader) (io.Reader, error)
	}{
		{"br", func(r io.Reader) (io.Reader, error) { return brotli.NewReader(r), nil }},
		{"gzip", func(r io.Reader) (io.Reader, error) { return gzip.NewReader(r) }},
		{"identity", func(r io.Reader) (io.Reader, error) { return r, nil }},
	}
	for _, tt := range tests {
		t.Run(tt.encoding, func(t *testing.T) {
			resp := get(t, srv.URL+"/no/such/page", tt.encoding)
			if resp.StatusCode != http.StatusNotFound {
				t.Fatalf("status = %d", resp.StatusCode)
			}
			if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
				t.Fatalf("Content-Type = %q", ct)
			}
			if tt.encoding != "identity" && resp.Header.Get("Content-Encoding") != tt.encoding {
				t.Fatalf("Content-Encoding = %q", resp.Header.Get("Content-Encoding"))
			}
			r, err := tt.decode(resp.Body)
			if err != nil {
				t.Fatal(err)
			}
			body, err := io.ReadAll(r)
			if err != nil {
				t.Fatal(err)
			}
			page := string(body)
			if !strings.Contains(page, "<title>404 - Not Found</title>") {
				t.Fatal("title missing")
			}
			if !strings.Contains(page, "data:image/png;base64,") {
				t.Fatal("watermarked image missing")
			}
			id := resp.Header.Get(SessionHeader)
			if _, ok := h.Sessions.Get(id); !ok {
				t.Fatalf("session %q not stored", id)
			}
		})
	}
}

func TestNotFoundPageWithoutImages(t *testing.T) {
	srv, _ := newTestServer(t, config.Config{}, config.Options{ImgFileNames: []string{}}, &gatedLoader{})
	resp := get(t, srv.URL+"/missing", "identity")
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if strings.Contains(string(body), "<img") {
		t.Fatal("image rendered from an empty list")
	}
}

func refresh(t *testing.T, srv *httptest.Server, id string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/_404/refresh/"+id, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRefreshAndImage(t *testing.T) {
	l := &gatedLoader{}
	srv, _ := newTestServer(t, config.Config{}, automatic(), l)

	if resp := refresh(t, srv, "unknown"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown session: status %d", resp.StatusCode)
	}
	if resp := get(t, srv.URL+"/_404/image/unknown", "identity"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown session image: status %d", resp.StatusCode)
	}

	id := get(t, srv.URL+"/", "identity").Header.Get(SessionHeader)

	resp := get(t, srv.URL+"/_404/image/"+id, "identity")
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("image: status %d, type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	cfg, err := png.DecodeConfig(resp.Body)
	if err != nil || cfg.Width != 40 || cfg.Height != 20 {
		t.Fatalf("image %dx%d, %v", cfg.Width, cfg.Height, err)
	}

	l.hold()
	resp = refresh(t, srv, id)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("refresh: status %d", resp.StatusCode)
	}
	var out struct {
		Session string `json:"session"`
		Src     string `json:"src"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Session != id || !strings.HasPrefix(out.Src, "https://img.test/") {
		t.Fatalf("refresh response %+v", out)
	}

	if resp := get(t, srv.URL+"/_404/image/"+id, "identity"); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("pending image: status %d", resp.StatusCode)
	}

	l.release()
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp := get(t, srv.URL+"/_404/image/"+id, "identity")
		if resp.StatusCode == http.StatusOK {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("refreshed image never settled")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRefreshWithoutImage(t *testing.T) {
	l := &gatedLoader{}
	l.hold()
	t.Cleanup(l.release)
	srv, _ := newTestServer(t, config.Config{ImageWait: 10 * time.Millisecond}, automatic(), l)

	id := get(t, srv.URL+"/", "identity").Header.Get(SessionHeader)
	if resp := refresh(t, srv, id); resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
	if resp := get(t, srv.URL+"/_404/image/"+id, "identity"); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
}

func TestRefreshRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, config.Config{RateLimit: 1}, automatic(), &gatedLoader{})
	id := get(t, srv.URL+"/", "identity").Header.Get(SessionHeader)

	if resp := refresh(t, srv, id); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("first refresh: status %d", resp.StatusCode)
	}
	if resp := refresh(t, srv, id); resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second refresh: status %d, want 429", resp.StatusCode)
	}
}

func TestStaticFilesAndMetrics(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "errors"), 0755); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 1, 1)))
	if err := os.WriteFile(filepath.Join(dir, "errors", "404-1.png"), buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	srv, _ := newTestServer(t, config.Config{StaticDir: dir, EnableMetrics: true}, automatic(), &gatedLoader{})

	resp := get(t, srv.URL+"/errors/404-1.png", "identity")
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("static: status %d, type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if resp := get(t, srv.URL+"/errors/404-9.png", "identity"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing static: status %d", resp.StatusCode)
	}
	if resp := get(t, srv.URL+"/metrics", "identity"); resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics: status %d", resp.StatusCode)
	}
}
