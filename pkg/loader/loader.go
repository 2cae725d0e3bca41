// Package loader resolves image identifiers to decoded images.
//
// Identifiers are http(s) URLs, s3:// keys, PNG data URLs or paths. Paths are
// read from the static directory when one is configured and otherwise
// resolved against the public origin. HTTP loads are anonymous: no cookies
// and no credentials are sent, and a cross-origin response is readable only
// when its Access-Control-Allow-Origin header grants the public origin.
package loader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	_ "golang.org/x/image/webp"

	"github.com/CodeTease/custom404/pkg/config"
	"github.com/CodeTease/custom404/pkg/storage"
	"github.com/CodeTease/custom404/pkg/watermark"
)

var _ watermark.Loader = (*Loader)(nil)

type Loader struct {
	client    *http.Client
	origin    *url.URL
	maxSizeMB int64
	s3        storage.StorageProvider
	static    storage.StorageProvider
	userAgent string
}

type Option func(*Loader)

// WithHTTPClient replaces the default client. Its Jar is ignored.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) { l.client = c }
}

// WithS3 enables s3:// identifiers.
func WithS3(p storage.StorageProvider) Option {
	return func(l *Loader) { l.s3 = p }
}

// WithStatic serves path identifiers from p.
func WithStatic(p storage.StorageProvider) Option {
	return func(l *Loader) { l.static = p }
}

// New returns a loader configured from cfg. Invalid PUBLIC_ORIGIN values
// are treated as unset.
func New(cfg config.Config, opts ...Option) *Loader {
	l := &Loader{
		client:    &http.Client{Timeout: cfg.LoadTimeout},
		maxSizeMB: cfg.MaxImageSizeMB,
		userAgent: "custom404",
	}
	if cfg.PublicOrigin != "" {
		if u, err := url.Parse(cfg.PublicOrigin); err == nil && u.Scheme != "" && u.Host != "" {
			l.origin = &url.URL{Scheme: u.Scheme, Host: u.Host}
		}
	}
	if cfg.StaticDir != "" {
		l.static = storage.NewLocalProvider(cfg.StaticDir)
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.client.Jar != nil {
		c := *l.client
		c.Jar = nil
		l.client = &c
	}
	return l
}

func (l *Loader) Load(ctx context.Context, src string) (*watermark.Source, error) {
	ctx, span := otel.Tracer("custom404/loader").Start(ctx, "loader.load",
		trace.WithAttributes(attribute.String("src", src)),
	)
	defer span.End()

	s, err := l.load(ctx, src)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Bool("readable", s.Readable))
	return s, nil
}

func (l *Loader) load(ctx context.Context, src string) (*watermark.Source, error) {
	switch {
	case strings.HasPrefix(src, "data:"):
		b, err := watermark.DecodeDataURL(src)
		if err != nil {
			return nil, err
		}
		return l.decode(bytes.NewReader(b), true)

	case strings.HasPrefix(src, "s3://"):
		if l.s3 == nil {
			return nil, fmt.Errorf("%w: %s (s3 not configured)", ErrUnsupportedSource, src)
		}
		key := strings.TrimPrefix(src, "s3://")
		return l.fromProvider(ctx, l.s3, key)

	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		u, err := url.Parse(src)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedSource, err)
		}
		return l.fetch(ctx, u)
	}

	if l.static != nil {
		return l.fromProvider(ctx, l.static, src)
	}
	if l.origin != nil {
		ref, err := url.Parse(src)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedSource, err)
		}
		return l.fetch(ctx, l.origin.ResolveReference(ref))
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, src)
}

func (l *Loader) fromProvider(ctx context.Context, p storage.StorageProvider, key string) (*watermark.Source, error) {
	rc, size, err := p.GetObject(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	if l.tooLarge(size) {
		return nil, &FileSizeError{MaxSizeMB: l.maxSizeMB}
	}
	return l.decode(rc, true)
}

func (l *Loader) fetch(ctx context.Context, u *url.URL) (*watermark.Source, error) {
	target := *u
	target.User = nil

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept", "image/webp,image/png,image/jpeg,image/gif,*/*;q=0.8")
	if l.origin != nil {
		req.Header.Set("Origin", l.origin.String())
	}

	start := time.Now()
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: target.String(), Code: resp.StatusCode}
	}
	if l.tooLarge(resp.ContentLength) {
		return nil, &FileSizeError{MaxSizeMB: l.maxSizeMB}
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int64("fetch_ms", time.Since(start).Milliseconds()))

	return l.decode(resp.Body, l.readable(&target, resp.Header))
}

// readable reports whether pixels fetched from u may be read back.
func (l *Loader) readable(u *url.URL, h http.Header) bool {
	if l.origin != nil && sameOrigin(l.origin, u) {
		return true
	}
	acao := strings.TrimSpace(h.Get("Access-Control-Allow-Origin"))
	if acao == "*" {
		return true
	}
	return l.origin != nil && acao == l.origin.String()
}

func sameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(hostPort(a), hostPort(b))
}

func hostPort(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		return u.Hostname() + ":443"
	case "http":
		return u.Hostname() + ":80"
	}
	return u.Host
}

func (l *Loader) tooLarge(size int64) bool {
	return l.maxSizeMB > 0 && size > l.maxSizeMB*1024*1024
}

func (l *Loader) decode(r io.Reader, readable bool) (*watermark.Source, error) {
	if l.maxSizeMB > 0 {
		limit := l.maxSizeMB * 1024 * 1024
		b, err := io.ReadAll(io.LimitReader(r, limit+1))
		if err != nil {
			return nil, err
		}
		if int64(len(b)) > limit {
			return nil, &FileSizeError{MaxSizeMB: l.maxSizeMB}
		}
		r = bytes.NewReader(b)
	}
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return &watermark.Source{Image: img, Readable: readable}, nil
}
