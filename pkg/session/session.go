// Package session ties one rendered 404 page to its image state.
//
// A Session owns a selector, a document and at most one current image
// element. Build draws the first image and attaches it once the watermark
// pipeline delivers; RefreshImage swaps the element's source in place.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CodeTease/custom404/pkg/cache"
	"github.com/CodeTease/custom404/pkg/catalog"
	"github.com/CodeTease/custom404/pkg/config"
	"github.com/CodeTease/custom404/pkg/metrics"
	"github.com/CodeTease/custom404/pkg/page"
	"github.com/CodeTease/custom404/pkg/watermark"
)

// ErrNoImage is returned by RefreshImage before any image was attached.
var ErrNoImage = errors.New("session: no image attached")

// Factory creates sessions sharing one pipeline and image cache.
type Factory struct {
	Pipeline *watermark.Pipeline
	Catalog  []string
	Cache    cache.CacheProvider
	CacheTTL time.Duration
	// SelectorOptions are applied to every session's selector.
	SelectorOptions []catalog.Option
}

type Session struct {
	ID string

	settings config.Settings
	selector *catalog.Selector
	pipeline *watermark.Pipeline
	doc      *page.Document
	cache    cache.CacheProvider
	cacheTTL time.Duration

	mu      sync.Mutex
	current *watermark.Element
}

// New returns a session for one page view. host is the hostname shown on the
// page.
func (f *Factory) New(settings config.Settings, host string) (*Session, error) {
	sel, err := catalog.New(f.Catalog, f.SelectorOptions...)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	return &Session{
		ID:       id,
		settings: settings,
		selector: sel,
		pipeline: f.Pipeline,
		doc:      page.New(settings, host, page.WithRefreshURL(RefreshPath(id))),
		cache:    f.Cache,
		cacheTTL: f.CacheTTL,
	}, nil
}

// RefreshPath is the endpoint that refreshes session id's image.
func RefreshPath(id string) string {
	return "/_404/refresh/" + id
}

// ImagePath is the endpoint that serves session id's settled image.
func ImagePath(id string) string {
	return "/_404/image/" + id
}

// RandomImage draws the next identifier for the configured mode.
func (s *Session) RandomImage() (string, error) {
	return s.selector.Draw(s.settings.Automatic404Image, s.settings.ImgFileNames)
}

// Build starts generating the first image and waits up to wait for it to be
// attached. A late image is still attached when it arrives. Generation
// outlives ctx cancellation.
func (s *Session) Build(ctx context.Context, wait time.Duration) error {
	src, err := s.RandomImage()
	if err != nil {
		return err
	}

	ch := s.pipeline.Generate(context.WithoutCancel(ctx), src, s.settings.WatermarkText)
	attached := make(chan struct{})
	go func() {
		defer close(attached)
		if img, ok := <-ch; ok {
			s.attach(img)
		}
	}()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-attached:
	case <-timer.C:
		slog.Debug("Rendering without image", "session", s.ID, "src", src)
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (s *Session) attach(img *watermark.Image) {
	el := watermark.NewElement(img)
	el.OnChange(s.changed)
	s.changed(el.Snapshot())

	s.mu.Lock()
	s.current = el
	s.mu.Unlock()
}

func (s *Session) changed(snap watermark.Snapshot) {
	if err := s.doc.AttachImage(snap); err != nil {
		slog.Error("Attach image failed", "session", s.ID, "error", err)
		return
	}
	if snap.Phase != watermark.PhaseWatermarked || s.cache == nil {
		return
	}
	b, err := watermark.DecodeDataURL(snap.Src)
	if err != nil {
		slog.Error("Settled image is not a PNG data URL", "session", s.ID, "error", err)
		return
	}
	if err := s.cache.Set(context.Background(), cache.ImageKey(s.ID), b, s.cacheTTL); err != nil {
		slog.Warn("Failed to cache settled image", "session", s.ID, "error", err)
	}
}

// RefreshImage draws a new identifier and refreshes the current element
// with it. The returned channel closes when the refresh has settled or been
// dropped.
func (s *Session) RefreshImage(ctx context.Context) (<-chan struct{}, string, error) {
	s.mu.Lock()
	el := s.current
	s.mu.Unlock()
	if el == nil {
		return nil, "", ErrNoImage
	}

	src, err := s.RandomImage()
	if err != nil {
		return nil, "", err
	}
	metrics.RefreshTotal.Inc()
	done := s.pipeline.Refresh(context.WithoutCancel(ctx), el, src, s.settings.WatermarkText)
	return done, src, nil
}

// Current returns the visible state of the current image element.
func (s *Session) Current() (watermark.Snapshot, bool) {
	s.mu.Lock()
	el := s.current
	s.mu.Unlock()
	if el == nil {
		return watermark.Snapshot{}, false
	}
	return el.Snapshot(), true
}

// SettledImage returns the watermarked PNG once the current element shows
// one. ok is false while nothing is attached or a refresh is pending.
func (s *Session) SettledImage(ctx context.Context) ([]byte, bool) {
	snap, ok := s.Current()
	if !ok || snap.Phase != watermark.PhaseWatermarked {
		return nil, false
	}
	if s.cache != nil {
		if b, found := s.cache.Get(ctx, cache.ImageKey(s.ID)); found {
			return b, true
		}
	}
	b, err := watermark.DecodeDataURL(snap.Src)
	if err != nil {
		return nil, false
	}
	return b, true
}

func (s *Session) Render(w io.Writer) error {
	return s.doc.Render(w)
}
