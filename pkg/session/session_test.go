package session

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/CodeTease/custom404/pkg/cache"
	"github.com/CodeTease/custom404/pkg/catalog"
	"github.com/CodeTease/custom404/pkg/config"
	"github.com/CodeTease/custom404/pkg/watermark"
)

type fakeLoader struct {
	mu    sync.Mutex
	calls []string
	gate  chan struct{}
}

func (l *fakeLoader) Load(ctx context.Context, src string) (*watermark.Source, error) {
	l.mu.Lock()
	l.calls = append(l.calls, src)
	gate := l.gate
	l.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	img := image.NewNRGBA(image.Rect(0, 0, 60, 30))
	for i := range img.Pix {
		img.Pix[i] = 40
	}
	return &watermark.Source{Image: img, Readable: true}, nil
}

func (l *fakeLoader) callLog() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func newFactory(t *testing.T, l watermark.Loader) *Factory {
	t.Helper()
	p, err := watermark.NewPipeline(l)
	if err != nil {
		t.Fatal(err)
	}
	return &Factory{
		Pipeline:        p,
		Catalog:         []string{"https://img.test/1.webp", "https://img.test/2.webp", "https://img.test/3.webp"},
		Cache:           cache.NewMemoryCache(100, 0, time.Minute),
		CacheTTL:        time.Minute,
		SelectorOptions: []catalog.Option{catalog.WithRand(rand.New(rand.NewPCG(1, 2)))},
	}
}

func automatic() config.Settings {
	return config.Options{Automatic404Image: config.Ptr(true)}.Resolve()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 5s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBuildAttachesWatermarkedImage(t *testing.T) {
	f := newFactory(t, &fakeLoader{})
	s, err := f.New(automatic(), "example.com")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Build(context.Background(), 5*time.Second); err != nil {
		t.Fatal(err)
	}

	snap, ok := s.Current()
	if !ok || snap.Phase != watermark.PhaseWatermarked || snap.Width != 60 || snap.Height != 30 {
		t.Fatalf("current = %+v, %v", snap, ok)
	}

	var buf bytes.Buffer
	if err := s.Render(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), snap.Src) {
		t.Fatal("rendered page does not show the watermarked image")
	}
	if !strings.Contains(buf.String(), RefreshPath(s.ID)) {
		t.Fatal("rendered page does not advertise the refresh endpoint")
	}

	b, ok := s.SettledImage(context.Background())
	if !ok {
		t.Fatal("no settled image")
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(b))
	if err != nil || cfg.Width != 60 || cfg.Height != 30 {
		t.Fatalf("settled image %dx%d, %v", cfg.Width, cfg.Height, err)
	}
	if cached, ok := f.Cache.Get(context.Background(), cache.ImageKey(s.ID)); !ok || !bytes.Equal(cached, b) {
		t.Fatal("settled image not cached")
	}
}

func TestBuildUserListMode(t *testing.T) {
	l := &fakeLoader{}
	f := newFactory(t, l)
	settings := config.Options{ImgFileNames: []string{"/errors/only.webp"}}.Resolve()
	s, err := f.New(settings, "example.com")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Build(context.Background(), 5*time.Second); err != nil {
		t.Fatal(err)
	}
	if calls := l.callLog(); len(calls) != 1 || calls[0] != "/errors/only.webp" {
		t.Fatalf("loads = %v", calls)
	}
}

func TestBuildEmptyUserList(t *testing.T) {
	f := newFactory(t, &fakeLoader{})
	s, err := f.New(config.Options{ImgFileNames: []string{}}.Resolve(), "example.com")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Build(context.Background(), time.Second); !errors.Is(err, catalog.ErrInvalidCatalog) {
		t.Fatalf("want ErrInvalidCatalog, got %v", err)
	}
}

func TestBuildLateImage(t *testing.T) {
	l := &fakeLoader{gate: make(chan struct{})}
	f := newFactory(t, l)
	s, err := f.New(automatic(), "example.com")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Build(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Current(); ok {
		t.Fatal("image attached before its load completed")
	}
	if _, ok := s.SettledImage(context.Background()); ok {
		t.Fatal("settled image before load")
	}

	close(l.gate)
	waitFor(t, func() bool {
		_, ok := s.SettledImage(context.Background())
		return ok
	})
}

func TestRefreshImage(t *testing.T) {
	l := &fakeLoader{}
	f := newFactory(t, l)
	s, err := f.New(automatic(), "example.com")
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.RefreshImage(context.Background()); !errors.Is(err, ErrNoImage) {
		t.Fatalf("want ErrNoImage, got %v", err)
	}

	if err := s.Build(context.Background(), 5*time.Second); err != nil {
		t.Fatal(err)
	}
	first := l.callLog()[0]

	done, src, err := s.RefreshImage(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if src == first {
		t.Fatalf("refresh repeated %s within one cycle", src)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("refresh did not settle")
	}

	after, _ := s.Current()
	if after.Phase != watermark.PhaseWatermarked || !strings.HasPrefix(after.Src, "data:image/png;base64,") {
		t.Fatalf("refresh settled on %+v", after)
	}
	calls := l.callLog()
	if len(calls) != 3 || calls[1] != src || calls[2] != src {
		t.Fatalf("loads = %v", calls)
	}

	b, ok := s.SettledImage(context.Background())
	if !ok {
		t.Fatal("no settled image after refresh")
	}
	want, _ := watermark.DecodeDataURL(after.Src)
	if !bytes.Equal(b, want) {
		t.Fatal("cache holds a stale image")
	}
}

func TestRefreshPendingHidesSettledImage(t *testing.T) {
	l := &fakeLoader{}
	f := newFactory(t, l)
	s, err := f.New(automatic(), "example.com")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Build(context.Background(), 5*time.Second); err != nil {
		t.Fatal(err)
	}

	l.mu.Lock()
	l.gate = make(chan struct{})
	l.mu.Unlock()

	done, src, err := s.RefreshImage(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	snap, _ := s.Current()
	if snap.Phase != watermark.PhaseRaw || snap.Src != src {
		t.Fatalf("pending refresh shows %+v", snap)
	}
	if _, ok := s.SettledImage(context.Background()); ok {
		t.Fatal("settled image reported while refresh is pending")
	}

	close(l.gate)
	<-done
	if _, ok := s.SettledImage(context.Background()); !ok {
		t.Fatal("no settled image after refresh")
	}
}

func TestStore(t *testing.T) {
	f := newFactory(t, &fakeLoader{})
	st := NewStore(2, 50*time.Millisecond)

	a, _ := f.New(automatic(), "example.com")
	b, _ := f.New(automatic(), "example.com")
	c, _ := f.New(automatic(), "example.com")
	if a.ID == b.ID {
		t.Fatal("duplicate session ids")
	}
	st.Add(a)
	st.Add(b)
	st.Add(c)

	if _, ok := st.Get(a.ID); ok {
		t.Fatal("oldest session not evicted")
	}
	if got, ok := st.Get(c.ID); !ok || got != c {
		t.Fatal("recent session missing")
	}

	time.Sleep(100 * time.Millisecond)
	if _, ok := st.Get(c.ID); ok {
		t.Fatal("expired session still present")
	}
}
