// Package watermark burns a text watermark into images.
//
// A Pipeline loads a source image through a Loader, draws it onto a Surface
// of the same size, writes the watermark text centered near the bottom edge,
// and encodes the result as a PNG data URL. Every request re-fetches and
// re-draws. A request whose load or encode fails delivers nothing; the
// optional failure hook is the only place the cause is visible.
package watermark

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"time"

	"github.com/buckket/go-blurhash"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/CodeTease/custom404/pkg/metrics"
)

// Source is a loaded image. Readable is false when the host did not allow
// anonymous cross-origin reads of the pixels.
type Source struct {
	Image    image.Image
	Readable bool
}

// Loader is the host image-loading primitive. Load blocks until the image is
// loaded or fails.
type Loader interface {
	Load(ctx context.Context, src string) (*Source, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, src string) (*Source, error)

func (f LoaderFunc) Load(ctx context.Context, src string) (*Source, error) {
	return f(ctx, src)
}

// State is the stage a request is in.
type State int

const (
	StateLoading State = iota
	StateDrawing
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateDrawing:
		return "drawing"
	case StateCompleted:
		return "completed"
	default:
		return "failed"
	}
}

// FailureError reports the stage at which a request was dropped.
type FailureError struct {
	Source string
	State  State
	Err    error
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("watermark %s: failed while %s: %v", e.Source, e.State, e.Err)
}

func (e *FailureError) Unwrap() error {
	return e.Err
}

// Image is a watermarked, self-contained image.
type Image struct {
	Source   string
	DataURL  string
	Width    int
	Height   int
	Blurhash string
}

func (img *Image) snapshot() Snapshot {
	return Snapshot{
		Src:      img.DataURL,
		Phase:    PhaseWatermarked,
		Width:    img.Width,
		Height:   img.Height,
		Blurhash: img.Blurhash,
	}
}

const (
	DefaultBottomInset = 5
	DefaultOpacity     = 0.7
)

// DefaultTextColor is white at 0.7 alpha.
var DefaultTextColor = color.NRGBA{R: 255, G: 255, B: 255, A: uint8(math.Round(255 * DefaultOpacity))}

type Pipeline struct {
	loader      Loader
	font        *Font
	color       color.Color
	inset       int
	placeholder bool
	onFailure   func(*FailureError)
}

type Option func(*Pipeline)

func WithFont(f *Font) Option {
	return func(p *Pipeline) { p.font = f }
}

func WithTextColor(c color.Color) Option {
	return func(p *Pipeline) { p.color = c }
}

// WithBottomInset sets the distance in pixels between the text bottom and
// the image bottom.
func WithBottomInset(px int) Option {
	return func(p *Pipeline) { p.inset = px }
}

// WithPlaceholder enables blurhash placeholders on generated images.
func WithPlaceholder(enabled bool) Option {
	return func(p *Pipeline) { p.placeholder = enabled }
}

// WithFailureHook sets fn to receive dropped requests.
func WithFailureHook(fn func(*FailureError)) Option {
	return func(p *Pipeline) { p.onFailure = fn }
}

func NewPipeline(l Loader, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		loader: l,
		color:  DefaultTextColor,
		inset:  DefaultBottomInset,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.font == nil {
		f, err := LoadFont("", DefaultFontSize)
		if err != nil {
			return nil, err
		}
		p.font = f
	}
	return p, nil
}

// Generate loads src and delivers exactly one watermarked image on the
// returned channel. On failure the channel is closed without a value.
func (p *Pipeline) Generate(ctx context.Context, src, text string) <-chan *Image {
	out := make(chan *Image, 1)
	go func() {
		defer close(out)
		img, err := p.render(ctx, src, text)
		if err != nil {
			p.fail(err)
			return
		}
		out <- img
	}()
	return out
}

// GenerateFunc is Generate with a completion callback. onComplete runs once
// on success and never on failure.
func (p *Pipeline) GenerateFunc(ctx context.Context, src, text string, onComplete func(*Image)) {
	ch := p.Generate(ctx, src, text)
	go func() {
		if img, ok := <-ch; ok {
			onComplete(img)
		}
	}()
}

// Refresh points el at the raw src, then once that load completes replaces
// it with the watermarked variant of src. A later Refresh on the same element
// drops this one: before the raw load completes its handler is replaced, and
// after it its watermarked result is discarded. The returned channel is closed
// when this refresh has settled, been superseded or failed.
func (p *Pipeline) Refresh(ctx context.Context, el *Element, src, text string) <-chan struct{} {
	done := make(chan struct{})
	id := el.begin(src)

	go func() {
		defer close(done)

		if _, err := p.loader.Load(ctx, src); err != nil {
			p.fail(&FailureError{Source: src, State: StateLoading, Err: err})
			return
		}
		raw, ok := el.fire(id)
		if !ok {
			slog.Debug("Refresh superseded", "src", src)
			return
		}

		img, err := p.render(ctx, raw, text)
		if err != nil {
			p.fail(err)
			return
		}
		if !el.assign(id, img) {
			slog.Debug("Refresh superseded after load", "src", src)
		}
	}()

	return done
}

func (p *Pipeline) render(ctx context.Context, src, text string) (*Image, error) {
	ctx, span := otel.Tracer("custom404/watermark").Start(ctx, "watermark.render",
		trace.WithAttributes(attribute.String("src", src)),
	)
	defer span.End()

	start := time.Now()

	loaded, err := p.loader.Load(ctx, src)
	if err != nil {
		span.RecordError(err)
		return nil, &FailureError{Source: src, State: StateLoading, Err: err}
	}
	span.AddEvent("loaded")

	img, err := p.draw(ctx, src, loaded, text)
	if err != nil {
		span.RecordError(err)
		return nil, &FailureError{Source: src, State: StateDrawing, Err: err}
	}
	span.AddEvent("encoded")

	metrics.WatermarkDuration.Observe(time.Since(start).Seconds())
	slog.Debug("Watermark applied", "src", src, "state", StateCompleted, "width", img.Width, "height", img.Height)
	return img, nil
}

func (p *Pipeline) draw(ctx context.Context, src string, loaded *Source, text string) (*Image, error) {
	b := loaded.Image.Bounds()
	s := NewSurface(b.Dx(), b.Dy())
	s.DrawImage(loaded)

	face, err := p.font.NewFace()
	if err != nil {
		return nil, err
	}
	defer face.Close()

	s.FillText(text, b.Dx()/2, b.Dy()-p.inset, TextStyle{
		Face:     face,
		Color:    p.color,
		Align:    AlignCenter,
		Baseline: BaselineBottom,
	})
	trace.SpanFromContext(ctx).AddEvent("drawn")

	pix, err := s.Image()
	if err != nil {
		return nil, err
	}
	u, err := s.DataURL()
	if err != nil {
		return nil, err
	}

	img := &Image{
		Source:  src,
		DataURL: u,
		Width:   b.Dx(),
		Height:  b.Dy(),
	}
	if p.placeholder && img.Width > 0 && img.Height > 0 {
		if h, err := blurhash.Encode(4, 3, pix); err == nil {
			img.Blurhash = h
		}
	}
	return img, nil
}

func (p *Pipeline) fail(err error) {
	fe, ok := err.(*FailureError)
	if !ok {
		fe = &FailureError{State: StateFailed, Err: err}
	}
	metrics.WatermarkFailuresTotal.WithLabelValues(fe.State.String()).Inc()
	if p.onFailure != nil {
		p.onFailure(fe)
	}
}
