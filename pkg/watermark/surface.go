package watermark

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// ErrTaintedSurface is returned when pixels from a source that did not grant
// anonymous cross-origin reads are read back from a surface.
var ErrTaintedSurface = errors.New("watermark: surface is tainted by a cross-origin image")

type Align int

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
)

type Baseline int

const (
	BaselineAlphabetic Baseline = iota
	BaselineTop
	BaselineMiddle
	BaselineBottom
)

// TextStyle mirrors the text state of a 2D drawing context.
type TextStyle struct {
	Face     font.Face
	Color    color.Color
	Align    Align
	Baseline Baseline
}

// Surface is an off-screen raster.
type Surface struct {
	img     *image.NRGBA
	tainted bool
}

// NewSurface returns a transparent surface of w by h pixels.
func NewSurface(w, h int) *Surface {
	return &Surface{img: image.NewNRGBA(image.Rect(0, 0, w, h))}
}

func (s *Surface) Bounds() image.Rectangle {
	return s.img.Bounds()
}

// Tainted reports whether the surface can no longer be read back.
func (s *Surface) Tainted() bool {
	return s.tainted
}

// DrawImage composites src at the origin. Drawing a source that is not
// readable taints the surface.
func (s *Surface) DrawImage(src *Source) {
	b := src.Image.Bounds()
	draw.Draw(s.img, image.Rect(0, 0, b.Dx(), b.Dy()), src.Image, b.Min, draw.Over)
	if !src.Readable {
		s.tainted = true
	}
}

// FillText draws text anchored at (x, y) according to the style's alignment
// and baseline.
func (s *Surface) FillText(text string, x, y int, st TextStyle) {
	m := st.Face.Metrics()
	width := font.MeasureString(st.Face, text)

	dot := fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)}
	switch st.Align {
	case AlignCenter:
		dot.X -= width / 2
	case AlignRight:
		dot.X -= width
	}
	switch st.Baseline {
	case BaselineTop:
		dot.Y += m.Ascent
	case BaselineMiddle:
		dot.Y += (m.Ascent - m.Descent) / 2
	case BaselineBottom:
		dot.Y -= m.Descent
	}

	d := &font.Drawer{
		Dst:  s.img,
		Src:  image.NewUniform(st.Color),
		Face: st.Face,
		Dot:  dot,
	}
	d.DrawString(text)
}

// Image returns the surface pixels.
func (s *Surface) Image() (*image.NRGBA, error) {
	if s.tainted {
		return nil, ErrTaintedSurface
	}
	return s.img, nil
}

// EncodePNG encodes the surface contents as PNG.
func (s *Surface) EncodePNG() ([]byte, error) {
	img, err := s.Image()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DataURL encodes the surface as a self-contained PNG data URL.
func (s *Surface) DataURL() (string, error) {
	b, err := s.EncodePNG()
	if err != nil {
		return "", err
	}
	return PNGDataURL(b), nil
}

const pngDataURLPrefix = "data:image/png;base64,"

// PNGDataURL wraps PNG bytes in a data URL.
func PNGDataURL(b []byte) string {
	return pngDataURLPrefix + base64.StdEncoding.EncodeToString(b)
}

// DecodeDataURL returns the PNG bytes of a data URL built by PNGDataURL.
func DecodeDataURL(u string) ([]byte, error) {
	if len(u) < len(pngDataURLPrefix) || u[:len(pngDataURLPrefix)] != pngDataURLPrefix {
		return nil, errors.New("watermark: not a png data url")
	}
	return base64.StdEncoding.DecodeString(u[len(pngDataURLPrefix):])
}
