package watermark

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

const DefaultFontSize = 20

// Font is a parsed typeface at a fixed pixel size. Faces are not safe for
// concurrent use, so NewFace hands out a fresh one per draw.
type Font struct {
	f    *opentype.Font
	size float64
}

// LoadFont parses the TTF/OTF at path, or Go Regular when path is empty.
func LoadFont(path string, size float64) (*Font, error) {
	if size <= 0 {
		size = DefaultFontSize
	}
	data := goregular.TTF
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read font: %w", err)
		}
		data = b
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	return &Font{f: f, size: size}, nil
}

// NewFace returns a face at 72 DPI so that size is in pixels.
func (f *Font) NewFace() (font.Face, error) {
	return opentype.NewFace(f.f, &opentype.FaceOptions{
		Size:    f.size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}
