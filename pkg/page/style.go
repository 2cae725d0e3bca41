package page

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/aymerick/douceur/parser"

	"github.com/CodeTease/custom404/pkg/config"
)

// decl is one inline style declaration.
type decl struct {
	prop, value string
}

func inline(decls ...decl) string {
	parts := make([]string, 0, len(decls))
	for _, d := range decls {
		parts = append(parts, d.prop+": "+d.value+";")
	}
	return strings.Join(parts, " ")
}

// StyleSheet returns the page style sheet: the pulsate animation, the image
// transition and, when enabled, the hover shadow.
func StyleSheet(s config.Settings) string {
	var b strings.Builder
	b.WriteString(`@keyframes pulsate {
	0% { transform: scale(1); }
	50% { transform: scale(1.1); }
	100% { transform: scale(1); }
}
.custom404-img {
	transform: scale(1.05);
	transition: box-shadow 0.3s ease, transform 0.3s ease;
}
`)
	if s.ImgBoxShadow {
		fmt.Fprintf(&b, `.custom404-img:hover {
	box-shadow: 0 %s 25px 8px %s;
	transform: scale(1.08);
}
`, s.ImgBoxShadowSize, s.ImgBoxShadowColor)
	}

	raw := b.String()
	sheet, err := parser.Parse(raw)
	if err != nil {
		// Option values are not validated; keep the sheet as written
		slog.Debug("Style sheet left unnormalized", "error", err)
		return raw
	}
	return sheet.String()
}

// subHeaderColor lightens the sub-header on dark body text.
func subHeaderColor(bodyFontColor string) string {
	switch bodyFontColor {
	case "black", "#000", "rgb(0, 0, 0)":
		return "#666"
	}
	return bodyFontColor
}

func pulsation(s config.Settings) string {
	if s.BtnPulsateCount == 0 {
		return "none"
	}
	return fmt.Sprintf("pulsate 2s ease-in-out %d forwards", s.BtnPulsateCount)
}

// flexDirection maps the header position to the container direction.
func flexDirection(position string) string {
	switch position {
	case "top":
		return "column"
	case "left":
		return "row-reverse"
	}
	return "row"
}
