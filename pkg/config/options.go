package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Options is the caller's page configuration. Every field is optional; a nil
// field falls back to its default while any set value, zero or not, is used
// as given.
type Options struct {
	PageTitle           *string  `yaml:"pageTitle" json:"pageTitle"`
	BodyBackgroundColor *string  `yaml:"bodyBackgroundColor" json:"bodyBackgroundColor"`
	BodyFontColor       *string  `yaml:"bodyFontColor" json:"bodyFontColor"`
	ImgBorderRadius     *string  `yaml:"imgBorderRadius" json:"imgBorderRadius"`
	ImgFileNames        []string `yaml:"imgFileNames" json:"imgFileNames"`
	Automatic404Image   *bool    `yaml:"automatic404Image" json:"automatic404Image"`
	ImgBoxShadow        *bool    `yaml:"imgBoxShadow" json:"imgBoxShadow"`
	ImgBoxShadowSize    *string  `yaml:"imgBoxShadowSize" json:"imgBoxShadowSize"`
	ImgBoxShadowColor   *string  `yaml:"imgBoxShadowColor" json:"imgBoxShadowColor"`
	BtnColor            *string  `yaml:"btnColor" json:"btnColor"`
	BtnPulsate          *bool    `yaml:"btnPulsate" json:"btnPulsate"`
	BtnPulsateCount     *int     `yaml:"btnPulsateCount" json:"btnPulsateCount"`
	BtnDisplayText      *string  `yaml:"btnDisplayText" json:"btnDisplayText"`
	BtnDisplayHostName  *bool    `yaml:"btnDisplayHostName" json:"btnDisplayHostName"`
	ActionIsBtn         *bool    `yaml:"actionIsBtn" json:"actionIsBtn"`
	HeaderText          *string  `yaml:"headerText" json:"headerText"`
	HeaderTextPosition  *string  `yaml:"headerTextPosition" json:"headerTextPosition"`
	SubHeaderText       *string  `yaml:"subHeaderText" json:"subHeaderText"`
	WatermarkText       *string  `yaml:"watermarkText" json:"watermarkText"`
}

// Settings are Options with every default applied.
type Settings struct {
	PageTitle           string
	BodyBackgroundColor string
	BodyFontColor       string
	ImgBorderRadius     string
	ImgFileNames        []string
	Automatic404Image   bool
	ImgBoxShadow        bool
	ImgBoxShadowSize    string
	ImgBoxShadowColor   string
	BtnColor            string
	BtnPulsate          bool
	BtnPulsateCount     int
	BtnDisplayText      string
	BtnDisplayHostName  bool
	ActionIsBtn         bool
	HeaderText          string
	HeaderTextPosition  string
	SubHeaderText       string
	WatermarkText       string
}

// Defaults are the settings used for every option the caller leaves out.
var Defaults = Settings{
	PageTitle:           "404 - Not Found",
	BodyBackgroundColor: "white",
	BodyFontColor:       "black",
	ImgBorderRadius:     "50%",
	ImgFileNames:        []string{"/errors/404-1.webp", "/errors/404-2.webp", "/errors/404-3.webp"},
	Automatic404Image:   false,
	ImgBoxShadow:        false,
	ImgBoxShadowSize:    "5px",
	ImgBoxShadowColor:   "rgba(255, 255, 255, 1)",
	BtnColor:            "blue",
	BtnPulsate:          true,
	BtnPulsateCount:     2,
	BtnDisplayText:      "Back to",
	BtnDisplayHostName:  true,
	ActionIsBtn:         true,
	HeaderText:          "404 - File not found",
	HeaderTextPosition:  "top",
	SubHeaderText:       "",
	WatermarkText:       "© rjl.codes",
}

// Value returns *p, or fallback when p is nil.
func Value[T any](p *T, fallback T) T {
	if p != nil {
		return *p
	}
	return fallback
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// Resolve applies Defaults to every unset option.
func (o Options) Resolve() Settings {
	d := Defaults
	files := d.ImgFileNames
	if o.ImgFileNames != nil {
		files = o.ImgFileNames
	}
	return Settings{
		PageTitle:           Value(o.PageTitle, d.PageTitle),
		BodyBackgroundColor: Value(o.BodyBackgroundColor, d.BodyBackgroundColor),
		BodyFontColor:       Value(o.BodyFontColor, d.BodyFontColor),
		ImgBorderRadius:     Value(o.ImgBorderRadius, d.ImgBorderRadius),
		ImgFileNames:        append([]string(nil), files...),
		Automatic404Image:   Value(o.Automatic404Image, d.Automatic404Image),
		ImgBoxShadow:        Value(o.ImgBoxShadow, d.ImgBoxShadow),
		ImgBoxShadowSize:    Value(o.ImgBoxShadowSize, d.ImgBoxShadowSize),
		ImgBoxShadowColor:   Value(o.ImgBoxShadowColor, d.ImgBoxShadowColor),
		BtnColor:            Value(o.BtnColor, d.BtnColor),
		BtnPulsate:          Value(o.BtnPulsate, d.BtnPulsate),
		BtnPulsateCount:     Value(o.BtnPulsateCount, d.BtnPulsateCount),
		BtnDisplayText:      Value(o.BtnDisplayText, d.BtnDisplayText),
		BtnDisplayHostName:  Value(o.BtnDisplayHostName, d.BtnDisplayHostName),
		ActionIsBtn:         Value(o.ActionIsBtn, d.ActionIsBtn),
		HeaderText:          Value(o.HeaderText, d.HeaderText),
		HeaderTextPosition:  Value(o.HeaderTextPosition, d.HeaderTextPosition),
		SubHeaderText:       Value(o.SubHeaderText, d.SubHeaderText),
		WatermarkText:       Value(o.WatermarkText, d.WatermarkText),
	}
}

// LoadOptions reads page options from a YAML or JSON file. An empty path
// yields empty Options.
func LoadOptions(path string) (Options, error) {
	var o Options
	if path == "" {
		return o, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return o, fmt.Errorf("read options: %w", err)
	}
	if err := yaml.Unmarshal(b, &o); err != nil {
		return o, fmt.Errorf("parse options %s: %w", path, err)
	}
	return o, nil
}
