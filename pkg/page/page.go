// Package page builds the not-found document.
package page

import (
	"errors"
	"io"
	"strconv"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/CodeTease/custom404/pkg/config"
	"github.com/CodeTease/custom404/pkg/watermark"
)

var (
	slotSelector  = cascadia.MustCompile("a#goHomeLink")
	imageSelector = cascadia.MustCompile("img.custom404-img")
)

// ErrNoSlot is returned when the document has no image slot.
var ErrNoSlot = errors.New("page: image slot not found")

// Document is a rendered-on-demand 404 page. It is safe for concurrent use.
type Document struct {
	mu       sync.Mutex
	root     *html.Node
	settings config.Settings
	host     string
}

type Option func(*buildOptions)

type buildOptions struct {
	refreshURL string
}

// WithRefreshURL advertises the refresh endpoint on the image slot.
func WithRefreshURL(u string) Option {
	return func(o *buildOptions) { o.refreshURL = u }
}

// New builds the document for settings s. host is the hostname shown on the
// action element.
func New(s config.Settings, host string, opts ...Option) *Document {
	var bo buildOptions
	for _, opt := range opts {
		opt(&bo)
	}

	d := &Document{settings: s, host: host}

	head := element(atom.Head,
		element(atom.Meta, attr("charset", "utf-8")),
		element(atom.Meta, attr("name", "viewport"), attr("content", "width=device-width, initial-scale=1")),
		withText(element(atom.Title), s.PageTitle),
		withText(element(atom.Style), StyleSheet(s)),
	)

	text := element(atom.Div, attr("style", inline(
		decl{"display", "flex"},
		decl{"flex-direction", "column"},
		decl{"align-items", "center"},
		decl{"justify-content", "flex-start"},
	)))
	text.AppendChild(withText(element(atom.H3, attr("style", inline(
		decl{"font-size", "2em"},
		decl{"margin", "10px 0"},
	))), s.HeaderText))
	if s.SubHeaderText != "" {
		text.AppendChild(withText(element(atom.P, attr("style", inline(
			decl{"font-size", "1.2em"},
			decl{"margin", "5px 0"},
			decl{"color", subHeaderColor(s.BodyFontColor)},
		))), s.SubHeaderText))
	}
	text.AppendChild(d.action())

	slot := element(atom.A,
		attr("href", "/"),
		attr("id", "goHomeLink"),
		attr("title", "Go to "+host),
	)
	if bo.refreshURL != "" {
		slot.Attr = append(slot.Attr, attr("data-refresh", bo.refreshURL))
	}

	container := element(atom.Div, attr("style", inline(
		decl{"text-align", "center"},
		decl{"font-family", "Arial, sans-serif"},
		decl{"display", "flex"},
		decl{"flex-direction", flexDirection(s.HeaderTextPosition)},
		decl{"align-items", "center"},
		decl{"justify-content", "center"},
		decl{"gap", "20px"},
	)))
	if s.HeaderTextPosition == "top" {
		container.AppendChild(text)
		container.AppendChild(slot)
	} else {
		container.AppendChild(slot)
		container.AppendChild(text)
	}

	body := element(atom.Body,
		attr("style", inline(
			decl{"background-color", s.BodyBackgroundColor},
			decl{"color", s.BodyFontColor},
		)),
		attr("oncontextmenu", "return false;"),
	)
	body.AppendChild(container)

	doc := &html.Node{Type: html.DocumentNode}
	doc.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})
	doc.AppendChild(element(atom.Html, head, body))
	d.root = doc
	return d
}

func (d *Document) action() *html.Node {
	s := d.settings
	label := s.BtnDisplayText
	if s.BtnDisplayHostName {
		label = label + " " + d.host
	}
	title := "Go to " + d.host

	if !s.ActionIsBtn {
		return withText(element(atom.A,
			attr("href", "/"),
			attr("title", title),
			attr("style", inline(
				decl{"color", "inherit"},
				decl{"text-decoration", "underline"},
				decl{"font-size", "1.2em"},
			)),
		), label)
	}

	styles := []decl{
		{"background-color", s.BtnColor},
		{"color", "white"},
		{"padding", "15px 30px"},
		{"font-size", "1.2em"},
		{"border", "none"},
		{"cursor", "pointer"},
		{"margin-top", "5px"},
		{"border-radius", "10px"},
	}
	if s.BtnPulsate {
		styles = append(styles, decl{"animation", pulsation(s)})
	}
	btn := withText(element(atom.Button,
		attr("type", "submit"),
		attr("title", title),
		attr("style", inline(styles...)),
	), label)
	return element(atom.Form,
		attr("action", "/"),
		attr("method", "get"),
		attr("style", "margin: 0"),
		btn,
	)
}

// AttachImage shows snap in the image slot, creating the image element on
// first use.
func (d *Document) AttachImage(snap watermark.Snapshot) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	img := imageSelector.MatchFirst(d.root)
	if img == nil {
		slot := slotSelector.MatchFirst(d.root)
		if slot == nil {
			return ErrNoSlot
		}
		img = element(atom.Img)
		slot.AppendChild(img)
	}
	img.Attr = d.imageAttrs(snap)
	return nil
}

func (d *Document) imageAttrs(snap watermark.Snapshot) []html.Attribute {
	attrs := []html.Attribute{
		attr("src", snap.Src),
		attr("alt", "404 Error"),
		attr("class", "custom404-img"),
		attr("style", inline(
			decl{"max-width", "100%"},
			decl{"height", "auto"},
			decl{"margin", "35px 35px 0px 35px"},
			decl{"display", "block"},
			decl{"border-radius", d.settings.ImgBorderRadius},
			decl{"-webkit-user-select", "none"},
			decl{"-moz-user-select", "none"},
			decl{"-ms-user-select", "none"},
			decl{"user-select", "none"},
		)),
		attr("ondragstart", "return false;"),
		attr("oncontextmenu", "return false;"),
		attr("data-phase", snap.Phase.String()),
	}
	if snap.Width > 0 && snap.Height > 0 {
		attrs = append(attrs,
			attr("width", strconv.Itoa(snap.Width)),
			attr("height", strconv.Itoa(snap.Height)),
		)
	}
	if snap.Blurhash != "" {
		attrs = append(attrs, attr("data-blurhash", snap.Blurhash))
	}
	return attrs
}

// HasImage reports whether an image has been attached.
func (d *Document) HasImage() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return imageSelector.MatchFirst(d.root) != nil
}

func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}

func element(a atom.Atom, parts ...any) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	for _, p := range parts {
		switch v := p.(type) {
		case html.Attribute:
			n.Attr = append(n.Attr, v)
		case *html.Node:
			n.AppendChild(v)
		}
	}
	return n
}

func attr(key, val string) html.Attribute {
	return html.Attribute{Key: key, Val: val}
}

func withText(n *html.Node, s string) *html.Node {
	n.AppendChild(&html.Node{Type: html.TextNode, Data: s})
	return n
}
