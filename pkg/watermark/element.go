package watermark

import (
	"slices"
	"sync"
)

// Phase tells which variant an element is showing.
type Phase int

const (
	PhaseWatermarked Phase = iota
	PhaseRaw
)

func (p Phase) String() string {
	if p == PhaseRaw {
		return "raw"
	}
	return "watermarked"
}

// Snapshot is the visible state of an Element.
type Snapshot struct {
	Src      string
	Phase    Phase
	Width    int
	Height   int
	Blurhash string
}

// Element is a live image element: a mutable source plus at most one
// pending load handler. Installing a handler replaces the previous one.
// Watchers see changes in the order they were stored.
type Element struct {
	notify   sync.Mutex
	mu       sync.Mutex
	snap     Snapshot
	handler  uint64
	raw      string
	seq      uint64
	watchers []func(Snapshot)
}

// NewElement returns an element displaying img.
func NewElement(img *Image) *Element {
	return &Element{snap: img.snapshot()}
}

func (e *Element) Src() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap.Src
}

func (e *Element) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap
}

// Pending reports whether a load handler is installed.
func (e *Element) Pending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handler != 0
}

// OnChange registers fn to run after every source assignment. fn must not
// refresh the element.
func (e *Element) OnChange(fn func(Snapshot)) {
	e.mu.Lock()
	e.watchers = append(e.watchers, fn)
	e.mu.Unlock()
}

// begin installs a new load handler for src, replacing any previous one,
// and shows src as the raw variant. It returns the handler id.
func (e *Element) begin(src string) uint64 {
	e.notify.Lock()
	defer e.notify.Unlock()

	e.mu.Lock()
	e.seq++
	id := e.seq
	e.handler = id
	e.raw = src
	e.snap = Snapshot{Src: src, Phase: PhaseRaw}
	s, watchers := e.snap, slices.Clone(e.watchers)
	e.mu.Unlock()

	deliver(watchers, s)
	return id
}

// fire detaches handler id if it is still the installed one and returns the
// raw source it was installed for.
func (e *Element) fire(id uint64) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handler != id {
		return "", false
	}
	e.handler = 0
	return e.raw, true
}

// assign shows img unless a handler newer than id has been installed since.
func (e *Element) assign(id uint64, img *Image) bool {
	e.notify.Lock()
	defer e.notify.Unlock()

	e.mu.Lock()
	if id != e.seq {
		e.mu.Unlock()
		return false
	}
	e.snap = img.snapshot()
	s, watchers := e.snap, slices.Clone(e.watchers)
	e.mu.Unlock()

	deliver(watchers, s)
	return true
}

func deliver(watchers []func(Snapshot), s Snapshot) {
	for _, fn := range watchers {
		fn(s)
	}
}
