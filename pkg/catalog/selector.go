// Package catalog draws image identifiers from a fixed catalog.
//
// A Selector keeps a shuffled working pool of the catalog and hands out its
// last element on every draw, so no identifier repeats until the whole
// catalog has been shown. When the pool runs dry it is rebuilt from a fresh
// permutation. Callers that bring their own list can use Pick instead, which
// is a plain uniform draw with replacement.
package catalog

import (
	"errors"
	"math/rand/v2"
	"sync"

	"github.com/CodeTease/custom404/pkg/metrics"
)

// ErrInvalidCatalog is returned when a selector is given no identifiers.
var ErrInvalidCatalog = errors.New("catalog: empty image catalog")

// Selector is safe for concurrent use.
type Selector struct {
	mu      sync.Mutex
	catalog []string
	pool    []string
	rnd     *rand.Rand
}

// Option configures a Selector.
type Option func(*Selector)

// WithRand sets the random source used for shuffles and picks.
func WithRand(r *rand.Rand) Option {
	return func(s *Selector) {
		s.rnd = r
	}
}

// New builds a selector whose working pool is a uniform permutation of catalog.
// The catalog is copied.
func New(catalog []string, opts ...Option) (*Selector, error) {
	if len(catalog) == 0 {
		return nil, ErrInvalidCatalog
	}
	s := &Selector{
		catalog: append([]string(nil), catalog...),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rnd == nil {
		s.rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	s.reset()
	return s, nil
}

// Len returns the catalog size.
func (s *Selector) Len() int {
	return len(s.catalog)
}

// Remaining returns the number of identifiers left in the current pass.
func (s *Selector) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pool)
}

// DrawNext removes and returns the last identifier of the working pool,
// reshuffling the full catalog first if the pool is empty.
func (s *Selector) DrawNext() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pool) == 0 {
		s.reset()
		metrics.CatalogReshufflesTotal.Inc()
	}
	last := len(s.pool) - 1
	id := s.pool[last]
	s.pool = s.pool[:last]
	metrics.CatalogDrawsTotal.WithLabelValues("pool").Inc()
	return id
}

// Pick returns a uniformly random element of list. Nothing is tracked
// between picks.
func (s *Selector) Pick(list []string) (string, error) {
	if len(list) == 0 {
		return "", ErrInvalidCatalog
	}
	s.mu.Lock()
	i := s.rnd.IntN(len(list))
	s.mu.Unlock()
	metrics.CatalogDrawsTotal.WithLabelValues("pick").Inc()
	return list[i], nil
}

// Draw uses the working pool when automatic is set and picks from list
// otherwise.
func (s *Selector) Draw(automatic bool, list []string) (string, error) {
	if automatic {
		return s.DrawNext(), nil
	}
	return s.Pick(list)
}

// reset is called with mu held.
func (s *Selector) reset() {
	s.pool = append(s.pool[:0], s.catalog...)
	shuffle(s.pool, s.rnd)
}

// shuffle is Fisher-Yates from the last index down.
func shuffle(a []string, r *rand.Rand) {
	for i := len(a) - 1; i > 0; i-- {
		j := r.IntN(i + 1)
		a[i], a[j] = a[j], a[i]
	}
}
