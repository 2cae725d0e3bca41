package session

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Store keeps recent sessions so refresh and image requests can find them.
type Store struct {
	sessions *expirable.LRU[string, *Session]
}

func NewStore(size int, ttl time.Duration) *Store {
	return &Store{
		sessions: expirable.NewLRU[string, *Session](size, nil, ttl),
	}
}

func (st *Store) Add(s *Session) {
	st.sessions.Add(s.ID, s)
}

func (st *Store) Get(id string) (*Session, bool) {
	return st.sessions.Get(id)
}

func (st *Store) Len() int {
	return st.sessions.Len()
}
