// Package query is the page-scoped query cache. The page generator fills a
// Store on the server and serializes it with Dehydrate; the client installs
// that payload once with Hydrate and then reads through a Client, which
// fetches live only what the payload did not carry.
package query

import (
	"sort"
	"sync"
	"time"

	"github.com/leggettc18/chirp/querykey"
)

// Status of a cache entry.
type Status int

const (
	StatusPending Status = iota
	StatusSuccess
	StatusNotFound
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusNotFound:
		return "notfound"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, bool) {
	for _, st := range []Status{StatusPending, StatusSuccess, StatusNotFound, StatusError} {
		if st.String() == s {
			return st, true
		}
	}
	return StatusPending, false
}

// Entry is one cached query result. Data holds a value of the wire domain.
type Entry struct {
	Key       querykey.Key
	Procedure string
	Input     any
	Status    Status
	Data      any
	Err       error
	UpdatedAt time.Time
	Hydrated  bool
}

// Resolved reports whether the entry is a final answer that needs no fetch.
func (e Entry) Resolved() bool {
	return e.Status == StatusSuccess || e.Status == StatusNotFound
}

// Store maps canonical keys to entries. It is safe for concurrent use and
// is meant to live exactly as long as one page.
type Store struct {
	mu       sync.RWMutex
	entries  map[querykey.Key]Entry
	hydrated bool
}

func NewStore() *Store {
	return &Store{entries: make(map[querykey.Key]Entry)}
}

func (s *Store) Get(key querykey.Key) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok
}

func (s *Store) Set(e Entry) {
	s.mu.Lock()
	s.entries[e.Key] = e
	s.mu.Unlock()
}

func (s *Store) Delete(key querykey.Key) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Entries returns a snapshot ordered by key text.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}
