package query

import (
	"errors"
	"fmt"
	"time"

	"github.com/leggettc18/chirp/procedure"
	"github.com/leggettc18/chirp/querykey"
	"github.com/leggettc18/chirp/wire"
)

// ErrAlreadyHydrated is returned by a second Hydrate on the same Store.
var ErrAlreadyHydrated = errors.New("query: store already hydrated")

// DehydratedQuery is the serialized form of one resolved entry.
type DehydratedQuery struct {
	Procedure string    `json:"procedure"`
	Input     any       `json:"input"`
	Hash      string    `json:"queryHash"`
	Status    string    `json:"status"`
	Data      any       `json:"data"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"dataUpdatedAt"`
}

// DehydratedState is the payload embedded in a generated page.
type DehydratedState struct {
	Queries []DehydratedQuery `json:"queries"`
}

// Dehydrate snapshots every resolved entry. Pending and failed entries are
// left out: the client will fetch them itself.
func (s *Store) Dehydrate() DehydratedState {
	state := DehydratedState{Queries: []DehydratedQuery{}}
	for _, e := range s.Entries() {
		if !e.Resolved() {
			continue
		}
		q := DehydratedQuery{
			Procedure: e.Procedure,
			Input:     e.Input,
			Hash:      e.Key.Hash(),
			Status:    e.Status.String(),
			Data:      e.Data,
			UpdatedAt: e.UpdatedAt,
		}
		var nf *procedure.NotFoundError
		if e.Status == StatusNotFound && errors.As(e.Err, &nf) {
			q.Error = nf.Message
		}
		state.Queries = append(state.Queries, q)
	}
	return state
}

// Encode dehydrates s into wire bytes.
func (s *Store) Encode() ([]byte, error) {
	return wire.Encode(s.Dehydrate())
}

// Hydrate installs a dehydrated payload into store. It runs at most once per
// store, and installs everything or nothing. An empty payload is valid and
// installs nothing. It returns the number of entries installed.
func Hydrate(store *Store, payload []byte) (int, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.hydrated {
		return 0, ErrAlreadyHydrated
	}
	store.hydrated = true
	if len(payload) == 0 {
		return 0, nil
	}

	entries, err := decodeState(payload)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		store.entries[e.Key] = e
	}
	return len(entries), nil
}

func decodeState(payload []byte) ([]Entry, error) {
	v, err := wire.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("query: hydrate: %w", err)
	}
	root, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("query: hydrate: payload is %T, want object", v)
	}
	list, ok := root["queries"].([]any)
	if !ok && root["queries"] != nil {
		return nil, fmt.Errorf("query: hydrate: queries is %T, want list", root["queries"])
	}

	entries := make([]Entry, 0, len(list))
	for i, item := range list {
		q, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("query: hydrate: query %d is %T", i, item)
		}
		proc, _ := q["procedure"].(string)
		key, err := querykey.For(proc, q["input"])
		if err != nil {
			return nil, fmt.Errorf("query: hydrate: query %d: %w", i, err)
		}
		statusText, _ := q["status"].(string)
		status, ok := ParseStatus(statusText)
		if !ok || (status != StatusSuccess && status != StatusNotFound) {
			return nil, fmt.Errorf("query: hydrate: query %d: unexpected status %q", i, statusText)
		}
		e := Entry{
			Key:       key,
			Procedure: proc,
			Input:     q["input"],
			Status:    status,
			Data:      q["data"],
			Hydrated:  true,
		}
		if at, ok := q["dataUpdatedAt"].(time.Time); ok {
			e.UpdatedAt = at
		}
		if status == StatusNotFound {
			msg, _ := q["error"].(string)
			e.Err = &procedure.NotFoundError{Procedure: proc, Message: msg}
		}
		entries = append(entries, e)
	}
	return entries, nil
}
