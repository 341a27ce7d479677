// Package drops keeps a bounded in-memory record of recently dropped events
// so operators can diagnose bad producers without grepping logs.
package drops

import (
	"sync"
	"time"
)

type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
	EventID   string    `json:"event_id,omitempty"`
	Detail    string    `json:"detail"`
}

type Store struct {
	mu    sync.RWMutex
	buf   []Record
	limit int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 1000
	}
	return &Store{limit: limit}
}

func (s *Store) Add(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) < s.limit {
		s.buf = append(s.buf, rec)
		return
	}
	copy(s.buf, s.buf[1:])
	s.buf[len(s.buf)-1] = rec
}

// List returns the most recent records, oldest first. limit <= 0 returns all.
func (s *Store) List(limit int) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.buf) {
		limit = len(s.buf)
	}
	out := make([]Record, 0, limit)
	for i := len(s.buf) - limit; i < len(s.buf); i++ {
		out = append(out, s.buf[i])
	}
	return out
}

func (s *Store) Since(ts time.Time) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0)
	for _, r := range s.buf {
		if !r.Timestamp.Before(ts) {
			out = append(out, r)
		}
	}
	return out
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = nil
}
