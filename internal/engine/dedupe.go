package engine

import "sync"

// Ledger tracks every event id that reached the mark-seen stage. Membership
// lives for the process lifetime; there is no TTL or compaction, so the set
// grows with the stream.
type Ledger struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewLedger() *Ledger {
	return &Ledger{seen: make(map[string]struct{})}
}

func (l *Ledger) IsDuplicate(eventID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.seen[eventID]
	return ok
}

func (l *Ledger) MarkSeen(eventID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen[eventID] = struct{}{}
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}
