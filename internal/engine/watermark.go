package engine

import (
	"sync"
	"time"
)

// Watermark tracks the maximum event time observed across all successfully
// ingested events. It is undefined until the first observation; callers must
// branch on the defined flag rather than on a sentinel value.
//
// The watermark is global, shared by every customer. A burst of recent
// events for one customer can therefore trigger eviction of old buckets for
// another whose own traffic lags behind.
type Watermark struct {
	mu      sync.Mutex
	ts      time.Time
	defined bool
}

func NewWatermark() *Watermark {
	return &Watermark{}
}

// Observe advances the watermark to ts if it is later than the current
// maximum, defining it on the first call. Observations arrive in processing
// order, which may differ from event-time order; the watermark itself is
// monotonic non-decreasing.
func (w *Watermark) Observe(ts time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.defined || ts.After(w.ts) {
		w.ts = ts
		w.defined = true
	}
}

func (w *Watermark) Current() (time.Time, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ts, w.defined
}

func (w *Watermark) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ts = time.Time{}
	w.defined = false
}
