package engine

import (
	"sync"

	"featurestream/internal/model"
)

// CustomerState owns one customer's date-keyed daily buckets and the last
// computed feature snapshot. Created lazily on the first valid event and
// never destroyed.
type CustomerState struct {
	buckets  map[string]*model.DailyBucket
	features model.FeatureSnapshot
}

// AggregateStore holds all per-customer state. Bucket values only ever grow;
// eviction removes whole buckets, never decrements them, so final bucket
// contents are independent of event arrival order.
type AggregateStore struct {
	mu        sync.RWMutex
	customers map[string]*CustomerState
}

func NewAggregateStore() *AggregateStore {
	return &AggregateStore{customers: make(map[string]*CustomerState)}
}

func (s *AggregateStore) getOrCreate(customerID string) *CustomerState {
	cs, ok := s.customers[customerID]
	if !ok {
		cs = &CustomerState{buckets: make(map[string]*model.DailyBucket)}
		s.customers[customerID] = cs
	}
	return cs
}

// Accumulate adds amount to the customer's bucket for dateKey and increments
// its count, creating customer state and bucket as needed.
func (s *AggregateStore) Accumulate(customerID, dateKey string, amount float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := s.getOrCreate(customerID)
	b, ok := cs.buckets[dateKey]
	if !ok {
		b = &model.DailyBucket{}
		cs.buckets[dateKey] = b
	}
	b.AmountSum += amount
	b.Count++
}

// EvictBefore deletes every bucket with a date strictly earlier than
// cutoffKey and returns how many were removed. Keys are ISO dates, so string
// comparison is date comparison.
func (s *AggregateStore) EvictBefore(customerID, cutoffKey string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.customers[customerID]
	if !ok {
		return 0
	}
	evicted := 0
	for dateKey := range cs.buckets {
		if dateKey < cutoffKey {
			delete(cs.buckets, dateKey)
			evicted++
		}
	}
	return evicted
}

// Features returns the customer's last computed snapshot, if the customer
// exists.
func (s *AggregateStore) Features(customerID string) (model.FeatureSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.customers[customerID]
	if !ok {
		return model.FeatureSnapshot{}, false
	}
	return cs.features, true
}

func (s *AggregateStore) SetFeatures(customerID string, snap model.FeatureSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreate(customerID).features = snap
}

// Buckets returns a copy of the customer's current buckets.
func (s *AggregateStore) Buckets(customerID string) map[string]model.DailyBucket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.customers[customerID]
	if !ok {
		return nil
	}
	out := make(map[string]model.DailyBucket, len(cs.buckets))
	for k, b := range cs.buckets {
		out[k] = *b
	}
	return out
}

// Export snapshots every customer into the persisted-state shape.
func (s *AggregateStore) Export() map[string]model.CustomerExport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.CustomerExport, len(s.customers))
	for id, cs := range s.customers {
		sums := make(map[string]model.DailyBucket, len(cs.buckets))
		for k, b := range cs.buckets {
			sums[k] = *b
		}
		out[id] = model.CustomerExport{DailySums: sums, Features: cs.features}
	}
	return out
}

func (s *AggregateStore) CustomerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.customers)
}

func (s *AggregateStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers = make(map[string]*CustomerState)
}
