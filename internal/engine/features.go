package engine

import (
	"math"

	"featurestream/internal/model"
)

// Derive recomputes the customer's feature snapshot from whatever buckets
// currently remain, caches it on the customer state, and returns it. A
// customer with no buckets (fully evicted, or just created) gets the zero
// snapshot.
func (s *AggregateStore) Derive(customerID string) model.FeatureSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := s.getOrCreate(customerID)

	if len(cs.buckets) == 0 {
		cs.features = model.FeatureSnapshot{}
		return cs.features
	}

	totalTxn := 0
	totalAmount := 0.0
	for _, b := range cs.buckets {
		totalTxn += b.Count
		totalAmount += b.AmountSum
	}

	cs.features = model.FeatureSnapshot{
		TotalTxn30d:    totalTxn,
		TotalAmount30d: round2(totalAmount),
		AvgAmount30d:   round2(totalAmount / float64(totalTxn)),
	}
	return cs.features
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
