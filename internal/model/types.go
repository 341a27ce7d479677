package model

import "time"

// RawEvent is a transaction event as received from a source, before any
// validation. Field values keep whatever JSON type the producer sent.
type RawEvent map[string]any

// Event is a raw event that passed boundary validation.
type Event struct {
	ID         string    `json:"event_id"`
	CustomerID string    `json:"customer_id"`
	Time       time.Time `json:"event_time"`
	Type       string    `json:"event_type"`
	Amount     float64   `json:"amount"`
}

// DailyBucket accumulates one customer's transactions for a single UTC
// calendar date. Only accumulation mutates it; eviction deletes whole buckets.
type DailyBucket struct {
	AmountSum float64 `json:"amount"`
	Count     int     `json:"count"`
}

// FeatureSnapshot is the rolling 30-day summary derived from a customer's
// retained buckets. All three fields are zero when no buckets remain.
type FeatureSnapshot struct {
	TotalTxn30d    int     `json:"total_txn_30d"`
	TotalAmount30d float64 `json:"total_amount_30d"`
	AvgAmount30d   float64 `json:"avg_amount_30d"`
}

// CustomerExport is the persisted-state shape for one customer:
// date string -> bucket, plus the last computed features.
type CustomerExport struct {
	DailySums map[string]DailyBucket `json:"daily_sums"`
	Features  FeatureSnapshot        `json:"features"`
}

// DateLayout keys DailyBuckets. ISO dates compare lexicographically, so
// string comparison on keys is equivalent to date comparison.
const DateLayout = "2006-01-02"

// DateKey returns the UTC calendar date key for an event time.
func DateKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}
