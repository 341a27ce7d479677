package engine

import (
	"time"

	"featurestream/internal/model"
	"featurestream/internal/normalize"
)

// WindowKey identifies one tumbling window: the event time truncated to the
// window boundary. Keying on the embedded timestamp, not arrival time, makes
// batching reproducible under any delivery order.
type WindowKey struct {
	Year   int
	Month  time.Month
	Day    int
	Hour   int
	Minute int
}

// WindowKeyFor truncates ts (in UTC) to the start of its tumbling window.
// The window size is taken in whole minutes and must divide an hour evenly
// for windows to tumble without overlap.
func WindowKeyFor(ts time.Time, window time.Duration) WindowKey {
	minutes := int(window.Minutes())
	if minutes <= 0 {
		minutes = 5
	}
	t := ts.UTC()
	return WindowKey{
		Year:   t.Year(),
		Month:  t.Month(),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute() / minutes * minutes,
	}
}

// BatchByTimeWindow groups a finite raw event sequence into tumbling windows
// by embedded event time, and by customer within each window. Events keep
// their input order inside each (window, customer) list. Entries whose
// event_time or customer_id cannot be read are skipped; the batcher runs
// before validation and must stay total over dirty input.
//
// Iteration order over the result is unspecified; callers needing
// deterministic firing order must sort the window keys themselves.
func BatchByTimeWindow(events []model.RawEvent, window time.Duration) map[WindowKey]map[string][]model.RawEvent {
	batches := make(map[WindowKey]map[string][]model.RawEvent)
	for _, raw := range events {
		ts, err := normalize.ParseEventTime(raw["event_time"])
		if err != nil {
			continue
		}
		customerID, ok := raw["customer_id"].(string)
		if !ok || customerID == "" {
			continue
		}
		key := WindowKeyFor(ts, window)
		byCustomer, ok := batches[key]
		if !ok {
			byCustomer = make(map[string][]model.RawEvent)
			batches[key] = byCustomer
		}
		byCustomer[customerID] = append(byCustomer[customerID], raw)
	}
	return batches
}
