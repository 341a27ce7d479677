// Package normalize validates raw transaction events at the ingestion
// boundary and converts them into typed events. Every failure mode is one of
// the drop errors in errors.go; none of them is fatal to the stream.
package normalize

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"featurestream/internal/model"
)

var requiredFields = []string{"event_id", "customer_id", "event_time", "event_type", "amount"}

// CheckRequired verifies that every required field is present. It does not
// inspect values; presence only.
func CheckRequired(raw model.RawEvent) error {
	var missing []string
	for _, f := range requiredFields {
		if _, ok := raw[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &MissingFieldError{Fields: missing}
	}
	return nil
}

// CheckCustomerID enforces the C### shape: a string of exactly 4 characters,
// 'C' followed by 3 decimal digits.
func CheckCustomerID(v any) (string, error) {
	id, ok := v.(string)
	if !ok {
		return "", &InvalidCustomerIDError{Value: fmt.Sprint(v)}
	}
	if len(id) != 4 || id[0] != 'C' {
		return "", &InvalidCustomerIDError{Value: id}
	}
	for i := 1; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return "", &InvalidCustomerIDError{Value: id}
		}
	}
	return id, nil
}

// EventID renders the event_id field as a string key for the dedup ledger.
func EventID(raw model.RawEvent) string {
	return fmt.Sprint(raw["event_id"])
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseEventTime parses an ISO-8601 event_time value. A trailing Z is
// accepted as UTC; timestamps without an offset are taken as UTC.
func ParseEventTime(v any) (time.Time, error) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, &InvalidTimestampError{Value: fmt.Sprint(v)}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, &InvalidTimestampError{Value: s}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &InvalidTimestampError{Value: s}
}

// ParseAmount converts the amount field to a non-negative float. JSON
// numbers arrive as float64; numeric strings are accepted as well.
func ParseAmount(v any) (float64, error) {
	var amount float64
	switch n := v.(type) {
	case float64:
		amount = n
	case int:
		amount = float64(n)
	case int64:
		amount = float64(n)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, &InvalidAmountError{Value: n}
		}
		amount = f
	default:
		return 0, &InvalidAmountError{Value: fmt.Sprint(v)}
	}
	if amount < 0 {
		return 0, &InvalidAmountError{Value: fmt.Sprint(v), Negative: true}
	}
	return amount, nil
}

// ParseEvent runs the value-level stages (timestamp, then amount) and returns
// the typed event. Field presence and customer id shape must already have
// been checked.
func ParseEvent(raw model.RawEvent, customerID string) (model.Event, error) {
	ts, err := ParseEventTime(raw["event_time"])
	if err != nil {
		return model.Event{}, err
	}
	amount, err := ParseAmount(raw["amount"])
	if err != nil {
		return model.Event{}, err
	}
	return model.Event{
		ID:         EventID(raw),
		CustomerID: customerID,
		Time:       ts,
		Type:       fmt.Sprint(raw["event_type"]),
		Amount:     amount,
	}, nil
}
