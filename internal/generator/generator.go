// Package generator produces a synthetic transaction stream for replay and
// load testing: a deterministic (under a fixed seed) sequence of events with
// configurable duplicate and out-of-order rates. The engine consumes its
// output only as a raw event sequence.
package generator

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"featurestream/internal/config"
	"featurestream/internal/model"
)

// Stream builds the full event sequence. Event times are spread uniformly
// over the past MaxAgeDays relative to now. A DuplicateRate fraction of
// events is immediately followed by an exact copy (same event_id), and with
// probability OutOfOrderRate the whole sequence is shuffled to simulate
// out-of-order delivery.
func Stream(cfg config.GeneratorConfig, now time.Time) []model.RawEvent {
	s := seed(cfg)
	rng := rand.New(rand.NewSource(s))
	faker := gofakeit.New(s)

	events := make([]model.RawEvent, 0, cfg.Customers*cfg.EventsPerCustomer)
	for c := 0; c < cfg.Customers; c++ {
		customerID := fmt.Sprintf("C%03d", c)
		for i := 0; i < cfg.EventsPerCustomer; i++ {
			age := time.Duration(rng.Intn(cfg.MaxAgeDays+1)) * 24 * time.Hour
			eventTime := now.UTC().Add(-age)
			amount := cfg.MinAmount + rng.Float64()*(cfg.MaxAmount-cfg.MinAmount)

			ev := model.RawEvent{
				"event_id":    uuidFrom(rng),
				"customer_id": customerID,
				"event_time":  eventTime.Format(time.RFC3339Nano),
				"event_type":  "transaction",
				"amount":      math.Round(amount*100) / 100,
				"merchant":    faker.Company(),
			}
			events = append(events, ev)

			if rng.Float64() < cfg.DuplicateRate {
				events = append(events, copyEvent(ev))
			}
		}
	}

	if rng.Float64() < cfg.OutOfOrderRate {
		rng.Shuffle(len(events), func(i, j int) {
			events[i], events[j] = events[j], events[i]
		})
	}
	return events
}

func seed(cfg config.GeneratorConfig) int64 {
	if cfg.Seed != 0 {
		return cfg.Seed
	}
	return time.Now().UnixNano()
}

// uuidFrom derives the event id from the stream's own source so that a fixed
// seed yields a reproducible sequence.
func uuidFrom(rng *rand.Rand) string {
	var b [16]byte
	_, _ = rng.Read(b[:])
	id, err := uuid.FromBytes(b[:])
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func copyEvent(ev model.RawEvent) model.RawEvent {
	dup := make(model.RawEvent, len(ev))
	for k, v := range ev {
		dup[k] = v
	}
	return dup
}
