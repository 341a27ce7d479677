package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"featurestream/internal/config"
	"featurestream/internal/drops"
	"featurestream/internal/metrics"
	"featurestream/internal/model"
	"featurestream/internal/normalize"
	"featurestream/internal/storage"
)

// Engine is the stateful streaming core: it validates raw events, enforces
// at-most-once effect per event id, maintains per-customer daily buckets with
// watermark-driven eviction, and derives feature snapshots.
//
// A single engine instance assumes one logical consumer: ProcessEvent runs to
// completion before the next call. State for disjoint customers never
// interacts, so sharding by customer_id across engine instances is safe.
type Engine struct {
	logger     *slog.Logger
	drops      *drops.Store
	sink       storage.Store
	cfg        atomic.Value
	aggregates *AggregateStore
	ledger     *Ledger
	watermark  *Watermark
	started    time.Time
}

func NewEngine(cfg *config.Config, logger *slog.Logger, dropStore *drops.Store, sink storage.Store) *Engine {
	e := &Engine{
		logger:     logger,
		drops:      dropStore,
		sink:       sink,
		aggregates: NewAggregateStore(),
		ledger:     NewLedger(),
		watermark:  NewWatermark(),
		started:    time.Now().UTC(),
	}
	e.cfg.Store(cfg)
	return e
}

func (e *Engine) UpdateConfig(cfg *config.Config) {
	e.cfg.Store(cfg)
}

func (e *Engine) config() *config.Config {
	if v := e.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

// Start consumes raw events from in until ctx is cancelled.
func (e *Engine) Start(ctx context.Context, in <-chan model.RawEvent) {
	go func() {
		for {
			select {
			case raw := <-in:
				e.ProcessEvent(raw)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// ProcessEvent is the sole mutating entry point. It returns the new feature
// snapshot for the event's customer, or ok=false when the event was dropped.
// Drops are logged and recorded but never escalate: a corrupt event must not
// halt the stream.
//
// Stage order is load-bearing. The duplicate check runs before timestamp and
// amount validation so duplicates are rejected cheaply, and mark-seen runs
// immediately after it: an event dropped later for a bad timestamp or amount
// has already been recorded, so a corrected retry with the same id is
// rejected as a duplicate.
func (e *Engine) ProcessEvent(raw model.RawEvent) (model.FeatureSnapshot, bool) {
	if err := normalize.CheckRequired(raw); err != nil {
		e.drop(err, "", raw)
		return model.FeatureSnapshot{}, false
	}

	customerID, err := normalize.CheckCustomerID(raw["customer_id"])
	if err != nil {
		e.drop(err, normalize.EventID(raw), raw)
		return model.FeatureSnapshot{}, false
	}

	eventID := normalize.EventID(raw)
	if e.ledger.IsDuplicate(eventID) {
		e.drop(&normalize.DuplicateEventError{EventID: eventID}, eventID, raw)
		return model.FeatureSnapshot{}, false
	}
	e.ledger.MarkSeen(eventID)

	ev, err := normalize.ParseEvent(raw, customerID)
	if err != nil {
		e.drop(err, eventID, raw)
		return model.FeatureSnapshot{}, false
	}

	e.aggregates.Accumulate(ev.CustomerID, model.DateKey(ev.Time), ev.Amount)
	metrics.CustomersTracked.Set(float64(e.aggregates.CustomerCount()))

	e.watermark.Observe(ev.Time)
	e.evictExpired(ev.CustomerID)

	snap := e.aggregates.Derive(ev.CustomerID)
	metrics.EventsProcessed.Inc()

	if e.sink != nil {
		_ = e.sink.SaveSnapshot(context.Background(), ev.CustomerID, snap)
	}
	return snap, true
}

// evictExpired removes the customer's buckets older than
// watermark - window - grace. No-op while the watermark is undefined.
func (e *Engine) evictExpired(customerID string) {
	wm, ok := e.watermark.Current()
	if !ok {
		return
	}
	cutoff := wm.Add(-e.config().Window.Retention())
	evicted := e.aggregates.EvictBefore(customerID, model.DateKey(cutoff))
	if evicted > 0 {
		metrics.BucketsEvicted.Add(float64(evicted))
		if e.logger != nil {
			e.logger.Debug("evicted expired buckets",
				"customer_id", customerID,
				"evicted", evicted,
				"cutoff", model.DateKey(cutoff),
			)
		}
	}
}

func (e *Engine) drop(reason error, eventID string, raw model.RawEvent) {
	label := normalize.DropReason(reason)
	metrics.EventsDropped.WithLabelValues(label).Inc()
	if e.logger != nil {
		e.logger.Warn("event dropped",
			"reason", label,
			"err", reason.Error(),
			"event_id", eventID,
			"event", raw,
		)
	}
	if e.drops != nil {
		e.drops.Add(drops.Record{
			Timestamp: time.Now().UTC(),
			Reason:    label,
			EventID:   eventID,
			Detail:    reason.Error(),
		})
	}
}

// Features returns the last computed snapshot for a customer.
func (e *Engine) Features(customerID string) (model.FeatureSnapshot, bool) {
	return e.aggregates.Features(customerID)
}

// ExportState snapshots every customer's buckets and features in the
// persisted-state shape. Encoding is owned by the consuming sink.
func (e *Engine) ExportState() map[string]model.CustomerExport {
	return e.aggregates.Export()
}

// Watermark exposes the current global watermark, if defined.
func (e *Engine) Watermark() (time.Time, bool) {
	return e.watermark.Current()
}

// SeenEvents reports the dedup ledger size.
func (e *Engine) SeenEvents() int {
	return e.ledger.Len()
}

func (e *Engine) CustomerCount() int {
	return e.aggregates.CustomerCount()
}

func (e *Engine) Started() time.Time {
	return e.started
}

// Reset drops all aggregate, dedup, and watermark state.
func (e *Engine) Reset() {
	e.aggregates.Reset()
	e.ledger = NewLedger()
	e.watermark.Reset()
	metrics.CustomersTracked.Set(0)
}
