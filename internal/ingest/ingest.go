package ingest

import (
	"context"
	"log/slog"
	"time"

	"featurestream/internal/metrics"
	"featurestream/internal/model"
)

// SendNonBlocking offers a raw event to the engine channel without blocking
// the source; a full channel drops the event with a warning.
func SendNonBlocking(ctx context.Context, out chan<- model.RawEvent, raw model.RawEvent, source string, logger *slog.Logger) bool {
	select {
	case out <- raw:
		metrics.EventsEnqueued.WithLabelValues(source).Inc()
		return true
	case <-ctx.Done():
		return false
	default:
		if logger != nil {
			logger.Warn("event channel full, dropping event", "source", source, "event_id", raw["event_id"])
		}
		return false
	}
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
