package analytics

import "rentalshop-backend/internal/logger"

// Sink receives storefront analytics events. Delivery is fire-and-forget:
// implementations must never fail the caller.
type Sink interface {
	TrackEvent(shop, event string, props map[string]string)
}

// LogSink emits analytics events to the structured log.
type LogSink struct{}

func (LogSink) TrackEvent(shop, event string, props map[string]string) {
	args := []any{"shop_id", shop, "event", event}
	for k, v := range props {
		args = append(args, k, v)
	}
	logger.Info("analytics event", args...)
}

// Discard swallows all events, for tests and disabled deployments.
type Discard struct{}

func (Discard) TrackEvent(string, string, map[string]string) {}
