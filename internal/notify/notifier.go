package notify

import (
	"context"

	"go.uber.org/zap"
)

// Lifecycle event names emitted by the managers
const (
	EventLeadStatusChanged  = "leadStatusUpdate"
	EventEventStatusChanged = "eventStatusUpdate"
	EventVolunteersAdded    = "volunteersAdded"
	EventVolunteersRemoved  = "volunteersRemoved"
)

// Notifier delivers lifecycle notifications best-effort. Implementations must
// bound their own time, never block the request path for long, and never
// return delivery failures to the caller: a failed notification is logged and
// retried out of band, it does not roll back the operation that produced it.
type Notifier interface {
	Notify(ctx context.Context, event string, payload map[string]any)
}

// LogNotifier writes notifications to the service log. It is the default sink
// in development and the fallback when no transport is configured.
type LogNotifier struct {
	log *zap.Logger
}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Notify implements Notifier
func (n *LogNotifier) Notify(_ context.Context, event string, payload map[string]any) {
	n.log.Info("Lifecycle notification",
		zap.String("event", event),
		zap.Any("payload", payload))
}

// Multi fans a notification out to several sinks
type Multi []Notifier

// Notify implements Notifier
func (m Multi) Notify(ctx context.Context, event string, payload map[string]any) {
	for _, n := range m {
		n.Notify(ctx, event, payload)
	}
}
