package notify

import (
	"context"
	"encoding/json"
	"time"

	"crm-service/prometheus"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// StreamNotifier appends lifecycle events to a redis stream for out-of-band
// consumers (mailers, SMS workers). Delivery is fire-and-forget.
type StreamNotifier struct {
	client  *redis.Client
	stream  string
	timeout time.Duration
	log     *zap.Logger
}

// NewStreamNotifier creates a StreamNotifier publishing to stream
func NewStreamNotifier(client *redis.Client, stream string, timeout time.Duration, log *zap.Logger) *StreamNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &StreamNotifier{client: client, stream: stream, timeout: timeout, log: log}
}

// Notify implements Notifier
func (n *StreamNotifier) Notify(ctx context.Context, event string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		n.log.Error("Failed to marshal notification payload",
			zap.String("event", event), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	err = n.client.XAdd(ctx, &redis.XAddArgs{
		Stream: n.stream,
		Values: map[string]interface{}{
			"event":     event,
			"data":      string(data),
			"timestamp": time.Now().Unix(),
		},
	}).Err()
	if err != nil {
		prometheus.RecordNotifyFailure("stream")
		n.log.Warn("Failed to publish notification to stream",
			zap.String("event", event),
			zap.String("stream", n.stream),
			zap.Error(err))
	}
}
