package notify

import (
	"context"
	"time"

	"crm-service/prometheus"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// WebhookNotifier POSTs lifecycle events to a configured endpoint. Delivery is
// fire-and-forget: non-2xx responses and transport errors are logged only.
type WebhookNotifier struct {
	client *resty.Client
	url    string
	log    *zap.Logger
}

// NewWebhookNotifier creates a WebhookNotifier for url
func NewWebhookNotifier(url string, timeout time.Duration, log *zap.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &WebhookNotifier{client: client, url: url, log: log}
}

// Notify implements Notifier
func (n *WebhookNotifier) Notify(ctx context.Context, event string, payload map[string]any) {
	body := map[string]any{
		"event":     event,
		"payload":   payload,
		"timestamp": time.Now().Unix(),
	}
	resp, err := n.client.R().SetContext(ctx).SetBody(body).Post(n.url)
	if err != nil {
		prometheus.RecordNotifyFailure("webhook")
		n.log.Warn("Webhook notification failed",
			zap.String("event", event), zap.String("url", n.url), zap.Error(err))
		return
	}
	if resp.IsError() {
		prometheus.RecordNotifyFailure("webhook")
		n.log.Warn("Webhook notification rejected",
			zap.String("event", event),
			zap.String("url", n.url),
			zap.Int("status", resp.StatusCode()))
	}
}
