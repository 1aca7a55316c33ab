package outboundadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"clipfeed/contexts/engagement/delivery-service/ports"
)

// WebhookHookClient posts aggregated notification counts to a partner
// endpoint and classifies the response into the ternary delivery result:
// 2xx delivered, most 4xx permanent, everything else transient.
type WebhookHookClient struct {
	Endpoint string
	Client   *http.Client
	Logger   *slog.Logger
}

func NewWebhookHookClient(endpoint string, logger *slog.Logger) *WebhookHookClient {
	return &WebhookHookClient{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: 10 * time.Second},
		Logger:   logger,
	}
}

func (c *WebhookHookClient) Post(ctx context.Context, batch ports.HookBatch) (ports.DeliveryResult, error) {
	body, err := json.Marshal(map[string]any{
		"subject_id": batch.SubjectID,
		"counts":     batch.Counts,
	})
	if err != nil {
		return ports.DeliveryResultPermanentFailure, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return ports.DeliveryResultPermanentFailure, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return ports.DeliveryResultTransientFailure, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	result := classifyStatus(resp.StatusCode)
	if c.Logger != nil {
		c.Logger.Info("hook batch posted",
			"event", "hook_batch_posted",
			"module", "engagement/delivery-service",
			"layer", "adapter",
			"subject_id", batch.SubjectID,
			"status_code", resp.StatusCode,
			"result", string(result),
		)
	}
	return result, nil
}

func classifyStatus(code int) ports.DeliveryResult {
	switch {
	case code >= 200 && code < 300:
		return ports.DeliveryResultDelivered
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests:
		return ports.DeliveryResultTransientFailure
	case code >= 400 && code < 500:
		return ports.DeliveryResultPermanentFailure
	default:
		return ports.DeliveryResultTransientFailure
	}
}

// DisabledHookClient is wired when no hook endpoint is configured. It
// reports a permanent failure so hook items settle as Ignored instead of
// accumulating as Pending rows no handler will ever lease.
type DisabledHookClient struct {
	Logger *slog.Logger
}

func (c DisabledHookClient) Post(_ context.Context, batch ports.HookBatch) (ports.DeliveryResult, error) {
	if c.Logger != nil {
		c.Logger.Info("hook delivery disabled, dropping batch",
			"event", "hook_delivery_disabled",
			"module", "engagement/delivery-service",
			"layer", "adapter",
			"subject_id", batch.SubjectID,
		)
	}
	return ports.DeliveryResultPermanentFailure, nil
}

// LogPushClient stands in for the mobile push provider SDK. It records the
// send and reports success so the pipeline is exercised end to end.
type LogPushClient struct {
	Logger *slog.Logger
}

func (c LogPushClient) Send(_ context.Context, msg ports.PushMessage) (ports.DeliveryResult, error) {
	if c.Logger != nil {
		c.Logger.Info("push dispatched",
			"event", "push_dispatched",
			"module", "engagement/delivery-service",
			"layer", "adapter",
			"user_id", msg.UserID,
			"title", msg.Title,
		)
	}
	return ports.DeliveryResultDelivered, nil
}

// LogEmailClient stands in for the transactional email provider.
type LogEmailClient struct {
	Logger *slog.Logger
}

func (c LogEmailClient) Send(_ context.Context, msg ports.EmailMessage) (ports.DeliveryResult, error) {
	if c.Logger != nil {
		c.Logger.Info("email dispatched",
			"event", "email_dispatched",
			"module", "engagement/delivery-service",
			"layer", "adapter",
			"user_id", msg.UserID,
			"template", msg.Template,
		)
	}
	return ports.DeliveryResultDelivered, nil
}
