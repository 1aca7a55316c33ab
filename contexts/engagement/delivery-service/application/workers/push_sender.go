package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	application "clipfeed/contexts/engagement/delivery-service/application"
	"clipfeed/contexts/engagement/delivery-service/domain/entities"
	domainerrors "clipfeed/contexts/engagement/delivery-service/domain/errors"
	"clipfeed/contexts/engagement/delivery-service/ports"
)

// pushPayload is the wire shape of a push.notification work item.
// The fanout planner produces the matching JSON.
type pushPayload struct {
	UserID string            `json:"user_id"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

// PushSender delivers one push notification per leased item.
type PushSender struct {
	Client ports.PushClient
	Logger *slog.Logger
}

func (s PushSender) Handle(ctx context.Context, item entities.WorkItem) (Outcome, error) {
	logger := application.ResolveLogger(s.Logger)

	var payload pushPayload
	if err := json.Unmarshal(item.Payload, &payload); err != nil {
		return OutcomeIgnored, fmt.Errorf("%w: %v", domainerrors.ErrMalformedPayload, err)
	}
	if payload.UserID == "" {
		return OutcomeIgnored, fmt.Errorf("%w: missing user_id", domainerrors.ErrMalformedPayload)
	}

	result, err := s.Client.Send(ctx, ports.PushMessage{
		UserID: payload.UserID,
		Title:  payload.Title,
		Body:   payload.Body,
		Data:   payload.Data,
	})
	if err != nil {
		return OutcomeRetry, fmt.Errorf("%w: %v", domainerrors.ErrTransientDelivery, err)
	}

	switch result {
	case ports.DeliveryResultDelivered:
		logger.Info("push delivered",
			"event", "push_delivered",
			"module", "engagement/delivery-service",
			"layer", "worker",
			"item_id", item.ItemID,
			"user_id", payload.UserID,
		)
		return OutcomeProcessed, nil
	case ports.DeliveryResultPermanentFailure:
		// Destination is known moot (e.g. revoked device token).
		return OutcomeIgnored, nil
	default:
		return OutcomeRetry, domainerrors.ErrTransientDelivery
	}
}
