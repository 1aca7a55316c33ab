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

type emailPayload struct {
	UserID   string            `json:"user_id"`
	Template string            `json:"template"`
	Subject  string            `json:"subject"`
	Data     map[string]string `json:"data,omitempty"`
}

// EmailSender delivers one transactional email per leased item.
type EmailSender struct {
	Client ports.EmailClient
	Logger *slog.Logger
}

func (s EmailSender) Handle(ctx context.Context, item entities.WorkItem) (Outcome, error) {
	logger := application.ResolveLogger(s.Logger)

	var payload emailPayload
	if err := json.Unmarshal(item.Payload, &payload); err != nil {
		return OutcomeIgnored, fmt.Errorf("%w: %v", domainerrors.ErrMalformedPayload, err)
	}
	if payload.UserID == "" || payload.Template == "" {
		return OutcomeIgnored, fmt.Errorf("%w: missing user_id or template", domainerrors.ErrMalformedPayload)
	}

	result, err := s.Client.Send(ctx, ports.EmailMessage{
		UserID:   payload.UserID,
		Template: payload.Template,
		Subject:  payload.Subject,
		Data:     payload.Data,
	})
	if err != nil {
		return OutcomeRetry, fmt.Errorf("%w: %v", domainerrors.ErrTransientDelivery, err)
	}

	switch result {
	case ports.DeliveryResultDelivered:
		logger.Info("email delivered",
			"event", "email_delivered",
			"module", "engagement/delivery-service",
			"layer", "worker",
			"item_id", item.ItemID,
			"user_id", payload.UserID,
			"template", payload.Template,
		)
		return OutcomeProcessed, nil
	case ports.DeliveryResultPermanentFailure:
		return OutcomeIgnored, nil
	default:
		return OutcomeRetry, domainerrors.ErrTransientDelivery
	}
}
