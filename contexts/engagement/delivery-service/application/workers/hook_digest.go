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

type hookPayload struct {
	SubjectID string         `json:"subject_id"`
	Counts    map[string]int `json:"counts"`
}

// HookDigest posts aggregated notification counts for one subject as a
// single outbound webhook call.
type HookDigest struct {
	Client ports.HookClient
	Logger *slog.Logger
}

func (s HookDigest) Handle(ctx context.Context, item entities.WorkItem) (Outcome, error) {
	logger := application.ResolveLogger(s.Logger)

	var payload hookPayload
	if err := json.Unmarshal(item.Payload, &payload); err != nil {
		return OutcomeIgnored, fmt.Errorf("%w: %v", domainerrors.ErrMalformedPayload, err)
	}
	if payload.SubjectID == "" || len(payload.Counts) == 0 {
		return OutcomeIgnored, fmt.Errorf("%w: missing subject_id or counts", domainerrors.ErrMalformedPayload)
	}

	result, err := s.Client.Post(ctx, ports.HookBatch{
		SubjectID: payload.SubjectID,
		Counts:    payload.Counts,
	})
	if err != nil {
		return OutcomeRetry, fmt.Errorf("%w: %v", domainerrors.ErrTransientDelivery, err)
	}

	switch result {
	case ports.DeliveryResultDelivered:
		logger.Info("hook digest posted",
			"event", "hook_digest_posted",
			"module", "engagement/delivery-service",
			"layer", "worker",
			"item_id", item.ItemID,
			"subject_id", payload.SubjectID,
		)
		return OutcomeProcessed, nil
	case ports.DeliveryResultPermanentFailure:
		return OutcomeIgnored, nil
	default:
		return OutcomeRetry, domainerrors.ErrTransientDelivery
	}
}
