package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	application "clipfeed/contexts/engagement/ingestion-service/application"
	"clipfeed/contexts/engagement/ingestion-service/domain/entities"
	domainerrors "clipfeed/contexts/engagement/ingestion-service/domain/errors"
	"clipfeed/contexts/engagement/ingestion-service/ports"
)

type RecordEventCommand struct {
	NaturalKey string
	Source     string
	Kind       entities.ExternalEventKind
	Payload    []byte
}

type RecordEventResult struct {
	Event entities.ExternalEvent
	IsNew bool
}

// RecordEventUseCase is the ingestion entry point used by webhook
// controllers. Duplicate deliveries resolve to the existing row and report
// IsNew=false; the caller acknowledges either way.
type RecordEventUseCase struct {
	Events ports.EventStore
	Logger *slog.Logger
}

func (u RecordEventUseCase) Execute(ctx context.Context, cmd RecordEventCommand) (RecordEventResult, error) {
	logger := application.ResolveLogger(u.Logger)

	if strings.TrimSpace(cmd.NaturalKey) == "" {
		return RecordEventResult{}, fmt.Errorf("%w: natural key is required", domainerrors.ErrInvalidEvent)
	}
	switch cmd.Kind {
	case entities.ExternalEventKindTransactionSucceeded, entities.ExternalEventKindRecordingReady:
	default:
		return RecordEventResult{}, fmt.Errorf("%w: %q", domainerrors.ErrUnknownEventKind, cmd.Kind)
	}

	event, isNew, err := u.Events.Create(ctx, ports.CreateEventInput{
		NaturalKey: cmd.NaturalKey,
		Source:     cmd.Source,
		Kind:       cmd.Kind,
		Payload:    cmd.Payload,
	})
	if err != nil {
		logger.Error("record event failed",
			"event", "ingest_record_event_failed",
			"module", "engagement/ingestion-service",
			"layer", "application",
			"natural_key", cmd.NaturalKey,
			"error", err.Error(),
		)
		return RecordEventResult{}, err
	}

	logger.Info("external event recorded",
		"event", "ingest_event_recorded",
		"module", "engagement/ingestion-service",
		"layer", "application",
		"event_id", event.EventID,
		"natural_key", event.NaturalKey,
		"kind", string(event.Kind),
		"is_new", isNew,
	)
	return RecordEventResult{Event: event, IsNew: isNew}, nil
}
