package workers

import (
	"context"
	"log/slog"

	application "clipfeed/contexts/engagement/ingestion-service/application"
	"clipfeed/contexts/engagement/ingestion-service/domain/entities"
	"clipfeed/contexts/engagement/ingestion-service/ports"
)

// IngestWorker drains Pending external events. The Pending→Started CAS is
// what guarantees single-handler execution: of any number of concurrent
// workers scanning the same rows, exactly one wins the transition and runs
// the handler.
type IngestWorker struct {
	Events     ports.EventStore
	Dispatcher Dispatcher
	BatchSize  int
	Logger     *slog.Logger
}

func (w IngestWorker) RunOnce(ctx context.Context) (int, error) {
	logger := application.ResolveLogger(w.Logger)
	limit := w.BatchSize
	if limit <= 0 {
		limit = 50
	}

	pending, err := w.Events.ListPending(ctx, limit)
	if err != nil {
		logger.Error("ingest pending scan failed",
			"event", "ingest_pending_scan_failed",
			"module", "engagement/ingestion-service",
			"layer", "worker",
			"error", err.Error(),
		)
		return 0, err
	}

	processed := 0
	for _, event := range pending {
		if ctx.Err() != nil {
			return processed, nil
		}

		claimed, err := w.Events.Transition(ctx,
			event.EventID,
			entities.ExternalEventStatusPending,
			entities.ExternalEventStatusStarted,
		)
		if err != nil {
			logger.Error("ingest claim failed",
				"event", "ingest_claim_failed",
				"module", "engagement/ingestion-service",
				"layer", "worker",
				"event_id", event.EventID,
				"error", err.Error(),
			)
			return processed, err
		}
		if !claimed {
			// Another worker won the CAS; nothing to do here.
			continue
		}

		// In-flight events settle even when shutdown arrives mid-batch.
		settleCtx := context.WithoutCancel(ctx)
		if err := w.Dispatcher.Dispatch(settleCtx, event); err != nil {
			if _, recordErr := w.Events.RecordFailure(settleCtx, event.EventID, err.Error()); recordErr != nil {
				logger.Error("ingest failure record failed",
					"event", "ingest_record_failure_failed",
					"module", "engagement/ingestion-service",
					"layer", "worker",
					"event_id", event.EventID,
					"error", recordErr.Error(),
				)
				return processed, recordErr
			}
			logger.Warn("ingest event failed",
				"event", "ingest_event_failed",
				"module", "engagement/ingestion-service",
				"layer", "worker",
				"event_id", event.EventID,
				"kind", string(event.Kind),
				"error", err.Error(),
			)
			processed++
			continue
		}

		if _, err := w.Events.Transition(settleCtx,
			event.EventID,
			entities.ExternalEventStatusStarted,
			entities.ExternalEventStatusDone,
		); err != nil {
			logger.Error("ingest done transition failed",
				"event", "ingest_done_transition_failed",
				"module", "engagement/ingestion-service",
				"layer", "worker",
				"event_id", event.EventID,
				"error", err.Error(),
			)
			return processed, err
		}

		logger.Info("ingest event completed",
			"event", "ingest_event_completed",
			"module", "engagement/ingestion-service",
			"layer", "worker",
			"event_id", event.EventID,
			"kind", string(event.Kind),
		)
		processed++
	}
	return processed, nil
}
