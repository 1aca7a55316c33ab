package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	application "clipfeed/contexts/engagement/delivery-service/application"
	"clipfeed/contexts/engagement/delivery-service/domain/entities"
	domainerrors "clipfeed/contexts/engagement/delivery-service/domain/errors"
	"clipfeed/contexts/engagement/delivery-service/ports"
)

// Worker is the polling harness for outbound work. It leases bounded
// batches, dispatches them with a concurrency cap and owns every
// Complete/Retry call. On shutdown it stops leasing but finishes every
// already-leased item before returning, so no lease is abandoned.
type Worker struct {
	Queue          ports.WorkQueue
	Dispatcher     Dispatcher
	Clock          ports.Clock
	Owner          string
	Kinds          []entities.WorkItemKind
	BatchSize      int
	MaxRetry       int
	LeaseTTL       time.Duration
	Concurrency    int
	HandlerTimeout time.Duration
	RetryDelay     time.Duration
	IdleSleep      time.Duration
	Logger         *slog.Logger
}

func (w Worker) Run(ctx context.Context) error {
	logger := application.ResolveLogger(w.Logger)
	logger.Info("delivery worker started",
		"event", "delivery_worker_started",
		"module", "engagement/delivery-service",
		"layer", "worker",
		"owner", w.Owner,
		"kinds", fmt.Sprintf("%v", w.Kinds),
	)

	for {
		if ctx.Err() != nil {
			logger.Info("delivery worker stopped",
				"event", "delivery_worker_stopped",
				"module", "engagement/delivery-service",
				"layer", "worker",
				"owner", w.Owner,
			)
			return nil
		}

		processed, err := w.RunOnce(ctx)
		if err != nil {
			logger.Error("delivery worker cycle failed",
				"event", "delivery_worker_cycle_failed",
				"module", "engagement/delivery-service",
				"layer", "worker",
				"owner", w.Owner,
				"error", err.Error(),
			)
		}
		if processed > 0 {
			continue
		}

		select {
		case <-ctx.Done():
		case <-time.After(w.idleSleep()):
		}
	}
}

// RunOnce leases and settles one batch per configured kind. Every leased
// item receives a terminal Complete or Retry call even when ctx is
// cancelled mid-batch.
func (w Worker) RunOnce(ctx context.Context) (int, error) {
	total := 0
	for _, kind := range w.kinds() {
		if ctx.Err() != nil {
			return total, nil
		}

		items, err := w.Queue.Lease(ctx, ports.LeaseRequest{
			Kind:      kind,
			Owner:     w.Owner,
			BatchSize: w.batchSize(),
			MaxRetry:  w.MaxRetry,
			LeaseTTL:  w.LeaseTTL,
		})
		if err != nil {
			return total, err
		}
		if len(items) == 0 {
			continue
		}

		group := new(errgroup.Group)
		group.SetLimit(w.concurrency())
		for _, item := range items {
			item := item
			group.Go(func() error {
				w.processItem(ctx, item)
				return nil
			})
		}
		_ = group.Wait()
		total += len(items)
	}
	return total, nil
}

func (w Worker) processItem(ctx context.Context, item entities.WorkItem) {
	logger := application.ResolveLogger(w.Logger)

	// Handler and settlement run on a cancellation-detached context so a
	// shutdown signal never strands a held lease.
	handlerCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.handlerTimeout())
	outcome, err := w.dispatchSafe(handlerCtx, item)
	cancel()

	settleCtx := context.WithoutCancel(ctx)
	switch {
	case err == nil && outcome == OutcomeProcessed:
		w.complete(settleCtx, item, entities.WorkItemStatusProcessed, "")
	case err == nil && outcome == OutcomeIgnored:
		w.complete(settleCtx, item, entities.WorkItemStatusIgnored, "")
	case isPermanent(err):
		w.complete(settleCtx, item, entities.WorkItemStatusIgnored, err.Error())
	default:
		message := "handler requested retry"
		if err != nil {
			message = err.Error()
		}
		w.retry(settleCtx, item, message)
	}

	if err != nil {
		logger.Warn("work item handler failed",
			"event", "delivery_handler_failed",
			"module", "engagement/delivery-service",
			"layer", "worker",
			"item_id", item.ItemID,
			"kind", string(item.Kind),
			"retry_count", item.RetryCount,
			"error", err.Error(),
		)
	}
}

func (w Worker) dispatchSafe(ctx context.Context, item entities.WorkItem) (outcome Outcome, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			outcome = OutcomeRetry
			err = fmt.Errorf("handler panicked: %v", recovered)
		}
	}()
	return w.Dispatcher.Dispatch(ctx, item)
}

func (w Worker) complete(ctx context.Context, item entities.WorkItem, outcome entities.WorkItemStatus, message string) {
	logger := application.ResolveLogger(w.Logger)
	changed, err := w.Queue.Complete(ctx, item.ItemID, outcome)
	if err != nil {
		logger.Error("work item complete failed",
			"event", "delivery_complete_failed",
			"module", "engagement/delivery-service",
			"layer", "worker",
			"item_id", item.ItemID,
			"outcome", string(outcome),
			"error", err.Error(),
		)
		return
	}
	if !changed {
		// Another actor already moved the row; not an error.
		logger.Warn("work item already settled",
			"event", "delivery_complete_noop",
			"module", "engagement/delivery-service",
			"layer", "worker",
			"item_id", item.ItemID,
			"outcome", string(outcome),
		)
		return
	}
	logger.Info("work item settled",
		"event", "delivery_item_settled",
		"module", "engagement/delivery-service",
		"layer", "worker",
		"item_id", item.ItemID,
		"kind", string(item.Kind),
		"outcome", string(outcome),
		"reason", message,
	)
}

func (w Worker) retry(ctx context.Context, item entities.WorkItem, message string) {
	logger := application.ResolveLogger(w.Logger)
	notBefore := w.now().Add(w.retryDelay() * time.Duration(item.RetryCount+1))
	changed, err := w.Queue.Retry(ctx, item.ItemID, notBefore, w.MaxRetry, message)
	if err != nil {
		logger.Error("work item retry failed",
			"event", "delivery_retry_failed",
			"module", "engagement/delivery-service",
			"layer", "worker",
			"item_id", item.ItemID,
			"error", err.Error(),
		)
		return
	}
	if !changed {
		logger.Warn("work item retry skipped",
			"event", "delivery_retry_noop",
			"module", "engagement/delivery-service",
			"layer", "worker",
			"item_id", item.ItemID,
		)
	}
}

func isPermanent(err error) bool {
	if err == nil {
		return false
	}
	for _, sentinel := range []error{
		domainerrors.ErrUnknownWorkKind,
		domainerrors.ErrMalformedPayload,
		domainerrors.ErrPermanentDelivery,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func (w Worker) now() time.Time {
	if w.Clock != nil {
		return w.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

func (w Worker) kinds() []entities.WorkItemKind {
	if len(w.Kinds) > 0 {
		return w.Kinds
	}
	return w.Dispatcher.Kinds()
}

func (w Worker) batchSize() int {
	if w.BatchSize > 0 {
		return w.BatchSize
	}
	return 25
}

func (w Worker) concurrency() int {
	if w.Concurrency > 0 {
		return w.Concurrency
	}
	return 4
}

func (w Worker) handlerTimeout() time.Duration {
	if w.HandlerTimeout > 0 {
		return w.HandlerTimeout
	}
	return 30 * time.Second
}

func (w Worker) retryDelay() time.Duration {
	if w.RetryDelay > 0 {
		return w.RetryDelay
	}
	return 30 * time.Second
}

func (w Worker) idleSleep() time.Duration {
	if w.IdleSleep > 0 {
		return w.IdleSleep
	}
	return time.Second
}
