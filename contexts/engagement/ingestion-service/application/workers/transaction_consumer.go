package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	application "clipfeed/contexts/engagement/ingestion-service/application"
	"clipfeed/contexts/engagement/ingestion-service/domain/entities"
	domainerrors "clipfeed/contexts/engagement/ingestion-service/domain/errors"
	"clipfeed/contexts/engagement/ingestion-service/ports"
)

const payoutFanoutKind = "payout.completed"

type transactionPayload struct {
	TransactionID string `json:"transaction_id"`
	CreatorID     string `json:"creator_id"`
	AmountCents   int64  `json:"amount_cents"`
	Currency      string `json:"currency"`
	OccurredAt    string `json:"occurred_at"`
}

// TransactionConsumer handles payment.transaction.succeeded events: credit
// the creator ledger once, then fan out the payout notification. Crediting
// is idempotent on transaction id, so a redelivered event that somehow
// reaches the handler again never double-credits.
type TransactionConsumer struct {
	Ledger ports.TransactionLedger
	Fanout ports.FanoutPlanner
	Clock  ports.Clock
	Logger *slog.Logger
}

func (c TransactionConsumer) Handle(ctx context.Context, event entities.ExternalEvent) error {
	logger := application.ResolveLogger(c.Logger)

	var payload transactionPayload
	if err := json.Unmarshal(event.RawPayload, &payload); err != nil {
		return fmt.Errorf("%w: %v", domainerrors.ErrInvalidEventPayload, err)
	}
	if payload.TransactionID == "" || payload.CreatorID == "" || payload.AmountCents <= 0 {
		return fmt.Errorf("%w: transaction_id, creator_id and a positive amount are required",
			domainerrors.ErrInvalidEventPayload)
	}

	occurredAt := c.now()
	if payload.OccurredAt != "" {
		parsed, err := time.Parse(time.RFC3339, payload.OccurredAt)
		if err != nil {
			return fmt.Errorf("%w: bad occurred_at: %v", domainerrors.ErrInvalidEventPayload, err)
		}
		occurredAt = parsed.UTC()
	}

	credited, err := c.Ledger.CreditTransaction(ctx, ports.CreditInput{
		TransactionID: payload.TransactionID,
		CreatorID:     payload.CreatorID,
		AmountCents:   payload.AmountCents,
		Currency:      payload.Currency,
		OccurredAt:    occurredAt,
	})
	if err != nil {
		return err
	}
	if !credited {
		logger.Info("transaction already credited",
			"event", "ingest_transaction_replayed",
			"module", "engagement/ingestion-service",
			"layer", "worker",
			"event_id", event.EventID,
			"transaction_id", payload.TransactionID,
		)
		return nil
	}

	return c.Fanout.Plan(ctx, ports.FanoutRequest{
		Kind:          payoutFanoutKind,
		ActorID:       payload.CreatorID,
		SubjectUserID: payload.CreatorID,
		Data: map[string]string{
			"transaction_id": payload.TransactionID,
			"amount_cents":   strconv.FormatInt(payload.AmountCents, 10),
			"currency":       payload.Currency,
		},
	})
}

func (c TransactionConsumer) now() time.Time {
	if c.Clock != nil {
		return c.Clock.Now().UTC()
	}
	return time.Now().UTC()
}
