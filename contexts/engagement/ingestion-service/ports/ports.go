package ports

import (
	"context"
	"time"

	"clipfeed/contexts/engagement/ingestion-service/domain/entities"
)

type CreateEventInput struct {
	NaturalKey string
	Source     string
	Kind       entities.ExternalEventKind
	Payload    []byte
}

// EventStore owns the deduplicated inbound event log.
type EventStore interface {
	// Create atomically inserts the event or resolves to the existing row
	// when the natural key was already seen. The bool reports whether this
	// call was the first to observe the event. Duplicate delivery is not
	// an error.
	Create(ctx context.Context, input CreateEventInput) (entities.ExternalEvent, bool, error)
	// Transition is the compare-and-swap primitive: a conditional update
	// guarded by the from-status. Exactly one concurrent caller wins.
	Transition(ctx context.Context, eventID string, from, to entities.ExternalEventStatus) (bool, error)
	// RecordFailure moves a Started event to Failed with a diagnostic.
	RecordFailure(ctx context.Context, eventID string, message string) (bool, error)
	// ResetFailed is the operator path back to Pending after redelivery is
	// impossible. Never called by automated code.
	ResetFailed(ctx context.Context, eventID string) (bool, error)
	GetEvent(ctx context.Context, eventID string) (entities.ExternalEvent, error)
	ListPending(ctx context.Context, limit int) ([]entities.ExternalEvent, error)
}

// CreditInput describes one settled upstream transaction.
type CreditInput struct {
	TransactionID string
	CreatorID     string
	AmountCents   int64
	Currency      string
	OccurredAt    time.Time
}

// TransactionLedger credits settled transactions exactly once per
// transaction id; the bool reports whether this call did the crediting.
type TransactionLedger interface {
	CreditTransaction(ctx context.Context, input CreditInput) (bool, error)
}

// VideoCatalog flips a video to available once its recording landed.
type VideoCatalog interface {
	MarkRecordingAvailable(ctx context.Context, videoID string, recordingURL string, at time.Time) (bool, error)
}

// FanoutRequest mirrors the notification planner input without importing
// the notification context; bootstrap bridges the two.
type FanoutRequest struct {
	Kind             string
	ActorID          string
	SubjectUserID    string
	VideoID          string
	MentionedUserIDs []string
	Data             map[string]string
}

type FanoutPlanner interface {
	Plan(ctx context.Context, req FanoutRequest) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
