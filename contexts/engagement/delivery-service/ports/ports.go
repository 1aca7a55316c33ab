package ports

import (
	"context"
	"time"

	"clipfeed/contexts/engagement/delivery-service/domain/entities"
)

// LeaseRequest bounds one claim scan. LeaseTTL is mandatory: rows whose
// lease is older than the TTL are treated as implicitly failed and become
// eligible for reclaim by any worker.
type LeaseRequest struct {
	Kind      entities.WorkItemKind
	Owner     string
	BatchSize int
	MaxRetry  int
	LeaseTTL  time.Duration
}

// QueueCounters is the operational view of the queue. DeadLettered counts
// items that exhausted their retry budget and are excluded from leasing.
type QueueCounters struct {
	Pending      int
	Leased       int
	Processed    int
	Ignored      int
	DeadLettered int
}

// WorkQueue owns work item persistence and every state transition.
// Claim and transition operations must be single atomic statements in the
// underlying store; row-level locking is the only synchronization primitive.
type WorkQueue interface {
	// Enqueue inserts a Pending row and returns its id.
	Enqueue(ctx context.Context, kind entities.WorkItemKind, payload []byte, notBefore time.Time) (string, error)
	// Lease atomically claims up to BatchSize eligible rows for Owner and
	// returns them. Two concurrent calls always claim disjoint row sets.
	Lease(ctx context.Context, req LeaseRequest) ([]entities.WorkItem, error)
	// Complete releases the lease and records a terminal outcome
	// (Processed or Ignored). False means another actor already moved the row.
	Complete(ctx context.Context, itemID string, outcome entities.WorkItemStatus) (bool, error)
	// Retry releases the lease, increments retry_count and reschedules the
	// row at notBefore. Once retry_count exceeds maxRetry the row lands in
	// Failed and is dead-lettered.
	Retry(ctx context.Context, itemID string, notBefore time.Time, maxRetry int, lastError string) (bool, error)
	// ResolveManually is the operator escape hatch for stuck items
	// (ManuallyHandled or ManuallyInterrupted). Never called by workers.
	ResolveManually(ctx context.Context, itemID string, outcome entities.WorkItemStatus) (bool, error)
	GetItem(ctx context.Context, itemID string) (entities.WorkItem, error)
	Counters(ctx context.Context, maxRetry int) (QueueCounters, error)
}

// DeliveryResult is the ternary classification of a delivery client call.
type DeliveryResult string

const (
	DeliveryResultDelivered        DeliveryResult = "delivered"
	DeliveryResultTransientFailure DeliveryResult = "transient_failure"
	DeliveryResultPermanentFailure DeliveryResult = "permanent_failure"
)

type PushMessage struct {
	UserID string
	Title  string
	Body   string
	Data   map[string]string
}

// PushClient abstracts the push delivery SDK. Wire protocol is out of scope;
// only the ternary result classification matters here.
type PushClient interface {
	Send(ctx context.Context, msg PushMessage) (DeliveryResult, error)
}

type EmailMessage struct {
	UserID   string
	Template string
	Subject  string
	Data     map[string]string
}

type EmailClient interface {
	Send(ctx context.Context, msg EmailMessage) (DeliveryResult, error)
}

// HookBatch aggregates notification counts for one subject into a single
// outbound webhook call.
type HookBatch struct {
	SubjectID string
	Counts    map[string]int
}

type HookClient interface {
	Post(ctx context.Context, batch HookBatch) (DeliveryResult, error)
}

// Clock allows deterministic testing of lease and retry timing.
type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
