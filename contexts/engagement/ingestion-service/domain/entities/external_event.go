package entities

import "time"

type ExternalEventStatus string

const (
	ExternalEventStatusPending ExternalEventStatus = "pending"
	ExternalEventStatusStarted ExternalEventStatus = "started"
	ExternalEventStatusDone    ExternalEventStatus = "done"
	ExternalEventStatusFailed  ExternalEventStatus = "failed"
)

type ExternalEventKind string

const (
	ExternalEventKindTransactionSucceeded ExternalEventKind = "payment.transaction.succeeded"
	ExternalEventKindRecordingReady       ExternalEventKind = "meeting.recording.ready"
)

// ExternalEvent is the deduplicated record of one inbound webhook delivery.
// NaturalKey carries the upstream delivery identity; a storage-level unique
// constraint guarantees at most one row per external event no matter how
// many times it is delivered.
//
// Failed is terminal for ingestion: re-processing requires redelivery from
// the source system or an operator reset, never an internal auto-retry.
type ExternalEvent struct {
	EventID    string
	NaturalKey string
	Source     string
	Kind       ExternalEventKind
	RawPayload []byte
	Status     ExternalEventStatus
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
