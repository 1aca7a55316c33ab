package entities

import "time"

type WorkItemStatus string

const (
	WorkItemStatusPending             WorkItemStatus = "pending"
	WorkItemStatusLeased              WorkItemStatus = "leased"
	WorkItemStatusProcessed           WorkItemStatus = "processed"
	WorkItemStatusFailed              WorkItemStatus = "failed"
	WorkItemStatusIgnored             WorkItemStatus = "ignored"
	WorkItemStatusManuallyHandled     WorkItemStatus = "manually_handled"
	WorkItemStatusManuallyInterrupted WorkItemStatus = "manually_interrupted"
)

// Terminal reports whether automated code may still transition the item.
// Manual outcomes are terminal too; only operators reach them.
func (s WorkItemStatus) Terminal() bool {
	switch s {
	case WorkItemStatusProcessed, WorkItemStatusIgnored,
		WorkItemStatusManuallyHandled, WorkItemStatusManuallyInterrupted:
		return true
	default:
		return false
	}
}

type WorkItemKind string

const (
	WorkItemKindPush  WorkItemKind = "push.notification"
	WorkItemKindEmail WorkItemKind = "email.transactional"
	WorkItemKindHook  WorkItemKind = "hook.aggregate"
)

// WorkItem is one durable unit of deferred outbound work. Rows are never
// physically deleted; terminal rows stay visible for audit.
type WorkItem struct {
	ItemID     string
	Kind       WorkItemKind
	Payload    []byte
	Status     WorkItemStatus
	LeaseOwner string
	LeasedAt   *time.Time
	RetryCount int
	NotBefore  time.Time
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
