package http

import (
	"context"
	"fmt"
	"time"

	"clipfeed/contexts/engagement/delivery-service/domain/entities"
	domainerrors "clipfeed/contexts/engagement/delivery-service/domain/errors"
	"clipfeed/contexts/engagement/delivery-service/ports"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type QueueCountersResponse struct {
	Pending      int `json:"pending"`
	Leased       int `json:"leased"`
	Processed    int `json:"processed"`
	Ignored      int `json:"ignored"`
	DeadLettered int `json:"dead_lettered"`
}

type WorkItemResponse struct {
	ItemID     string     `json:"item_id"`
	Kind       string     `json:"kind"`
	Status     string     `json:"status"`
	RetryCount int        `json:"retry_count"`
	LastError  string     `json:"last_error,omitempty"`
	LeaseOwner string     `json:"lease_owner,omitempty"`
	LeasedAt   *time.Time `json:"leased_at,omitempty"`
	NotBefore  time.Time  `json:"not_before"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type ResolveWorkItemRequest struct {
	Outcome string `json:"outcome"`
}

type ResolveWorkItemResponse struct {
	ItemID   string `json:"item_id"`
	Resolved bool   `json:"resolved"`
	Status   string `json:"status"`
}

// Handler exposes the operator view of the delivery queue.
type Handler struct {
	Queue    ports.WorkQueue
	MaxRetry int
}

func (h Handler) QueueCountersHandler(ctx context.Context) (QueueCountersResponse, error) {
	counters, err := h.Queue.Counters(ctx, h.MaxRetry)
	if err != nil {
		return QueueCountersResponse{}, err
	}
	return QueueCountersResponse{
		Pending:      counters.Pending,
		Leased:       counters.Leased,
		Processed:    counters.Processed,
		Ignored:      counters.Ignored,
		DeadLettered: counters.DeadLettered,
	}, nil
}

func (h Handler) GetWorkItemHandler(ctx context.Context, itemID string) (WorkItemResponse, error) {
	item, err := h.Queue.GetItem(ctx, itemID)
	if err != nil {
		return WorkItemResponse{}, err
	}
	return toWorkItemResponse(item), nil
}

// ResolveWorkItemHandler applies an operator outcome to a stuck item. Only
// the two manual outcomes are accepted; Resolved is false when another actor
// already moved the row to a terminal state.
func (h Handler) ResolveWorkItemHandler(
	ctx context.Context,
	itemID string,
	req ResolveWorkItemRequest,
) (ResolveWorkItemResponse, error) {
	outcome := entities.WorkItemStatus(req.Outcome)
	switch outcome {
	case entities.WorkItemStatusManuallyHandled, entities.WorkItemStatusManuallyInterrupted:
	default:
		return ResolveWorkItemResponse{}, fmt.Errorf("%w: %q", domainerrors.ErrInvalidOutcome, req.Outcome)
	}

	resolved, err := h.Queue.ResolveManually(ctx, itemID, outcome)
	if err != nil {
		return ResolveWorkItemResponse{}, err
	}
	item, err := h.Queue.GetItem(ctx, itemID)
	if err != nil {
		return ResolveWorkItemResponse{}, err
	}
	return ResolveWorkItemResponse{
		ItemID:   item.ItemID,
		Resolved: resolved,
		Status:   string(item.Status),
	}, nil
}

func toWorkItemResponse(item entities.WorkItem) WorkItemResponse {
	return WorkItemResponse{
		ItemID:     item.ItemID,
		Kind:       string(item.Kind),
		Status:     string(item.Status),
		RetryCount: item.RetryCount,
		LastError:  item.LastError,
		LeaseOwner: item.LeaseOwner,
		LeasedAt:   item.LeasedAt,
		NotBefore:  item.NotBefore,
		CreatedAt:  item.CreatedAt,
		UpdatedAt:  item.UpdatedAt,
	}
}
