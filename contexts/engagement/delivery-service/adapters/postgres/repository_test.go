package postgresadapter

import (
	"strings"
	"testing"
	"time"

	"clipfeed/contexts/engagement/delivery-service/domain/entities"
)

func TestWorkItemModelToEntity(t *testing.T) {
	owner := "worker-7"
	leasedAt := time.Date(2026, time.March, 12, 10, 0, 0, 0, time.UTC)
	model := workItemModel{
		ItemID:     "item-1",
		Kind:       "push.notification",
		Payload:    []byte(`{"user_id":"user-1"}`),
		Status:     "leased",
		LeaseOwner: &owner,
		LeasedAt:   &leasedAt,
		RetryCount: 2,
		NotBefore:  leasedAt.Add(-time.Minute),
		LastError:  "upstream timeout",
		CreatedAt:  leasedAt.Add(-time.Hour),
		UpdatedAt:  leasedAt,
	}

	item := model.toEntity()

	if item.ItemID != "item-1" {
		t.Fatalf("unexpected item id %s", item.ItemID)
	}
	if item.Kind != entities.WorkItemKindPush {
		t.Fatalf("expected kind coerced to %s, got %s", entities.WorkItemKindPush, item.Kind)
	}
	if item.Status != entities.WorkItemStatusLeased {
		t.Fatalf("expected status coerced to %s, got %s", entities.WorkItemStatusLeased, item.Status)
	}
	if item.LeaseOwner != "worker-7" {
		t.Fatalf("expected lease owner flattened from pointer, got %q", item.LeaseOwner)
	}
	if item.LeasedAt == nil || !item.LeasedAt.Equal(leasedAt) {
		t.Fatalf("expected leased_at %v, got %v", leasedAt, item.LeasedAt)
	}
	// The entity must hold its own copy of the lease timestamp, not alias
	// the model's pointer.
	if item.LeasedAt == model.LeasedAt {
		t.Fatal("entity must not share the model's leased_at pointer")
	}
	*model.LeasedAt = model.LeasedAt.Add(time.Hour)
	if !item.LeasedAt.Equal(leasedAt) {
		t.Fatal("mutating the model row must not move the entity timestamp")
	}
	if item.RetryCount != 2 || item.LastError != "upstream timeout" {
		t.Fatalf("unexpected retry fields: %d %q", item.RetryCount, item.LastError)
	}
	if string(item.Payload) != `{"user_id":"user-1"}` {
		t.Fatalf("unexpected payload %s", item.Payload)
	}
}

func TestWorkItemModelToEntityWithoutLease(t *testing.T) {
	model := workItemModel{
		ItemID: "item-2",
		Kind:   "hook.aggregate",
		Status: "pending",
	}

	item := model.toEntity()

	if item.Status != entities.WorkItemStatusPending {
		t.Fatalf("expected pending, got %s", item.Status)
	}
	if item.LeaseOwner != "" {
		t.Fatalf("unleased row must have empty owner, got %q", item.LeaseOwner)
	}
	if item.LeasedAt != nil {
		t.Fatalf("unleased row must have nil leased_at, got %v", item.LeasedAt)
	}
}

func TestNewOwnerToken(t *testing.T) {
	token := NewOwnerToken("worker")
	if !strings.HasPrefix(token, "worker-") {
		t.Fatalf("expected worker- prefix, got %q", token)
	}
	if token == NewOwnerToken("worker") {
		t.Fatal("owner tokens must be unique per call")
	}
	if fallback := NewOwnerToken(""); !strings.HasPrefix(fallback, "worker-") {
		t.Fatalf("empty prefix must fall back to worker-, got %q", fallback)
	}
}
