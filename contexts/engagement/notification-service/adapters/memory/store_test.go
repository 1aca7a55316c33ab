package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"clipfeed/contexts/engagement/notification-service/domain/entities"
	domainerrors "clipfeed/contexts/engagement/notification-service/domain/errors"
)

func seedNotification(t *testing.T, store *Store, id, userID string, createdAt time.Time) {
	t.Helper()
	inserted, err := store.CreateNotification(context.Background(), entities.Notification{
		NotificationID: id,
		UserID:         userID,
		Kind:           entities.NotificationKindVideoLiked,
		ActorIDs:       []string{"actor-1"},
		ActorCount:     1,
		CreatedAt:      createdAt,
	})
	if err != nil || !inserted {
		t.Fatalf("seed %s failed: inserted=%v err=%v", id, inserted, err)
	}
}

func TestCreateNotificationDeduplicatesOnID(t *testing.T) {
	store := NewStore()
	base := time.Date(2026, time.March, 12, 10, 0, 0, 0, time.UTC)

	seedNotification(t, store, "ntf-1", "user-1", base)

	inserted, err := store.CreateNotification(context.Background(), entities.Notification{
		NotificationID: "ntf-1",
		UserID:         "user-1",
		Kind:           entities.NotificationKindVideoLiked,
		CreatedAt:      base,
	})
	if err != nil {
		t.Fatalf("duplicate insert errored: %v", err)
	}
	if inserted {
		t.Fatal("duplicate notification id must not insert a second row")
	}
}

func TestListByUserOrdersNewestFirstAndLimits(t *testing.T) {
	store := NewStore()
	base := time.Date(2026, time.March, 12, 10, 0, 0, 0, time.UTC)

	seedNotification(t, store, "ntf-old", "user-1", base)
	seedNotification(t, store, "ntf-mid", "user-1", base.Add(time.Minute))
	seedNotification(t, store, "ntf-new", "user-1", base.Add(2*time.Minute))
	seedNotification(t, store, "ntf-other", "user-2", base.Add(3*time.Minute))

	listed, err := store.ListByUser(context.Background(), "user-1", 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected limit to cap results at 2, got %d", len(listed))
	}
	if listed[0].NotificationID != "ntf-new" || listed[1].NotificationID != "ntf-mid" {
		t.Fatalf("expected newest first, got %s then %s", listed[0].NotificationID, listed[1].NotificationID)
	}
}

func TestMarkReadSemantics(t *testing.T) {
	store := NewStore()
	base := time.Date(2026, time.March, 12, 10, 0, 0, 0, time.UTC)
	seedNotification(t, store, "ntf-1", "user-1", base)

	if _, err := store.MarkRead(context.Background(), "user-1", "missing", base); !errors.Is(err, domainerrors.ErrNotificationNotFound) {
		t.Fatalf("expected not found for unknown id, got %v", err)
	}
	// Another user's notification looks like it does not exist.
	if _, err := store.MarkRead(context.Background(), "user-2", "ntf-1", base); !errors.Is(err, domainerrors.ErrNotificationNotFound) {
		t.Fatalf("expected not found for wrong owner, got %v", err)
	}

	readAt := base.Add(time.Hour)
	updated, err := store.MarkRead(context.Background(), "user-1", "ntf-1", readAt)
	if err != nil || !updated {
		t.Fatalf("mark read failed: updated=%v err=%v", updated, err)
	}
	notification, _ := store.GetNotification("ntf-1")
	if notification.ReadAt == nil || !notification.ReadAt.Equal(readAt) {
		t.Fatalf("expected read_at %v, got %v", readAt, notification.ReadAt)
	}

	// Marking an already-read row again succeeds and keeps the first timestamp.
	updated, err = store.MarkRead(context.Background(), "user-1", "ntf-1", readAt.Add(time.Hour))
	if err != nil || !updated {
		t.Fatalf("repeat mark read failed: updated=%v err=%v", updated, err)
	}
	notification, _ = store.GetNotification("ntf-1")
	if !notification.ReadAt.Equal(readAt) {
		t.Fatalf("read_at must not move on repeat, got %v", notification.ReadAt)
	}

	count, err := store.CountUnread(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("count unread failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 unread after read, got %d", count)
	}
}

func TestFilterSuppressedRecipientsPreservesOrder(t *testing.T) {
	store := NewStore()
	store.AddSuppression("muter", "actor-1")

	kept, err := store.FilterSuppressedRecipients(
		context.Background(),
		"actor-1",
		[]string{"c", "muter", "a", "b"},
	)
	if err != nil {
		t.Fatalf("filter failed: %v", err)
	}
	want := []string{"c", "a", "b"}
	if len(kept) != len(want) {
		t.Fatalf("expected %v, got %v", want, kept)
	}
	for i := range want {
		if kept[i] != want[i] {
			t.Fatalf("expected %v in input order, got %v", want, kept)
		}
	}
}

func TestPreferencesDefaultToAllowed(t *testing.T) {
	store := NewStore()

	allowed, err := store.AllowsPush(context.Background(), "user-1", entities.NotificationKindVideoLiked)
	if err != nil || !allowed {
		t.Fatalf("absent preference must default to allowed: %v %v", allowed, err)
	}

	store.SetPreference("user-1", entities.NotificationKindVideoLiked, "push", false)
	allowed, err = store.AllowsPush(context.Background(), "user-1", entities.NotificationKindVideoLiked)
	if err != nil || allowed {
		t.Fatalf("opt-out must gate the channel: %v %v", allowed, err)
	}

	// The email channel is untouched by the push opt-out.
	allowed, err = store.AllowsEmail(context.Background(), "user-1", entities.NotificationKindVideoLiked)
	if err != nil || !allowed {
		t.Fatalf("email must stay allowed: %v %v", allowed, err)
	}
}
