package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"clipfeed/contexts/engagement/ingestion-service/domain/entities"
	"clipfeed/contexts/engagement/ingestion-service/ports"
)

func TestCreateDeduplicatesConcurrentDeliveries(t *testing.T) {
	store := NewStore()
	store.NowFunc = func() time.Time {
		return time.Date(2026, time.March, 12, 10, 0, 0, 0, time.UTC)
	}

	input := ports.CreateEventInput{
		NaturalKey: "stripe-evt-42",
		Source:     "payments-gateway",
		Kind:       entities.ExternalEventKindTransactionSucceeded,
		Payload:    []byte(`{"transaction_id":"tx-1"}`),
	}

	const deliveries = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	newCount := 0
	eventIDs := make(map[string]struct{})

	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			event, isNew, err := store.Create(context.Background(), input)
			if err != nil {
				t.Errorf("create failed: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if isNew {
				newCount++
			}
			eventIDs[event.EventID] = struct{}{}
		}()
	}
	wg.Wait()

	if newCount != 1 {
		t.Fatalf("exactly one delivery must observe is_new=true, got %d", newCount)
	}
	if len(eventIDs) != 1 {
		t.Fatalf("all deliveries must resolve to one row, got %d distinct ids", len(eventIDs))
	}

	pending, err := store.ListPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected one pending event, got %d", len(pending))
	}
}

func TestTransitionIsSingleWinnerCAS(t *testing.T) {
	store := NewStore()

	event, _, err := store.Create(context.Background(), ports.CreateEventInput{
		NaturalKey: "evt-cas",
		Source:     "payments-gateway",
		Kind:       entities.ExternalEventKindTransactionSucceeded,
		Payload:    []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := store.Transition(context.Background(),
				event.EventID,
				entities.ExternalEventStatusPending,
				entities.ExternalEventStatusStarted,
			)
			if err != nil {
				t.Errorf("transition failed: %v", err)
				return
			}
			if won {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("exactly one worker must win the claim, got %d", winners)
	}

	got, err := store.GetEvent(context.Background(), event.EventID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != entities.ExternalEventStatusStarted {
		t.Fatalf("expected started, got %s", got.Status)
	}
}

func TestFailureAndOperatorResetRoundTrip(t *testing.T) {
	store := NewStore()

	event, _, err := store.Create(context.Background(), ports.CreateEventInput{
		NaturalKey: "evt-fail",
		Source:     "meetings-provider",
		Kind:       entities.ExternalEventKindRecordingReady,
		Payload:    []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// RecordFailure only applies to started events.
	recorded, err := store.RecordFailure(context.Background(), event.EventID, "boom")
	if err != nil {
		t.Fatalf("record failure errored: %v", err)
	}
	if recorded {
		t.Fatal("failure must not be recorded for a pending event")
	}

	if _, err := store.Transition(context.Background(), event.EventID,
		entities.ExternalEventStatusPending, entities.ExternalEventStatusStarted); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	recorded, err = store.RecordFailure(context.Background(), event.EventID, "handler exploded")
	if err != nil || !recorded {
		t.Fatalf("record failure failed: recorded=%v err=%v", recorded, err)
	}

	got, _ := store.GetEvent(context.Background(), event.EventID)
	if got.Status != entities.ExternalEventStatusFailed || got.LastError != "handler exploded" {
		t.Fatalf("expected failed with diagnostic, got %s %q", got.Status, got.LastError)
	}

	// Failed events are invisible to the pending scan until an operator reset.
	pending, _ := store.ListPending(context.Background(), 10)
	if len(pending) != 0 {
		t.Fatalf("failed event must not be pending, got %d", len(pending))
	}

	reset, err := store.ResetFailed(context.Background(), event.EventID)
	if err != nil || !reset {
		t.Fatalf("reset failed: reset=%v err=%v", reset, err)
	}
	got, _ = store.GetEvent(context.Background(), event.EventID)
	if got.Status != entities.ExternalEventStatusPending || got.LastError != "" {
		t.Fatalf("expected clean pending after reset, got %s %q", got.Status, got.LastError)
	}

	// Reset on a non-failed event is a no-op.
	reset, err = store.ResetFailed(context.Background(), event.EventID)
	if err != nil {
		t.Fatalf("second reset errored: %v", err)
	}
	if reset {
		t.Fatal("reset must only apply to failed events")
	}
}

func TestCreditTransactionIsIdempotent(t *testing.T) {
	store := NewStore()

	input := ports.CreditInput{
		TransactionID: "tx-77",
		CreatorID:     "creator-1",
		AmountCents:   1250,
		Currency:      "USD",
		OccurredAt:    time.Date(2026, time.March, 12, 10, 0, 0, 0, time.UTC),
	}

	credited, err := store.CreditTransaction(context.Background(), input)
	if err != nil || !credited {
		t.Fatalf("first credit failed: credited=%v err=%v", credited, err)
	}
	credited, err = store.CreditTransaction(context.Background(), input)
	if err != nil {
		t.Fatalf("replay credit errored: %v", err)
	}
	if credited {
		t.Fatal("replayed transaction must not credit twice")
	}
	if got := store.CreditedTransactions(); len(got) != 1 || got[0] != "tx-77" {
		t.Fatalf("expected single ledger row tx-77, got %v", got)
	}
}
