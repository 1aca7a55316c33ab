package commands

import (
	"context"
	"errors"
	"testing"

	"clipfeed/contexts/engagement/ingestion-service/adapters/memory"
	"clipfeed/contexts/engagement/ingestion-service/domain/entities"
	domainerrors "clipfeed/contexts/engagement/ingestion-service/domain/errors"
)

func TestRecordEventAcknowledgesDuplicates(t *testing.T) {
	store := memory.NewStore()
	useCase := RecordEventUseCase{Events: store}

	cmd := RecordEventCommand{
		NaturalKey: "delivery-123",
		Source:     "payments-gateway",
		Kind:       entities.ExternalEventKindTransactionSucceeded,
		Payload:    []byte(`{"transaction_id":"tx-1"}`),
	}

	first, err := useCase.Execute(context.Background(), cmd)
	if err != nil {
		t.Fatalf("first execute failed: %v", err)
	}
	if !first.IsNew {
		t.Fatal("first delivery must be new")
	}

	second, err := useCase.Execute(context.Background(), cmd)
	if err != nil {
		t.Fatalf("duplicate execute failed: %v", err)
	}
	if second.IsNew {
		t.Fatal("duplicate delivery must not be new")
	}
	if second.Event.EventID != first.Event.EventID {
		t.Fatalf("duplicate must resolve to the same row: %s vs %s", first.Event.EventID, second.Event.EventID)
	}
}

func TestRecordEventValidation(t *testing.T) {
	store := memory.NewStore()
	useCase := RecordEventUseCase{Events: store}

	_, err := useCase.Execute(context.Background(), RecordEventCommand{
		NaturalKey: "  ",
		Kind:       entities.ExternalEventKindTransactionSucceeded,
	})
	if !errors.Is(err, domainerrors.ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent for blank key, got %v", err)
	}

	_, err = useCase.Execute(context.Background(), RecordEventCommand{
		NaturalKey: "delivery-1",
		Kind:       "webhook.unknown",
	})
	if !errors.Is(err, domainerrors.ErrUnknownEventKind) {
		t.Fatalf("expected ErrUnknownEventKind, got %v", err)
	}
}
