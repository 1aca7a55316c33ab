package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"clipfeed/contexts/engagement/ingestion-service/domain/entities"
	domainerrors "clipfeed/contexts/engagement/ingestion-service/domain/errors"
	"clipfeed/contexts/engagement/ingestion-service/ports"
)

// Store is the in-memory event log plus the ledger/catalog side tables the
// ingestion handlers touch. Semantics mirror the postgres adapter.
type Store struct {
	mu            sync.Mutex
	eventsByID    map[string]entities.ExternalEvent
	idByNatural   map[string]string
	creditsByTxID map[string]ports.CreditInput
	recordingURLs map[string]string
	sequence      uint64

	NowFunc func() time.Time
}

func NewStore() *Store {
	return &Store{
		eventsByID:    make(map[string]entities.ExternalEvent),
		idByNatural:   make(map[string]string),
		creditsByTxID: make(map[string]ports.CreditInput),
		recordingURLs: make(map[string]string),
		NowFunc:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Now() time.Time {
	return s.NowFunc().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return fmt.Sprintf("id_%d", atomic.AddUint64(&s.sequence, 1)), nil
}

func (s *Store) Create(
	_ context.Context,
	input ports.CreateEventInput,
) (entities.ExternalEvent, bool, error) {
	if strings.TrimSpace(input.NaturalKey) == "" || input.Kind == "" {
		return entities.ExternalEvent{}, false, domainerrors.ErrInvalidEvent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	naturalKey := strings.TrimSpace(input.NaturalKey)
	if existingID, ok := s.idByNatural[naturalKey]; ok {
		return s.eventsByID[existingID], false, nil
	}

	now := s.Now()
	event := entities.ExternalEvent{
		EventID:    fmt.Sprintf("event_%d", atomic.AddUint64(&s.sequence, 1)),
		NaturalKey: naturalKey,
		Source:     input.Source,
		Kind:       input.Kind,
		RawPayload: append([]byte(nil), input.Payload...),
		Status:     entities.ExternalEventStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.eventsByID[event.EventID] = event
	s.idByNatural[naturalKey] = event.EventID
	return event, true, nil
}

func (s *Store) Transition(
	_ context.Context,
	eventID string,
	from, to entities.ExternalEventStatus,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.eventsByID[eventID]
	if !ok || event.Status != from {
		return false, nil
	}
	event.Status = to
	event.UpdatedAt = s.Now()
	s.eventsByID[eventID] = event
	return true, nil
}

func (s *Store) RecordFailure(_ context.Context, eventID string, message string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.eventsByID[eventID]
	if !ok || event.Status != entities.ExternalEventStatusStarted {
		return false, nil
	}
	event.Status = entities.ExternalEventStatusFailed
	event.LastError = message
	event.UpdatedAt = s.Now()
	s.eventsByID[eventID] = event
	return true, nil
}

func (s *Store) ResetFailed(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.eventsByID[eventID]
	if !ok || event.Status != entities.ExternalEventStatusFailed {
		return false, nil
	}
	event.Status = entities.ExternalEventStatusPending
	event.LastError = ""
	event.UpdatedAt = s.Now()
	s.eventsByID[eventID] = event
	return true, nil
}

func (s *Store) GetEvent(_ context.Context, eventID string) (entities.ExternalEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.eventsByID[eventID]
	if !ok {
		return entities.ExternalEvent{}, domainerrors.ErrEventNotFound
	}
	return event, nil
}

func (s *Store) ListPending(_ context.Context, limit int) ([]entities.ExternalEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []entities.ExternalEvent
	for _, event := range s.eventsByID {
		if event.Status == entities.ExternalEventStatusPending {
			pending = append(pending, event)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].EventID < pending[j].EventID
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (s *Store) CreditTransaction(_ context.Context, input ports.CreditInput) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.creditsByTxID[input.TransactionID]; ok {
		return false, nil
	}
	s.creditsByTxID[input.TransactionID] = input
	return true, nil
}

// CreditedTransactions exposes ledger contents for tests.
func (s *Store) CreditedTransactions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.creditsByTxID))
	for id := range s.creditsByTxID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Store) MarkRecordingAvailable(
	_ context.Context,
	videoID string,
	recordingURL string,
	_ time.Time,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.recordingURLs[videoID]; ok {
		return false, nil
	}
	s.recordingURLs[videoID] = recordingURL
	return true, nil
}
