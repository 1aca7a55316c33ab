package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"clipfeed/contexts/engagement/delivery-service/domain/entities"
	domainerrors "clipfeed/contexts/engagement/delivery-service/domain/errors"
	"clipfeed/contexts/engagement/delivery-service/ports"
)

// Store is an in-memory work queue with the same lease semantics as the
// postgres adapter. It backs unit tests and the developer bootstrap path.
type Store struct {
	mu       sync.Mutex
	items    map[string]entities.WorkItem
	sequence uint64

	// NowFunc is swappable so lease-TTL behavior is testable.
	NowFunc func() time.Time
}

func NewStore() *Store {
	return &Store{
		items:   make(map[string]entities.WorkItem),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Now() time.Time {
	return s.NowFunc().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return fmt.Sprintf("id_%d", atomic.AddUint64(&s.sequence, 1)), nil
}

func (s *Store) Enqueue(
	_ context.Context,
	kind entities.WorkItemKind,
	payload []byte,
	notBefore time.Time,
) (string, error) {
	if kind == "" {
		return "", domainerrors.ErrInvalidWorkItem
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	if notBefore.IsZero() {
		notBefore = now
	}
	id := fmt.Sprintf("item_%d", atomic.AddUint64(&s.sequence, 1))
	s.items[id] = entities.WorkItem{
		ItemID:    id,
		Kind:      kind,
		Payload:   append([]byte(nil), payload...),
		Status:    entities.WorkItemStatusPending,
		NotBefore: notBefore.UTC(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return id, nil
}

func (s *Store) Lease(_ context.Context, req ports.LeaseRequest) ([]entities.WorkItem, error) {
	if req.Owner == "" || req.BatchSize <= 0 || req.LeaseTTL <= 0 {
		return nil, domainerrors.ErrInvalidLeaseRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	expiredBefore := now.Add(-req.LeaseTTL)

	var candidates []entities.WorkItem
	for _, item := range s.items {
		if item.Kind != req.Kind {
			continue
		}
		if item.RetryCount > req.MaxRetry {
			continue
		}
		if item.NotBefore.After(now) {
			continue
		}
		claimable := (item.Status == entities.WorkItemStatusPending || item.Status == entities.WorkItemStatusFailed) &&
			item.LeaseOwner == ""
		expired := item.Status == entities.WorkItemStatusLeased &&
			item.LeasedAt != nil && item.LeasedAt.Before(expiredBefore)
		if claimable || expired {
			candidates = append(candidates, item)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].NotBefore.Equal(candidates[j].NotBefore) {
			return candidates[i].ItemID < candidates[j].ItemID
		}
		return candidates[i].NotBefore.Before(candidates[j].NotBefore)
	})
	if len(candidates) > req.BatchSize {
		candidates = candidates[:req.BatchSize]
	}

	leased := make([]entities.WorkItem, 0, len(candidates))
	leasedAt := now
	for _, item := range candidates {
		if item.LeaseOwner != "" {
			// Reclaiming an expired lease counts as one failed attempt.
			item.RetryCount++
		}
		item.Status = entities.WorkItemStatusLeased
		item.LeaseOwner = req.Owner
		item.LeasedAt = &leasedAt
		item.UpdatedAt = now
		s.items[item.ItemID] = item
		leased = append(leased, item)
	}
	return leased, nil
}

func (s *Store) Complete(
	_ context.Context,
	itemID string,
	outcome entities.WorkItemStatus,
) (bool, error) {
	if outcome != entities.WorkItemStatusProcessed && outcome != entities.WorkItemStatusIgnored {
		return false, domainerrors.ErrInvalidOutcome
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemID]
	if !ok || item.Status != entities.WorkItemStatusLeased {
		return false, nil
	}
	item.Status = outcome
	item.LeaseOwner = ""
	item.LeasedAt = nil
	item.UpdatedAt = s.Now()
	s.items[itemID] = item
	return true, nil
}

func (s *Store) Retry(
	_ context.Context,
	itemID string,
	notBefore time.Time,
	maxRetry int,
	lastError string,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemID]
	if !ok || item.Status != entities.WorkItemStatusLeased {
		return false, nil
	}
	item.RetryCount++
	if item.RetryCount > maxRetry {
		item.Status = entities.WorkItemStatusFailed
	} else {
		item.Status = entities.WorkItemStatusPending
	}
	item.LeaseOwner = ""
	item.LeasedAt = nil
	item.NotBefore = notBefore.UTC()
	item.LastError = lastError
	item.UpdatedAt = s.Now()
	s.items[itemID] = item
	return true, nil
}

func (s *Store) ResolveManually(
	_ context.Context,
	itemID string,
	outcome entities.WorkItemStatus,
) (bool, error) {
	if outcome != entities.WorkItemStatusManuallyHandled && outcome != entities.WorkItemStatusManuallyInterrupted {
		return false, domainerrors.ErrInvalidOutcome
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemID]
	if !ok || item.Status.Terminal() {
		return false, nil
	}
	item.Status = outcome
	item.LeaseOwner = ""
	item.LeasedAt = nil
	item.UpdatedAt = s.Now()
	s.items[itemID] = item
	return true, nil
}

func (s *Store) GetItem(_ context.Context, itemID string) (entities.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemID]
	if !ok {
		return entities.WorkItem{}, domainerrors.ErrWorkItemNotFound
	}
	return item, nil
}

func (s *Store) Counters(_ context.Context, maxRetry int) (ports.QueueCounters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counters := ports.QueueCounters{}
	for _, item := range s.items {
		switch item.Status {
		case entities.WorkItemStatusPending:
			counters.Pending++
		case entities.WorkItemStatusLeased:
			counters.Leased++
		case entities.WorkItemStatusProcessed:
			counters.Processed++
		case entities.WorkItemStatusIgnored:
			counters.Ignored++
		case entities.WorkItemStatusFailed:
			if item.RetryCount > maxRetry {
				counters.DeadLettered++
			}
		}
	}
	return counters, nil
}
