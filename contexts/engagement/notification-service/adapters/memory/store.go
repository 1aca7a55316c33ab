package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"clipfeed/contexts/engagement/notification-service/domain/entities"
	domainerrors "clipfeed/contexts/engagement/notification-service/domain/errors"
)

type preferenceKey struct {
	userID  string
	kind    entities.NotificationKind
	channel string
}

// Store is the in-memory backing used by tests and local runs. It mirrors
// the postgres adapter's semantics, including default-allow preferences and
// insert dedupe on notification id.
type Store struct {
	mu            sync.Mutex
	notifications map[string]entities.Notification
	followers     map[string][]string
	suppressed    map[string]map[string]struct{}
	preferences   map[preferenceKey]bool

	sequence atomic.Int64

	// NowFunc is swappable so tests can control time.
	NowFunc func() time.Time
}

func NewStore() *Store {
	return &Store{
		notifications: make(map[string]entities.Notification),
		followers:     make(map[string][]string),
		suppressed:    make(map[string]map[string]struct{}),
		preferences:   make(map[preferenceKey]bool),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *Store) Now() time.Time {
	return s.NowFunc()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return fmt.Sprintf("mem-notification-%d", s.sequence.Add(1)), nil
}

func (s *Store) CreateNotification(
	_ context.Context,
	notification entities.Notification,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.notifications[notification.NotificationID]; exists {
		return false, nil
	}
	s.notifications[notification.NotificationID] = notification
	return true, nil
}

func (s *Store) ListByUser(
	_ context.Context,
	userID string,
	limit int,
) ([]entities.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []entities.Notification
	for _, notification := range s.notifications {
		if notification.UserID == userID {
			matched = append(matched, notification)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *Store) MarkRead(
	_ context.Context,
	userID string,
	notificationID string,
	at time.Time,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	notification, exists := s.notifications[notificationID]
	if !exists || notification.UserID != userID {
		return false, domainerrors.ErrNotificationNotFound
	}
	if notification.ReadAt != nil {
		return true, nil
	}
	readAt := at.UTC()
	notification.ReadAt = &readAt
	s.notifications[notificationID] = notification
	return true, nil
}

func (s *Store) CountUnread(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, notification := range s.notifications {
		if notification.UserID == userID && notification.ReadAt == nil {
			count++
		}
	}
	return count, nil
}

func (s *Store) ListFollowerIDs(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	followers := make([]string, len(s.followers[userID]))
	copy(followers, s.followers[userID])
	sort.Strings(followers)
	return followers, nil
}

func (s *Store) FilterSuppressedRecipients(
	_ context.Context,
	actorID string,
	recipientIDs []string,
) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]string, 0, len(recipientIDs))
	for _, id := range recipientIDs {
		if _, drop := s.suppressed[id][actorID]; drop {
			continue
		}
		kept = append(kept, id)
	}
	return kept, nil
}

func (s *Store) AllowsPush(
	_ context.Context,
	userID string,
	kind entities.NotificationKind,
) (bool, error) {
	return s.channelAllowed(userID, kind, "push"), nil
}

func (s *Store) AllowsEmail(
	_ context.Context,
	userID string,
	kind entities.NotificationKind,
) (bool, error) {
	return s.channelAllowed(userID, kind, "email"), nil
}

func (s *Store) channelAllowed(userID string, kind entities.NotificationKind, channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	allowed, exists := s.preferences[preferenceKey{userID: userID, kind: kind, channel: channel}]
	if !exists {
		return true
	}
	return allowed
}

// AddFollow records follower -> followee for audience computation.
func (s *Store) AddFollow(followerID, followeeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.followers[followeeID] = append(s.followers[followeeID], followerID)
}

// AddSuppression records that userID muted or blocked targetID.
func (s *Store) AddSuppression(userID, targetID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.suppressed[userID] == nil {
		s.suppressed[userID] = make(map[string]struct{})
	}
	s.suppressed[userID][targetID] = struct{}{}
}

// SetPreference overrides the default-allow for one user, kind, and channel.
func (s *Store) SetPreference(userID string, kind entities.NotificationKind, channel string, allowed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preferences[preferenceKey{userID: userID, kind: kind, channel: channel}] = allowed
}

// GetNotification is a test helper.
func (s *Store) GetNotification(notificationID string) (entities.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	notification, exists := s.notifications[notificationID]
	return notification, exists
}
