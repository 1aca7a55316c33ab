package ports

import (
	"context"
	"encoding/json"
	"time"

	"clipfeed/contexts/engagement/notification-service/domain/entities"
)

// TopicPersistNotification carries the at-least-once persist messages
// produced by the planner, one per recipient.
const TopicPersistNotification = "notifications.persist"

// EventEnvelope is the outbound integration frame used on the bus.
type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	SourceService string          `json:"source_service"`
	OccurredAtUTC time.Time       `json:"occurred_at_utc"`
	EntityType    string          `json:"entity_type"`
	EntityID      string          `json:"entity_id"`
	Data          json.RawMessage `json:"data"`
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

type EventSubscriber interface {
	Subscribe(
		ctx context.Context,
		topic string,
		consumerGroup string,
		handler func(context.Context, EventEnvelope) error,
	) error
}

// PersistNotificationMessage is the persist-message body. The consumer is
// idempotent on NotificationID, so redelivery is harmless.
type PersistNotificationMessage struct {
	NotificationID string            `json:"notification_id"`
	UserID         string            `json:"user_id"`
	Kind           string            `json:"kind"`
	ActorIDs       []string          `json:"actor_ids"`
	ActorCount     int               `json:"actor_count"`
	SubjectUserID  string            `json:"subject_user_id,omitempty"`
	VideoID        string            `json:"video_id,omitempty"`
	CommentID      string            `json:"comment_id,omitempty"`
	Data           map[string]string `json:"data,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// NotificationRepository persists and queries durable in-app rows.
type NotificationRepository interface {
	// CreateNotification inserts the row; false means the id was already
	// persisted by an earlier delivery.
	CreateNotification(ctx context.Context, notification entities.Notification) (bool, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]entities.Notification, error)
	MarkRead(ctx context.Context, userID string, notificationID string, at time.Time) (bool, error)
	CountUnread(ctx context.Context, userID string) (int, error)
}

// SocialGraphRepository answers audience and suppression questions.
type SocialGraphRepository interface {
	ListFollowerIDs(ctx context.Context, userID string) ([]string, error)
	// FilterSuppressedRecipients drops recipients who muted or blocked the
	// actor and returns the survivors in input order.
	FilterSuppressedRecipients(ctx context.Context, actorID string, recipientIDs []string) ([]string, error)
}

// PreferenceRepository gates optional channels per user and kind.
// Absent preferences default to allowed.
type PreferenceRepository interface {
	AllowsPush(ctx context.Context, userID string, kind entities.NotificationKind) (bool, error)
	AllowsEmail(ctx context.Context, userID string, kind entities.NotificationKind) (bool, error)
}

// WorkQueue is the delivery queue seen from this context. Kind travels as a
// plain string so the two contexts stay decoupled; bootstrap bridges them.
type WorkQueue interface {
	Enqueue(ctx context.Context, kind string, payload []byte, notBefore time.Time) (string, error)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
