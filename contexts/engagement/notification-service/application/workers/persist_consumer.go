package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	application "clipfeed/contexts/engagement/notification-service/application"
	"clipfeed/contexts/engagement/notification-service/domain/entities"
	"clipfeed/contexts/engagement/notification-service/ports"
)

const persistConsumerGroup = "notification-persist-writer"

// PersistConsumer writes durable in-app notification rows from the persist
// topic. Delivery is at-least-once; idempotency rides on the notification id
// chosen by the planner.
type PersistConsumer struct {
	Subscriber    ports.EventSubscriber
	Notifications ports.NotificationRepository
	Logger        *slog.Logger
}

func (c PersistConsumer) Start(ctx context.Context) error {
	return c.Subscriber.Subscribe(ctx, ports.TopicPersistNotification, persistConsumerGroup, c.handle)
}

func (c PersistConsumer) handle(ctx context.Context, envelope ports.EventEnvelope) error {
	logger := application.ResolveLogger(c.Logger)

	var message ports.PersistNotificationMessage
	if err := json.Unmarshal(envelope.Data, &message); err != nil {
		// Malformed persist messages never become valid on redelivery.
		logger.Error("persist message dropped",
			"event", "notification_persist_malformed",
			"module", "engagement/notification-service",
			"layer", "application",
			"event_id", envelope.EventID,
			"error", err.Error(),
		)
		return nil
	}
	if message.NotificationID == "" || message.UserID == "" || message.Kind == "" {
		logger.Error("persist message dropped",
			"event", "notification_persist_malformed",
			"module", "engagement/notification-service",
			"layer", "application",
			"event_id", envelope.EventID,
			"error", "missing notification_id, user_id, or kind",
		)
		return nil
	}

	inserted, err := c.Notifications.CreateNotification(ctx, entities.Notification{
		NotificationID: message.NotificationID,
		UserID:         message.UserID,
		Kind:           entities.NotificationKind(message.Kind),
		ActorIDs:       message.ActorIDs,
		ActorCount:     message.ActorCount,
		SubjectUserID:  message.SubjectUserID,
		VideoID:        message.VideoID,
		CommentID:      message.CommentID,
		Data:           message.Data,
		CreatedAt:      message.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("persist notification %s: %w", message.NotificationID, err)
	}
	if !inserted {
		logger.Info("persist message deduplicated",
			"event", "notification_persist_duplicate",
			"module", "engagement/notification-service",
			"layer", "application",
			"notification_id", message.NotificationID,
			"user_id", message.UserID,
		)
		return nil
	}

	logger.Info("notification persisted",
		"event", "notification_persisted",
		"module", "engagement/notification-service",
		"layer", "application",
		"notification_id", message.NotificationID,
		"user_id", message.UserID,
		"kind", message.Kind,
	)
	return nil
}
