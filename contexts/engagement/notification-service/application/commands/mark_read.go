package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	application "clipfeed/contexts/engagement/notification-service/application"
	domainerrors "clipfeed/contexts/engagement/notification-service/domain/errors"
	"clipfeed/contexts/engagement/notification-service/ports"
)

// MarkReadUseCase flips one notification to read for its owner. Already-read
// rows stay at their original read timestamp.
type MarkReadUseCase struct {
	Notifications ports.NotificationRepository
	Clock         ports.Clock
	Logger        *slog.Logger
}

func (u MarkReadUseCase) Execute(ctx context.Context, userID string, notificationID string) error {
	logger := application.ResolveLogger(u.Logger)

	if strings.TrimSpace(userID) == "" || strings.TrimSpace(notificationID) == "" {
		return fmt.Errorf("%w: user_id and notification_id are required", domainerrors.ErrInvalidListRequest)
	}

	updated, err := u.Notifications.MarkRead(ctx, userID, notificationID, u.Clock.Now().UTC())
	if err != nil {
		return err
	}
	if !updated {
		return domainerrors.ErrNotificationNotFound
	}

	logger.Info("notification marked read",
		"event", "notification_marked_read",
		"module", "engagement/notification-service",
		"layer", "application",
		"user_id", userID,
		"notification_id", notificationID,
	)
	return nil
}
