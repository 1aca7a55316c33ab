package queries

import (
	"context"
	"fmt"
	"strings"

	"clipfeed/contexts/engagement/notification-service/domain/entities"
	domainerrors "clipfeed/contexts/engagement/notification-service/domain/errors"
	"clipfeed/contexts/engagement/notification-service/ports"
)

const defaultListLimit = 50

type ListNotificationsQuery struct {
	Notifications ports.NotificationRepository
}

func (q ListNotificationsQuery) Execute(ctx context.Context, userID string, limit int) ([]entities.Notification, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user_id is required", domainerrors.ErrInvalidListRequest)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	return q.Notifications.ListByUser(ctx, userID, limit)
}

type CountUnreadQuery struct {
	Notifications ports.NotificationRepository
}

func (q CountUnreadQuery) Execute(ctx context.Context, userID string) (int, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("%w: user_id is required", domainerrors.ErrInvalidListRequest)
	}
	return q.Notifications.CountUnread(ctx, userID)
}
