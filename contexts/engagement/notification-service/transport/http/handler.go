package http

import (
	"context"
	"time"

	"clipfeed/contexts/engagement/notification-service/application/commands"
	"clipfeed/contexts/engagement/notification-service/application/queries"
	"clipfeed/contexts/engagement/notification-service/domain/entities"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type NotificationResponse struct {
	NotificationID string            `json:"notification_id"`
	Kind           string            `json:"kind"`
	ActorIDs       []string          `json:"actor_ids"`
	ActorCount     int               `json:"actor_count"`
	SubjectUserID  string            `json:"subject_user_id,omitempty"`
	VideoID        string            `json:"video_id,omitempty"`
	CommentID      string            `json:"comment_id,omitempty"`
	Data           map[string]string `json:"data,omitempty"`
	ReadAt         *time.Time        `json:"read_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

type ListNotificationsResponse struct {
	Notifications []NotificationResponse `json:"notifications"`
}

type UnreadCountResponse struct {
	UserID string `json:"user_id"`
	Unread int    `json:"unread"`
}

// Handler exposes the recipient-facing notification read side.
type Handler struct {
	List        queries.ListNotificationsQuery
	CountUnread queries.CountUnreadQuery
	MarkRead    commands.MarkReadUseCase
}

func (h Handler) ListNotificationsHandler(
	ctx context.Context,
	userID string,
	limit int,
) (ListNotificationsResponse, error) {
	notifications, err := h.List.Execute(ctx, userID, limit)
	if err != nil {
		return ListNotificationsResponse{}, err
	}
	resp := ListNotificationsResponse{
		Notifications: make([]NotificationResponse, 0, len(notifications)),
	}
	for _, notification := range notifications {
		resp.Notifications = append(resp.Notifications, toNotificationResponse(notification))
	}
	return resp, nil
}

func (h Handler) UnreadCountHandler(ctx context.Context, userID string) (UnreadCountResponse, error) {
	unread, err := h.CountUnread.Execute(ctx, userID)
	if err != nil {
		return UnreadCountResponse{}, err
	}
	return UnreadCountResponse{UserID: userID, Unread: unread}, nil
}

func (h Handler) MarkReadHandler(ctx context.Context, userID string, notificationID string) error {
	return h.MarkRead.Execute(ctx, userID, notificationID)
}

func toNotificationResponse(notification entities.Notification) NotificationResponse {
	return NotificationResponse{
		NotificationID: notification.NotificationID,
		Kind:           string(notification.Kind),
		ActorIDs:       notification.ActorIDs,
		ActorCount:     notification.ActorCount,
		SubjectUserID:  notification.SubjectUserID,
		VideoID:        notification.VideoID,
		CommentID:      notification.CommentID,
		Data:           notification.Data,
		ReadAt:         notification.ReadAt,
		CreatedAt:      notification.CreatedAt,
	}
}
