package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"clipfeed/contexts/engagement/notification-service/domain/entities"
	domainerrors "clipfeed/contexts/engagement/notification-service/domain/errors"
)

const pgUniqueViolation = "23505"

// Repository persists notification rows plus the social graph and channel
// preference tables the planner reads.
type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&notificationModel{},
		&followModel{},
		&suppressionModel{},
		&preferenceModel{},
	)
}

// CreateNotification inserts the row keyed by the planner-chosen id. A
// unique violation means a previous delivery of the same persist message
// already landed, which is the expected redelivery path, not an error.
func (r *Repository) CreateNotification(
	ctx context.Context,
	notification entities.Notification,
) (bool, error) {
	row, err := notificationToModel(notification)
	if err != nil {
		return false, err
	}

	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return false, nil
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *Repository) ListByUser(
	ctx context.Context,
	userID string,
	limit int,
) ([]entities.Notification, error) {
	var rows []notificationModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).
		Error; err != nil {
		return nil, err
	}
	notifications := make([]entities.Notification, 0, len(rows))
	for _, row := range rows {
		notification, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, notification)
	}
	return notifications, nil
}

func (r *Repository) MarkRead(
	ctx context.Context,
	userID string,
	notificationID string,
	at time.Time,
) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&notificationModel{}).
		Where("notification_id = ? AND user_id = ? AND read_at IS NULL", notificationID, userID).
		Update("read_at", at.UTC().Truncate(time.Microsecond))
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 1 {
		return true, nil
	}

	// Distinguish "already read" from "not yours / not found".
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&notificationModel{}).
		Where("notification_id = ? AND user_id = ?", notificationID, userID).
		Count(&count).
		Error; err != nil {
		return false, err
	}
	if count == 0 {
		return false, domainerrors.ErrNotificationNotFound
	}
	return true, nil
}

func (r *Repository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&notificationModel{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Count(&count).
		Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *Repository) ListFollowerIDs(ctx context.Context, userID string) ([]string, error) {
	var followerIDs []string
	if err := r.db.WithContext(ctx).
		Model(&followModel{}).
		Where("followee_id = ?", userID).
		Order("follower_id ASC").
		Pluck("follower_id", &followerIDs).
		Error; err != nil {
		return nil, err
	}
	return followerIDs, nil
}

// FilterSuppressedRecipients drops every recipient with a mute or block row
// against the actor, preserving input order.
func (r *Repository) FilterSuppressedRecipients(
	ctx context.Context,
	actorID string,
	recipientIDs []string,
) ([]string, error) {
	if len(recipientIDs) == 0 {
		return nil, nil
	}

	var suppressed []string
	if err := r.db.WithContext(ctx).
		Model(&suppressionModel{}).
		Where("target_id = ? AND user_id IN ?", actorID, recipientIDs).
		Pluck("user_id", &suppressed).
		Error; err != nil {
		return nil, err
	}

	blocked := make(map[string]struct{}, len(suppressed))
	for _, id := range suppressed {
		blocked[id] = struct{}{}
	}

	kept := make([]string, 0, len(recipientIDs))
	for _, id := range recipientIDs {
		if _, drop := blocked[id]; drop {
			continue
		}
		kept = append(kept, id)
	}
	return kept, nil
}

func (r *Repository) AllowsPush(
	ctx context.Context,
	userID string,
	kind entities.NotificationKind,
) (bool, error) {
	return r.channelAllowed(ctx, userID, kind, "push")
}

func (r *Repository) AllowsEmail(
	ctx context.Context,
	userID string,
	kind entities.NotificationKind,
) (bool, error) {
	return r.channelAllowed(ctx, userID, kind, "email")
}

// channelAllowed defaults to allowed when no preference row exists.
func (r *Repository) channelAllowed(
	ctx context.Context,
	userID string,
	kind entities.NotificationKind,
	channel string,
) (bool, error) {
	var row preferenceModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND kind = ? AND channel = ?", userID, string(kind), channel).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return true, nil
		}
		return false, err
	}
	return row.Allowed, nil
}

type notificationModel struct {
	NotificationID string     `gorm:"column:notification_id;primaryKey"`
	UserID         string     `gorm:"column:user_id;index:idx_notifications_user_created"`
	Kind           string     `gorm:"column:kind"`
	ActorIDs       string     `gorm:"column:actor_ids"`
	ActorCount     int        `gorm:"column:actor_count"`
	SubjectUserID  string     `gorm:"column:subject_user_id"`
	VideoID        string     `gorm:"column:video_id"`
	CommentID      string     `gorm:"column:comment_id"`
	Data           string     `gorm:"column:data"`
	ReadAt         *time.Time `gorm:"column:read_at"`
	CreatedAt      time.Time  `gorm:"column:created_at;index:idx_notifications_user_created"`
}

func (notificationModel) TableName() string {
	return "notifications"
}

func notificationToModel(notification entities.Notification) (notificationModel, error) {
	actorIDs, err := json.Marshal(notification.ActorIDs)
	if err != nil {
		return notificationModel{}, err
	}
	data := "{}"
	if len(notification.Data) > 0 {
		encoded, err := json.Marshal(notification.Data)
		if err != nil {
			return notificationModel{}, err
		}
		data = string(encoded)
	}
	return notificationModel{
		NotificationID: notification.NotificationID,
		UserID:         notification.UserID,
		Kind:           string(notification.Kind),
		ActorIDs:       string(actorIDs),
		ActorCount:     notification.ActorCount,
		SubjectUserID:  notification.SubjectUserID,
		VideoID:        notification.VideoID,
		CommentID:      notification.CommentID,
		Data:           data,
		ReadAt:         notification.ReadAt,
		CreatedAt:      notification.CreatedAt.UTC().Truncate(time.Microsecond),
	}, nil
}

func (m notificationModel) toEntity() (entities.Notification, error) {
	var actorIDs []string
	if m.ActorIDs != "" {
		if err := json.Unmarshal([]byte(m.ActorIDs), &actorIDs); err != nil {
			return entities.Notification{}, err
		}
	}
	var data map[string]string
	if m.Data != "" && m.Data != "{}" {
		if err := json.Unmarshal([]byte(m.Data), &data); err != nil {
			return entities.Notification{}, err
		}
	}
	return entities.Notification{
		NotificationID: m.NotificationID,
		UserID:         m.UserID,
		Kind:           entities.NotificationKind(m.Kind),
		ActorIDs:       actorIDs,
		ActorCount:     m.ActorCount,
		SubjectUserID:  m.SubjectUserID,
		VideoID:        m.VideoID,
		CommentID:      m.CommentID,
		Data:           data,
		ReadAt:         m.ReadAt,
		CreatedAt:      m.CreatedAt,
	}, nil
}

type followModel struct {
	FollowerID string    `gorm:"column:follower_id;primaryKey"`
	FolloweeID string    `gorm:"column:followee_id;primaryKey;index"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (followModel) TableName() string {
	return "follows"
}

// suppressionModel records a mute or block by user_id against target_id.
type suppressionModel struct {
	UserID    string    `gorm:"column:user_id;primaryKey"`
	TargetID  string    `gorm:"column:target_id;primaryKey;index"`
	Kind      string    `gorm:"column:kind"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (suppressionModel) TableName() string {
	return "user_suppressions"
}

type preferenceModel struct {
	UserID  string `gorm:"column:user_id;primaryKey"`
	Kind    string `gorm:"column:kind;primaryKey"`
	Channel string `gorm:"column:channel;primaryKey"`
	Allowed bool   `gorm:"column:allowed"`
}

func (preferenceModel) TableName() string {
	return "notification_preferences"
}
