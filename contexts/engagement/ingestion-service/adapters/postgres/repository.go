package postgresadapter

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"clipfeed/contexts/engagement/ingestion-service/domain/entities"
	domainerrors "clipfeed/contexts/engagement/ingestion-service/domain/errors"
	"clipfeed/contexts/engagement/ingestion-service/ports"
)

// Repository persists the deduplicated external event log plus the ledger
// and catalog rows the ingestion handlers touch.
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
		&externalEventModel{},
		&ledgerCreditModel{},
		&videoModel{},
	)
}

// Create is a true atomic insert-or-return-existing: ON CONFLICT DO NOTHING
// on the natural-key unique index, then a re-read when no row was inserted.
// No sleep, no error juggling; concurrent duplicate deliveries both land on
// the same row.
func (r *Repository) Create(
	ctx context.Context,
	input ports.CreateEventInput,
) (entities.ExternalEvent, bool, error) {
	if strings.TrimSpace(input.NaturalKey) == "" || input.Kind == "" {
		return entities.ExternalEvent{}, false, domainerrors.ErrInvalidEvent
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	row := externalEventModel{
		EventID:    uuid.NewString(),
		NaturalKey: strings.TrimSpace(input.NaturalKey),
		Source:     input.Source,
		Kind:       string(input.Kind),
		RawPayload: input.Payload,
		Status:     string(entities.ExternalEventStatusPending),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	createResult := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "natural_key"}},
			DoNothing: true,
		}).
		Create(&row)
	if createResult.Error != nil {
		return entities.ExternalEvent{}, false, createResult.Error
	}
	if createResult.RowsAffected > 0 {
		return row.toEntity(), true, nil
	}

	var existing externalEventModel
	if err := r.db.WithContext(ctx).
		Where("natural_key = ?", row.NaturalKey).
		First(&existing).
		Error; err != nil {
		return entities.ExternalEvent{}, false, err
	}
	return existing.toEntity(), false, nil
}

// Transition is the conditional-update CAS; RowsAffected tells the caller
// whether it won.
func (r *Repository) Transition(
	ctx context.Context,
	eventID string,
	from, to entities.ExternalEventStatus,
) (bool, error) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	result := r.db.WithContext(ctx).
		Model(&externalEventModel{}).
		Where("event_id = ? AND status = ?", eventID, string(from)).
		Updates(map[string]any{
			"status":     string(to),
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *Repository) RecordFailure(ctx context.Context, eventID string, message string) (bool, error) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	result := r.db.WithContext(ctx).
		Model(&externalEventModel{}).
		Where("event_id = ? AND status = ?", eventID, string(entities.ExternalEventStatusStarted)).
		Updates(map[string]any{
			"status":     string(entities.ExternalEventStatusFailed),
			"last_error": message,
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *Repository) ResetFailed(ctx context.Context, eventID string) (bool, error) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	result := r.db.WithContext(ctx).
		Model(&externalEventModel{}).
		Where("event_id = ? AND status = ?", eventID, string(entities.ExternalEventStatusFailed)).
		Updates(map[string]any{
			"status":     string(entities.ExternalEventStatusPending),
			"last_error": "",
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *Repository) GetEvent(ctx context.Context, eventID string) (entities.ExternalEvent, error) {
	var row externalEventModel
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.ExternalEvent{}, domainerrors.ErrEventNotFound
		}
		return entities.ExternalEvent{}, err
	}
	return row.toEntity(), nil
}

func (r *Repository) ListPending(ctx context.Context, limit int) ([]entities.ExternalEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []externalEventModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", string(entities.ExternalEventStatusPending)).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).
		Error; err != nil {
		return nil, err
	}
	events := make([]entities.ExternalEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, row.toEntity())
	}
	return events, nil
}

// CreditTransaction inserts the credit row keyed by transaction id; a
// conflict means a previous delivery already credited it.
func (r *Repository) CreditTransaction(ctx context.Context, input ports.CreditInput) (bool, error) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	row := ledgerCreditModel{
		TransactionID: input.TransactionID,
		CreatorID:     input.CreatorID,
		AmountCents:   input.AmountCents,
		Currency:      input.Currency,
		OccurredAt:    input.OccurredAt.UTC(),
		CreditedAt:    now,
	}
	createResult := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "transaction_id"}},
			DoNothing: true,
		}).
		Create(&row)
	if createResult.Error != nil {
		return false, createResult.Error
	}
	return createResult.RowsAffected > 0, nil
}

func (r *Repository) MarkRecordingAvailable(
	ctx context.Context,
	videoID string,
	recordingURL string,
	at time.Time,
) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&videoModel{}).
		Where("video_id = ? AND recording_url = ''", videoID).
		Updates(map[string]any{
			"recording_url": recordingURL,
			"published_at":  at.UTC(),
			"updated_at":    at.UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	// First sighting of this video id: create the catalog row directly.
	row := videoModel{
		VideoID:      videoID,
		RecordingURL: recordingURL,
		PublishedAt:  at.UTC(),
		CreatedAt:    at.UTC(),
		UpdatedAt:    at.UTC(),
	}
	createResult := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "video_id"}},
			DoNothing: true,
		}).
		Create(&row)
	if createResult.Error != nil {
		return false, createResult.Error
	}
	return createResult.RowsAffected > 0, nil
}

type externalEventModel struct {
	EventID    string    `gorm:"column:event_id;primaryKey"`
	NaturalKey string    `gorm:"column:natural_key;uniqueIndex"`
	Source     string    `gorm:"column:source"`
	Kind       string    `gorm:"column:kind"`
	RawPayload []byte    `gorm:"column:raw_payload"`
	Status     string    `gorm:"column:status;index"`
	LastError  string    `gorm:"column:last_error"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (externalEventModel) TableName() string {
	return "external_events"
}

func (m externalEventModel) toEntity() entities.ExternalEvent {
	return entities.ExternalEvent{
		EventID:    m.EventID,
		NaturalKey: m.NaturalKey,
		Source:     m.Source,
		Kind:       entities.ExternalEventKind(m.Kind),
		RawPayload: m.RawPayload,
		Status:     entities.ExternalEventStatus(m.Status),
		LastError:  m.LastError,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

type ledgerCreditModel struct {
	TransactionID string    `gorm:"column:transaction_id;primaryKey"`
	CreatorID     string    `gorm:"column:creator_id;index"`
	AmountCents   int64     `gorm:"column:amount_cents"`
	Currency      string    `gorm:"column:currency"`
	OccurredAt    time.Time `gorm:"column:occurred_at"`
	CreditedAt    time.Time `gorm:"column:credited_at"`
}

func (ledgerCreditModel) TableName() string {
	return "ledger_credits"
}

type videoModel struct {
	VideoID      string    `gorm:"column:video_id;primaryKey"`
	RecordingURL string    `gorm:"column:recording_url"`
	PublishedAt  time.Time `gorm:"column:published_at"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (videoModel) TableName() string {
	return "videos"
}
