package postgresadapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"clipfeed/contexts/engagement/delivery-service/domain/entities"
	domainerrors "clipfeed/contexts/engagement/delivery-service/domain/errors"
	"clipfeed/contexts/engagement/delivery-service/ports"
)

// Repository is the relational work queue. Claim and transition paths are
// single atomic statements; row-level locking under the claim subquery is
// the only synchronization primitive.
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

// Migrate creates the work_items table and its claim-scan index.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&workItemModel{})
}

func (r *Repository) Enqueue(
	ctx context.Context,
	kind entities.WorkItemKind,
	payload []byte,
	notBefore time.Time,
) (string, error) {
	if strings.TrimSpace(string(kind)) == "" {
		return "", domainerrors.ErrInvalidWorkItem
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	if notBefore.IsZero() {
		notBefore = now
	}
	row := workItemModel{
		ItemID:    uuid.NewString(),
		Kind:      string(kind),
		Payload:   payload,
		Status:    string(entities.WorkItemStatusPending),
		NotBefore: notBefore.UTC(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", err
	}
	return row.ItemID, nil
}

// Lease claims up to BatchSize eligible rows in one atomic UPDATE over a
// FOR UPDATE SKIP LOCKED subquery, so two concurrent calls touch disjoint
// row sets. Expired leases are reclaimed and the reclaim counts as one
// failed attempt, which keeps crash-looping items moving toward
// dead-letter. The claimed rows are re-read by owner and claim timestamp
// because the UPDATE's affected-row count does not identify them.
func (r *Repository) Lease(ctx context.Context, req ports.LeaseRequest) ([]entities.WorkItem, error) {
	if strings.TrimSpace(req.Owner) == "" || req.BatchSize <= 0 || req.LeaseTTL <= 0 {
		return nil, domainerrors.ErrInvalidLeaseRequest
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	expiredBefore := now.Add(-req.LeaseTTL)

	candidates := r.db.WithContext(ctx).
		Model(&workItemModel{}).
		Select("item_id").
		Where("kind = ?", string(req.Kind)).
		Where("retry_count <= ?", req.MaxRetry).
		Where("not_before <= ?", now).
		Where(
			"(status IN ? AND lease_owner IS NULL) OR (status = ? AND leased_at < ?)",
			[]string{string(entities.WorkItemStatusPending), string(entities.WorkItemStatusFailed)},
			string(entities.WorkItemStatusLeased),
			expiredBefore,
		).
		Order("not_before ASC").
		Limit(req.BatchSize).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})

	claim := r.db.WithContext(ctx).
		Model(&workItemModel{}).
		Where("item_id IN (?)", candidates).
		Updates(map[string]any{
			"status":      string(entities.WorkItemStatusLeased),
			"lease_owner": req.Owner,
			"leased_at":   now,
			"retry_count": gorm.Expr("CASE WHEN lease_owner IS NOT NULL THEN retry_count + 1 ELSE retry_count END"),
			"updated_at":  now,
		})
	if claim.Error != nil {
		return nil, claim.Error
	}
	if claim.RowsAffected == 0 {
		return nil, nil
	}

	var rows []workItemModel
	if err := r.db.WithContext(ctx).
		Where("lease_owner = ? AND leased_at = ?", req.Owner, now).
		Order("not_before ASC").
		Find(&rows).
		Error; err != nil {
		return nil, err
	}

	items := make([]entities.WorkItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) Complete(
	ctx context.Context,
	itemID string,
	outcome entities.WorkItemStatus,
) (bool, error) {
	if outcome != entities.WorkItemStatusProcessed && outcome != entities.WorkItemStatusIgnored {
		return false, domainerrors.ErrInvalidOutcome
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	result := r.db.WithContext(ctx).
		Model(&workItemModel{}).
		Where("item_id = ? AND status = ?", itemID, string(entities.WorkItemStatusLeased)).
		Updates(map[string]any{
			"status":      string(outcome),
			"lease_owner": nil,
			"leased_at":   nil,
			"updated_at":  now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Retry releases the lease and reschedules. When the incremented attempt
// count exceeds maxRetry the row lands in Failed and the lease predicate
// never picks it up again: the item is dead-lettered but stays inspectable.
func (r *Repository) Retry(
	ctx context.Context,
	itemID string,
	notBefore time.Time,
	maxRetry int,
	lastError string,
) (bool, error) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	result := r.db.WithContext(ctx).
		Model(&workItemModel{}).
		Where("item_id = ? AND status = ?", itemID, string(entities.WorkItemStatusLeased)).
		Updates(map[string]any{
			"status": gorm.Expr(
				"CASE WHEN retry_count + 1 > ? THEN ? ELSE ? END",
				maxRetry,
				string(entities.WorkItemStatusFailed),
				string(entities.WorkItemStatusPending),
			),
			"retry_count": gorm.Expr("retry_count + 1"),
			"lease_owner": nil,
			"leased_at":   nil,
			"not_before":  notBefore.UTC(),
			"last_error":  lastError,
			"updated_at":  now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ResolveManually is reachable only from the ops surface. It may move any
// non-terminal row, including a stuck lease.
func (r *Repository) ResolveManually(
	ctx context.Context,
	itemID string,
	outcome entities.WorkItemStatus,
) (bool, error) {
	if outcome != entities.WorkItemStatusManuallyHandled && outcome != entities.WorkItemStatusManuallyInterrupted {
		return false, domainerrors.ErrInvalidOutcome
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	result := r.db.WithContext(ctx).
		Model(&workItemModel{}).
		Where("item_id = ? AND status IN ?", itemID, []string{
			string(entities.WorkItemStatusPending),
			string(entities.WorkItemStatusLeased),
			string(entities.WorkItemStatusFailed),
		}).
		Updates(map[string]any{
			"status":      string(outcome),
			"lease_owner": nil,
			"leased_at":   nil,
			"updated_at":  now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *Repository) GetItem(ctx context.Context, itemID string) (entities.WorkItem, error) {
	var row workItemModel
	err := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.WorkItem{}, domainerrors.ErrWorkItemNotFound
		}
		return entities.WorkItem{}, err
	}
	return row.toEntity(), nil
}

func (r *Repository) Counters(ctx context.Context, maxRetry int) (ports.QueueCounters, error) {
	counters := ports.QueueCounters{}

	type statusCount struct {
		Status string
		Total  int
	}
	var rows []statusCount
	if err := r.db.WithContext(ctx).
		Model(&workItemModel{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Find(&rows).
		Error; err != nil {
		return ports.QueueCounters{}, err
	}
	for _, row := range rows {
		switch entities.WorkItemStatus(row.Status) {
		case entities.WorkItemStatusPending:
			counters.Pending = row.Total
		case entities.WorkItemStatusLeased:
			counters.Leased = row.Total
		case entities.WorkItemStatusProcessed:
			counters.Processed = row.Total
		case entities.WorkItemStatusIgnored:
			counters.Ignored = row.Total
		}
	}

	var deadLettered int64
	if err := r.db.WithContext(ctx).
		Model(&workItemModel{}).
		Where("status = ? AND retry_count > ?", string(entities.WorkItemStatusFailed), maxRetry).
		Count(&deadLettered).
		Error; err != nil {
		return ports.QueueCounters{}, err
	}
	counters.DeadLettered = int(deadLettered)

	return counters, nil
}

type workItemModel struct {
	ItemID     string     `gorm:"column:item_id;primaryKey"`
	Kind       string     `gorm:"column:kind;index:idx_work_items_claim,priority:4"`
	Payload    []byte     `gorm:"column:payload"`
	Status     string     `gorm:"column:status;index:idx_work_items_claim,priority:1"`
	LeaseOwner *string    `gorm:"column:lease_owner;index:idx_work_items_claim,priority:2"`
	LeasedAt   *time.Time `gorm:"column:leased_at"`
	RetryCount int        `gorm:"column:retry_count"`
	NotBefore  time.Time  `gorm:"column:not_before;index:idx_work_items_claim,priority:3"`
	LastError  string     `gorm:"column:last_error"`
	CreatedAt  time.Time  `gorm:"column:created_at"`
	UpdatedAt  time.Time  `gorm:"column:updated_at"`
}

func (workItemModel) TableName() string {
	return "work_items"
}

func (m workItemModel) toEntity() entities.WorkItem {
	item := entities.WorkItem{
		ItemID:     m.ItemID,
		Kind:       entities.WorkItemKind(m.Kind),
		Payload:    m.Payload,
		Status:     entities.WorkItemStatus(m.Status),
		RetryCount: m.RetryCount,
		NotBefore:  m.NotBefore,
		LastError:  m.LastError,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
	if m.LeaseOwner != nil {
		item.LeaseOwner = *m.LeaseOwner
	}
	if m.LeasedAt != nil {
		leasedAt := *m.LeasedAt
		item.LeasedAt = &leasedAt
	}
	return item
}

// NewOwnerToken mints a unique lease owner token for one worker process.
func NewOwnerToken(prefix string) string {
	if prefix == "" {
		prefix = "worker"
	}
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}
