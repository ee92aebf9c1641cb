package refunds

import (
	"context"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxLastErrorLength = 1024

// Repository persists refund records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateIfAbsent(ctx context.Context, refund *models.Refund) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Refund, error)
	FindByRequest(ctx context.Context, requestID uuid.UUID) (*models.Refund, error)
	Claim(ctx context.Context, id uuid.UUID) (bool, error)
	MarkInitiated(ctx context.Context, id uuid.UUID, providerRefundID *string, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
	ReleaseStale(ctx context.Context, olderThan time.Time) (int64, error)
	ListRetryable(ctx context.Context, maxAttempts, limit int) ([]models.Refund, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.Refund, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// CreateIfAbsent inserts the refund unless one already exists for the request.
// It does not abort the surrounding transaction on conflict.
func (r *repository) CreateIfAbsent(ctx context.Context, refund *models.Refund) error {
	if refund.ID == uuid.Nil {
		refund.ID = uuid.New()
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cancellation_request_id"}},
			DoNothing: true,
		}).
		Create(refund).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Refund, error) {
	var refund models.Refund
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&refund).Error; err != nil {
		return nil, err
	}
	return &refund, nil
}

func (r *repository) FindByRequest(ctx context.Context, requestID uuid.UUID) (*models.Refund, error) {
	var refund models.Refund
	err := r.db.WithContext(ctx).
		Where("cancellation_request_id = ?", requestID).
		First(&refund).Error
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

// Claim moves a pending or failed refund to processing and counts the attempt.
// Only one caller can win the claim.
func (r *repository) Claim(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Refund{}).
		Where("id = ? AND status IN ?", id, enums.ClaimableRefundStatuses()).
		Updates(map[string]any{
			"status":        enums.RefundStatusProcessing,
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkInitiated(ctx context.Context, id uuid.UUID, providerRefundID *string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Refund{}).
		Where("id = ? AND status = ?", id, enums.RefundStatusProcessing).
		Updates(map[string]any{
			"status":             enums.RefundStatusInitiated,
			"provider_refund_id": providerRefundID,
			"initiated_at":       at,
			"last_error":         nil,
			"updated_at":         at,
		}).Error
}

func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	if len(lastError) > maxLastErrorLength {
		lastError = lastError[:maxLastErrorLength]
	}
	return r.db.WithContext(ctx).
		Model(&models.Refund{}).
		Where("id = ? AND status = ?", id, enums.RefundStatusProcessing).
		Updates(map[string]any{
			"status":     enums.RefundStatusFailed,
			"last_error": lastError,
			"updated_at": time.Now().UTC(),
		}).Error
}

// ReleaseStale marks refunds stuck in processing (a dispatcher died mid-call) as
// failed so they become retryable.
func (r *repository) ReleaseStale(ctx context.Context, olderThan time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Refund{}).
		Where("status = ? AND updated_at < ?", enums.RefundStatusProcessing, olderThan).
		Updates(map[string]any{
			"status":     enums.RefundStatusFailed,
			"last_error": "dispatch interrupted",
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) ListRetryable(ctx context.Context, maxAttempts, limit int) ([]models.Refund, error) {
	var rows []models.Refund
	err := r.db.WithContext(ctx).
		Where("status IN ? AND attempt_count < ?", enums.ClaimableRefundStatuses(), maxAttempts).
		Order("updated_at ASC").
		Limit(pagination.NormalizeLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.Refund, error) {
	query := r.db.WithContext(ctx).Model(&models.Refund{})
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.Channel != nil {
		query = query.Where("channel = ?", *filters.Channel)
	}
	page, err := pagination.Scope(params)
	if err != nil {
		return nil, err
	}

	var rows []models.Refund
	err = query.Scopes(page).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
