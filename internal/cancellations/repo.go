package cancellations

import (
	"context"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists cancellation requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, req *models.CancellationRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.CancellationRequest, error)
	FindByIDForUser(ctx context.Context, id, userID uuid.UUID) (*models.CancellationRequest, error)
	FindPendingByOrder(ctx context.Context, orderID uuid.UUID) (*models.CancellationRequest, error)
	FindLatestByOrder(ctx context.Context, orderID uuid.UUID) (*models.CancellationRequest, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.CancellationRequest, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.CancellationRequest, error)
	Resolve(ctx context.Context, id uuid.UUID, status enums.CancellationStatus, resolvedBy uuid.UUID, at time.Time) (bool, error)
	AttachVideo(ctx context.Context, id uuid.UUID, url string, at time.Time) (bool, error)
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

// Create fails with a unique violation on ux_cancellation_requests_pending_order
// when the order already has a pending request.
func (r *repository) Create(ctx context.Context, req *models.CancellationRequest) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CancellationRequest, error) {
	var req models.CancellationRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) FindByIDForUser(ctx context.Context, id, userID uuid.UUID) (*models.CancellationRequest, error) {
	var req models.CancellationRequest
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) FindPendingByOrder(ctx context.Context, orderID uuid.UUID) (*models.CancellationRequest, error) {
	var req models.CancellationRequest
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, enums.CancellationStatusPending).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) FindLatestByOrder(ctx context.Context, orderID uuid.UUID) (*models.CancellationRequest, error) {
	var req models.CancellationRequest
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Order("id DESC").
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.CancellationRequest, error) {
	return r.list(ctx, r.db.WithContext(ctx).Where("user_id = ?", userID), params)
}

func (r *repository) List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.CancellationRequest, error) {
	query := r.db.WithContext(ctx).Model(&models.CancellationRequest{})
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.DeliveryPhase != nil {
		query = query.Where("delivery_phase = ?", *filters.DeliveryPhase)
	}
	if filters.OrderID != nil {
		query = query.Where("order_id = ?", *filters.OrderID)
	}
	return r.list(ctx, query, params)
}

func (r *repository) list(_ context.Context, query *gorm.DB, params pagination.Params) ([]models.CancellationRequest, error) {
	page, err := pagination.Scope(params)
	if err != nil {
		return nil, err
	}
	var rows []models.CancellationRequest
	err = query.Scopes(page).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Resolve moves a pending request to its terminal status. It reports false when
// the request was no longer pending.
func (r *repository) Resolve(ctx context.Context, id uuid.UUID, status enums.CancellationStatus, resolvedBy uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CancellationRequest{}).
		Where("id = ? AND status = ?", id, enums.CancellationStatusPending).
		Updates(map[string]any{
			"status":      status,
			"resolved_by": resolvedBy,
			"resolved_at": at,
			"updated_at":  at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) AttachVideo(ctx context.Context, id uuid.UUID, url string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CancellationRequest{}).
		Where("id = ? AND status = ?", id, enums.CancellationStatusPending).
		Updates(map[string]any{
			"video_url":         url,
			"video_uploaded_at": at,
			"updated_at":        at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
