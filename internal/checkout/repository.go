package checkout

import (
	"context"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists payment intents.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, intent *models.PaymentIntent) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error)
	FindByReference(ctx context.Context, reference string) (*models.PaymentIntent, error)
	FindByGatewayIntent(ctx context.Context, gatewayIntentID string) (*models.PaymentIntent, error)
	UpdateIfStatus(ctx context.Context, id uuid.UUID, from enums.IntentStatus, updates map[string]any) (bool, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ExpireCollecting(ctx context.Context, before time.Time) (int64, error)
	CountByStatus(ctx context.Context, status enums.IntentStatus) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payment intent repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, intent *models.PaymentIntent) error {
	if intent.ID == uuid.Nil {
		intent.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *repository) FindByReference(ctx context.Context, reference string) (*models.PaymentIntent, error) {
	return r.findOne(ctx, "reference = ?", reference)
}

func (r *repository) FindByGatewayIntent(ctx context.Context, gatewayIntentID string) (*models.PaymentIntent, error) {
	return r.findOne(ctx, "gateway_intent_id = ?", gatewayIntentID)
}

func (r *repository) findOne(ctx context.Context, query string, args ...any) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := r.db.WithContext(ctx).Where(query, args...).First(&intent).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

// UpdateIfStatus applies updates only while the intent is still in from.
func (r *repository) UpdateIfStatus(ctx context.Context, id uuid.UUID, from enums.IntentStatus, updates map[string]any) (bool, error) {
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// ExpireCollecting closes intents whose collection window has passed.
func (r *repository) ExpireCollecting(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("status = ? AND expires_at < ?", enums.IntentStatusCollecting, before).
		Updates(map[string]any{
			"status":     enums.IntentStatusExpired,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) CountByStatus(ctx context.Context, status enums.IntentStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}
