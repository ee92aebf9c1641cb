package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// CancellationRequest is a customer's request to cancel an order. DeliveryPhase is
// fixed at filing time.
type CancellationRequest struct {
	ID              uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID         uuid.UUID                `gorm:"column:order_id;type:uuid;not null" json:"order_id"`
	UserID          uuid.UUID                `gorm:"column:user_id;type:uuid;not null" json:"user_id"`
	Reason          string                   `gorm:"column:reason;not null" json:"reason"`
	Status          enums.CancellationStatus `gorm:"column:status;type:cancellation_status;not null;default:'PENDING'" json:"status"`
	DeliveryPhase   enums.DeliveryPhase      `gorm:"column:delivery_phase;type:delivery_phase;not null" json:"delivery_phase"`
	UpiID           *string                  `gorm:"column:upi_id" json:"upi_id,omitempty"`
	VideoURL        *string                  `gorm:"column:video_url" json:"video_url,omitempty"`
	VideoUploadedAt *time.Time               `gorm:"column:video_uploaded_at" json:"video_uploaded_at,omitempty"`
	ResolvedBy      *uuid.UUID               `gorm:"column:resolved_by;type:uuid" json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time               `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
	CreatedAt       time.Time                `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time                `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
