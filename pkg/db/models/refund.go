package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Refund is the durable once-only record for an approved cancellation. The
// cancellation_request_id column is unique.
type Refund struct {
	ID                    uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CancellationRequestID uuid.UUID           `gorm:"column:cancellation_request_id;type:uuid;not null;uniqueIndex" json:"cancellation_request_id"`
	OrderID               uuid.UUID           `gorm:"column:order_id;type:uuid;not null" json:"order_id"`
	AmountPaise           int64               `gorm:"column:amount_paise;not null" json:"amount_paise"`
	Currency              enums.Currency      `gorm:"column:currency;type:text;not null;default:'INR'" json:"currency"`
	Channel               enums.RefundChannel `gorm:"column:channel;type:refund_channel;not null" json:"channel"`
	Status                enums.RefundStatus  `gorm:"column:status;type:refund_status;not null;default:'pending'" json:"status"`
	GatewayPaymentID      *string             `gorm:"column:gateway_payment_id" json:"gateway_payment_id,omitempty"`
	Destination           *string             `gorm:"column:destination" json:"destination,omitempty"`
	ProviderRefundID      *string             `gorm:"column:provider_refund_id" json:"provider_refund_id,omitempty"`
	AttemptCount          int                 `gorm:"column:attempt_count;not null;default:0" json:"attempt_count"`
	LastError             *string             `gorm:"column:last_error" json:"last_error,omitempty"`
	InitiatedAt           *time.Time          `gorm:"column:initiated_at" json:"initiated_at,omitempty"`
	CreatedAt             time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
