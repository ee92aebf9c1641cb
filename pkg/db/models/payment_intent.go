package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// PaymentIntent is the provisional, amount-bound record created before a
// prepaid order exists. Reference is the disposable checkout reference.
type PaymentIntent struct {
	ID                   uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Reference            string              `gorm:"column:reference;not null;uniqueIndex" json:"reference"`
	UserID               uuid.UUID           `gorm:"column:user_id;type:uuid;not null" json:"user_id"`
	Method               enums.PaymentMethod `gorm:"column:method;type:payment_method;not null" json:"method"`
	Status               enums.IntentStatus  `gorm:"column:status;type:intent_status;not null;default:'collecting'" json:"status"`
	Currency             enums.Currency      `gorm:"column:currency;type:text;not null;default:'INR'" json:"currency"`
	AmountPaise          int64               `gorm:"column:amount_paise;not null" json:"amount_paise"`
	GatewayIntentID      string              `gorm:"column:gateway_intent_id;not null" json:"gateway_intent_id"`
	Snapshot             types.CheckoutQuote `gorm:"column:snapshot;type:jsonb;serializer:json;not null" json:"-"`
	OrderID              *uuid.UUID          `gorm:"column:order_id;type:uuid" json:"order_id,omitempty"`
	GatewayPaymentID     *string             `gorm:"column:gateway_payment_id" json:"gateway_payment_id,omitempty"`
	ReconciliationReason *string             `gorm:"column:reconciliation_reason" json:"reconciliation_reason,omitempty"`
	ExpiresAt            time.Time           `gorm:"column:expires_at;not null" json:"expires_at"`
	CreatedAt            time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
