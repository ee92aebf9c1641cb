package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Order is one customer purchase. Amounts, items, method and address are
// snapshotted at creation and never recomputed.
type Order struct {
	ID                   uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID               uuid.UUID                 `gorm:"column:user_id;type:uuid;not null" json:"user_id"`
	Status               enums.OrderStatus         `gorm:"column:status;type:order_status;not null;default:'PENDING'" json:"status"`
	PaymentMethod        enums.PaymentMethod       `gorm:"column:payment_method;type:payment_method;not null" json:"payment_method"`
	Currency             enums.Currency            `gorm:"column:currency;type:text;not null;default:'INR'" json:"currency"`
	SubtotalPaise        int64                     `gorm:"column:subtotal_paise;not null" json:"subtotal_paise"`
	DiscountPaise        int64                     `gorm:"column:discount_paise;not null;default:0" json:"discount_paise"`
	TaxPaise             int64                     `gorm:"column:tax_paise;not null;default:0" json:"tax_paise"`
	TotalPaise           int64                     `gorm:"column:total_paise;not null" json:"total_paise"`
	ShippingAddress      types.Address             `gorm:"column:shipping_address;type:jsonb;serializer:json;not null" json:"shipping_address"`
	PaymentIntentID      *uuid.UUID                `gorm:"column:payment_intent_id;type:uuid" json:"payment_intent_id,omitempty"`
	GatewayPaymentID     *string                   `gorm:"column:gateway_payment_id" json:"gateway_payment_id,omitempty"`
	PaymentVerification  enums.PaymentVerification `gorm:"column:payment_verification;type:payment_verification;not null;default:'not_required'" json:"payment_verification"`
	NeedsReconciliation  bool                      `gorm:"column:needs_reconciliation;not null;default:false" json:"needs_reconciliation"`
	ReconciliationReason *string                   `gorm:"column:reconciliation_reason" json:"reconciliation_reason,omitempty"`
	PaidAt               *time.Time                `gorm:"column:paid_at" json:"paid_at,omitempty"`
	ShippedAt            *time.Time                `gorm:"column:shipped_at" json:"shipped_at,omitempty"`
	DeliveredAt          *time.Time                `gorm:"column:delivered_at" json:"delivered_at,omitempty"`
	CanceledAt           *time.Time                `gorm:"column:canceled_at" json:"canceled_at,omitempty"`
	Items                []OrderLineItem           `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt            time.Time                 `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time                 `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
