package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderLineItem is the priced snapshot of one cart line.
type OrderLineItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null" json:"order_id"`
	Position       int       `gorm:"column:position;not null" json:"position"`
	ProductID      uuid.UUID `gorm:"column:product_id;type:uuid;not null" json:"product_id"`
	Name           string    `gorm:"column:name;not null" json:"name"`
	Variant        *string   `gorm:"column:variant" json:"variant,omitempty"`
	Qty            int       `gorm:"column:qty;not null" json:"qty"`
	UnitPricePaise int64     `gorm:"column:unit_price_paise;not null" json:"unit_price_paise"`
	DiscountPaise  int64     `gorm:"column:discount_paise;not null;default:0" json:"discount_paise"`
	TaxPaise       int64     `gorm:"column:tax_paise;not null;default:0" json:"tax_paise"`
	TotalPaise     int64     `gorm:"column:total_paise;not null" json:"total_paise"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
