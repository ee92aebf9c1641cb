package types

import "github.com/google/uuid"

// QuoteLine is one priced cart line at snapshot time.
type QuoteLine struct {
	ProductID      uuid.UUID `json:"product_id"`
	Name           string    `json:"name"`
	Variant        *string   `json:"variant,omitempty"`
	Qty            int       `json:"qty"`
	UnitPricePaise int64     `json:"unit_price_paise"`
	DiscountPaise  int64     `json:"discount_paise"`
	TaxPaise       int64     `json:"tax_paise"`
	TotalPaise     int64     `json:"total_paise"`
}

// CheckoutQuote is the immutable pricing and address snapshot a checkout is
// committed against.
type CheckoutQuote struct {
	Lines         []QuoteLine `json:"lines"`
	Address       Address     `json:"address"`
	SubtotalPaise int64       `json:"subtotal_paise"`
	DiscountPaise int64       `json:"discount_paise"`
	TaxPaise      int64       `json:"tax_paise"`
	TotalPaise    int64       `json:"total_paise"`
}
