package checkout

import (
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const maxLineQty = 99

var hundred = decimal.NewFromInt(100)

// CartItem is one line of the client-held cart.
type CartItem struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Qty       int       `json:"qty" validate:"required,min=1,max=99"`
	Variant   *string   `json:"variant,omitempty"`
}

// Cart is the client-held cart submitted at checkout.
type Cart struct {
	Items []CartItem `json:"items" validate:"required,min=1,dive"`
}

// BuildQuote prices the cart against catalog pricing. Discount and tax are
// percentages rounded half away from zero to whole paise per line.
func BuildQuote(cart Cart, prices map[uuid.UUID]catalog.Pricing, address types.Address) (types.CheckoutQuote, error) {
	if len(cart.Items) == 0 {
		return types.CheckoutQuote{}, ErrEmptyCart
	}
	quote := types.CheckoutQuote{
		Lines:   make([]types.QuoteLine, 0, len(cart.Items)),
		Address: address,
	}
	for _, item := range cart.Items {
		if item.Qty <= 0 || item.Qty > maxLineQty {
			return types.CheckoutQuote{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity out of range").
				WithDetails(map[string]any{"productId": item.ProductID, "max": maxLineQty})
		}
		price, ok := prices[item.ProductID]
		if !ok {
			return types.CheckoutQuote{}, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"productId": item.ProductID})
		}

		gross := decimal.NewFromInt(price.PricePaise).Mul(decimal.NewFromInt(int64(item.Qty)))
		discount := gross.Mul(price.DiscountPercent).Div(hundred).Round(0)
		taxable := gross.Sub(discount)
		tax := taxable.Mul(price.TaxRatePercent).Div(hundred).Round(0)

		line := types.QuoteLine{
			ProductID:      item.ProductID,
			Name:           price.Name,
			Variant:        item.Variant,
			Qty:            item.Qty,
			UnitPricePaise: price.PricePaise,
			DiscountPaise:  discount.IntPart(),
			TaxPaise:       tax.IntPart(),
			TotalPaise:     taxable.Add(tax).IntPart(),
		}
		quote.Lines = append(quote.Lines, line)
		quote.SubtotalPaise += gross.IntPart()
		quote.DiscountPaise += line.DiscountPaise
		quote.TaxPaise += line.TaxPaise
		quote.TotalPaise += line.TotalPaise
	}
	if quote.TotalPaise <= 0 {
		return types.CheckoutQuote{}, pkgerrors.New(pkgerrors.CodeValidation, "order total must be positive")
	}
	return quote, nil
}
