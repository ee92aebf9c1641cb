package checkout

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/google/uuid"
)

// PlaceOrderInput is everything checkout needs; nothing is read from ambient state.
type PlaceOrderInput struct {
	UserID        uuid.UUID
	Cart          Cart
	AddressID     uuid.UUID
	PaymentMethod enums.PaymentMethod
}

// Intent is handed to the client to run the gateway collection flow.
type Intent struct {
	Reference       string         `json:"reference"`
	GatewayIntentID string         `json:"gateway_intent_id"`
	AmountPaise     int64          `json:"amount_paise"`
	Currency        enums.Currency `json:"currency"`
	KeyID           string         `json:"key_id"`
	ExpiresAt       time.Time      `json:"expires_at"`
}

// PlaceOrderResult holds the created order for cash checkouts, or the payment
// intent for prepaid checkouts.
type PlaceOrderResult struct {
	Order  *models.Order `json:"order,omitempty"`
	Intent *Intent       `json:"intent,omitempty"`
}

// CommitInput is the client's proof that collection succeeded.
type CommitInput struct {
	UserID           uuid.UUID
	Reference        string
	GatewayPaymentID string
	Signature        string
}

// CommitResult reports the order produced by a commit. Replayed is set when
// the payment had already been committed.
type CommitResult struct {
	Order    *models.Order `json:"order"`
	Verified bool          `json:"verified"`
	Replayed bool          `json:"replayed"`
}

// CapturedPayment is a gateway-side capture notification.
type CapturedPayment struct {
	GatewayIntentID  string
	GatewayPaymentID string
}

// ReverifySummary reports one pass of the payment reconciliation job.
type ReverifySummary struct {
	Checked     int
	Verified    int
	Failed      int
	Unreachable int
	Outstanding int64
}
