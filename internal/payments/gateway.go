package payments

import (
	"context"
	"fmt"
	"strings"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/razorpay"
)

// Proof is the client-side collection result returned by the provider.
type Proof struct {
	PaymentID string
	Signature string
}

// RefundReceipt is the provider acknowledgement of an issued refund.
type RefundReceipt struct {
	ID     string
	Status string
}

// Gateway is the payment provider contract used by checkout and refunds.
type Gateway interface {
	CreateIntent(ctx context.Context, amountPaise int64, reference string) (string, error)
	Verify(ctx context.Context, intentID string, proof Proof, orderID string) (bool, error)
	ConfirmPayment(ctx context.Context, intentID, paymentID string) (bool, error)
	Refund(ctx context.Context, paymentID string, amountPaise int64, receipt string) (*RefundReceipt, error)
	RefundedAmount(ctx context.Context, paymentID string) (int64, error)
	VerifyWebhook(body []byte, signature string) bool
	KeyID() string
}

type provider interface {
	KeyID() string
	CreateOrder(ctx context.Context, amountPaise int64, receipt string, notes map[string]string) (*razorpay.Order, error)
	FetchPayment(ctx context.Context, paymentID string) (*razorpay.Payment, error)
	RefundPayment(ctx context.Context, paymentID string, amountPaise int64, receipt string) (*razorpay.Refund, error)
	VerifyPaymentSignature(orderID, paymentID, signature string) bool
	VerifyWebhookSignature(body []byte, signature string) bool
}

type razorpayGateway struct {
	client provider
	logg   *logger.Logger
}

// NewRazorpayGateway adapts the Razorpay client to the Gateway contract.
func NewRazorpayGateway(client *razorpay.Client, logg *logger.Logger) (Gateway, error) {
	if client == nil {
		return nil, fmt.Errorf("razorpay client required")
	}
	return newGateway(client, logg)
}

func newGateway(client provider, logg *logger.Logger) (Gateway, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &razorpayGateway{client: client, logg: logg}, nil
}

func (g *razorpayGateway) KeyID() string {
	return g.client.KeyID()
}

func (g *razorpayGateway) CreateIntent(ctx context.Context, amountPaise int64, reference string) (string, error) {
	if amountPaise <= 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "intent amount must be positive")
	}
	if strings.TrimSpace(reference) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "intent reference is required")
	}
	order, err := g.client.CreateOrder(ctx, amountPaise, reference, map[string]string{"reference": reference})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment gateway unavailable")
	}
	if order.Amount != 0 && order.Amount != amountPaise {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "payment gateway returned a mismatched intent amount")
	}
	return order.ID, nil
}

// Verify checks the signed proof, then confirms with the provider that the
// payment belongs to the intent and was collected. A false result is a
// definitive rejection; an error means the provider could not be consulted.
func (g *razorpayGateway) Verify(ctx context.Context, intentID string, proof Proof, orderID string) (bool, error) {
	ctx = g.logg.WithOrderID(ctx, orderID)
	if !g.client.VerifyPaymentSignature(intentID, proof.PaymentID, proof.Signature) {
		g.logg.Warn(ctx, "payment signature mismatch")
		return false, nil
	}

	return g.ConfirmPayment(ctx, intentID, proof.PaymentID)
}

// ConfirmPayment asks the provider whether the payment was collected against
// the intent. Reconciliation uses it when no client proof is at hand.
func (g *razorpayGateway) ConfirmPayment(ctx context.Context, intentID, paymentID string) (bool, error) {
	if strings.TrimSpace(paymentID) == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	payment, err := g.client.FetchPayment(ctx, paymentID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment gateway unavailable")
	}
	if payment.OrderID != intentID {
		g.logg.Warn(ctx, "payment belongs to a different intent")
		return false, nil
	}
	if !payment.Captured() {
		g.logg.Warn(ctx, fmt.Sprintf("payment not collected (status=%s)", payment.Status))
		return false, nil
	}
	return true, nil
}

func (g *razorpayGateway) Refund(ctx context.Context, paymentID string, amountPaise int64, receipt string) (*RefundReceipt, error) {
	if strings.TrimSpace(paymentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required for a gateway refund")
	}
	refund, err := g.client.RefundPayment(ctx, paymentID, amountPaise, receipt)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment gateway refund failed")
	}
	return &RefundReceipt{ID: refund.ID, Status: refund.Status}, nil
}

func (g *razorpayGateway) RefundedAmount(ctx context.Context, paymentID string) (int64, error) {
	payment, err := g.client.FetchPayment(ctx, paymentID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment gateway unavailable")
	}
	return payment.AmountRefunded, nil
}

func (g *razorpayGateway) VerifyWebhook(body []byte, signature string) bool {
	return g.client.VerifyWebhookSignature(body, signature)
}
