package razorpay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	rzp "github.com/razorpay/razorpay-go"
	"github.com/razorpay/razorpay-go/utils"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"

	testKeyPrefix = "rzp_test_"
	liveKeyPrefix = "rzp_live_"
)

var (
	errKeyIDRequired         = errors.New("razorpay key id is required")
	errKeySecretRequired     = errors.New("razorpay key secret is required")
	errWebhookSecretRequired = errors.New("razorpay webhook secret is required")
	errUnknownKeyPrefix      = fmt.Errorf("razorpay key id must start with %q or %q", testKeyPrefix, liveKeyPrefix)
)

type ordersAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type paymentsAPI interface {
	Fetch(paymentID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Refund(paymentID string, amount int, data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// Client wraps the Razorpay SDK with typed results and signature checks.
type Client struct {
	orders        ordersAPI
	payments      paymentsAPI
	keyID         string
	keySecret     string
	webhookSecret string
	currency      string
	environment   string
}

// Order is the gateway-side payment intent.
type Order struct {
	ID      string
	Amount  int64
	Status  string
	Receipt string
}

// Payment is a customer payment against an Order.
type Payment struct {
	ID             string
	OrderID        string
	Status         string
	Method         string
	Amount         int64
	AmountRefunded int64
}

// Captured reports whether the funds are held by the gateway.
func (p *Payment) Captured() bool {
	return p != nil && (p.Status == "captured" || p.Status == "authorized")
}

// Refund is a provider refund record.
type Refund struct {
	ID        string
	PaymentID string
	Amount    int64
	Status    string
}

// NewClient initializes the SDK with the configured key pair.
func NewClient(ctx context.Context, cfg config.RazorpayConfig, logg *logger.Logger) (*Client, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	if keyID == "" {
		return nil, errKeyIDRequired
	}
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if keySecret == "" {
		return nil, errKeySecretRequired
	}
	webhookSecret := strings.TrimSpace(cfg.WebhookSecret)
	if webhookSecret == "" {
		return nil, errWebhookSecretRequired
	}
	env, err := environmentFor(keyID)
	if err != nil {
		return nil, err
	}

	api := rzp.NewClient(keyID, keySecret)

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("razorpay client initialized (%s)", env))
	}

	return &Client{
		orders:        api.Order,
		payments:      api.Payment,
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		currency:      currencyOrDefault(cfg.Currency),
		environment:   env,
	}, nil
}

// KeyID is the publishable key the client collection flow needs.
func (c *Client) KeyID() string {
	if c == nil {
		return ""
	}
	return c.keyID
}

// Environment reports test or live based on the key prefix.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// CreateOrder registers a payment intent for amountPaise under receipt.
func (c *Client) CreateOrder(ctx context.Context, amountPaise int64, receipt string, notes map[string]string) (*Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if amountPaise <= 0 {
		return nil, fmt.Errorf("order amount must be positive")
	}
	data := map[string]interface{}{
		"amount":   amountPaise,
		"currency": c.currency,
		"receipt":  receipt,
	}
	if len(notes) > 0 {
		data["notes"] = notes
	}
	body, err := c.orders.Create(data, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay create order: %w", err)
	}
	order := &Order{
		ID:      stringField(body, "id"),
		Amount:  int64Field(body, "amount"),
		Status:  stringField(body, "status"),
		Receipt: stringField(body, "receipt"),
	}
	if order.ID == "" {
		return nil, fmt.Errorf("razorpay create order: response missing id")
	}
	return order, nil
}

// FetchPayment loads a payment by id.
func (c *Client) FetchPayment(ctx context.Context, paymentID string) (*Payment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, err := c.payments.Fetch(paymentID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay fetch payment: %w", err)
	}
	return &Payment{
		ID:             stringField(body, "id"),
		OrderID:        stringField(body, "order_id"),
		Status:         stringField(body, "status"),
		Method:         stringField(body, "method"),
		Amount:         int64Field(body, "amount"),
		AmountRefunded: int64Field(body, "amount_refunded"),
	}, nil
}

// RefundPayment refunds amountPaise of paymentID.
func (c *Client) RefundPayment(ctx context.Context, paymentID string, amountPaise int64, receipt string) (*Refund, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if amountPaise <= 0 {
		return nil, fmt.Errorf("refund amount must be positive")
	}
	data := map[string]interface{}{
		"speed": "normal",
	}
	if receipt != "" {
		data["receipt"] = receipt
	}
	body, err := c.payments.Refund(paymentID, int(amountPaise), data, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay refund payment: %w", err)
	}
	refund := &Refund{
		ID:        stringField(body, "id"),
		PaymentID: stringField(body, "payment_id"),
		Amount:    int64Field(body, "amount"),
		Status:    stringField(body, "status"),
	}
	if refund.ID == "" {
		return nil, fmt.Errorf("razorpay refund payment: response missing id")
	}
	return refund, nil
}

// VerifyPaymentSignature checks the checkout callback signature over orderID|paymentID.
func (c *Client) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	if orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	params := map[string]interface{}{
		"razorpay_order_id":   orderID,
		"razorpay_payment_id": paymentID,
	}
	return utils.VerifyPaymentSignature(params, signature, c.keySecret)
}

// VerifyWebhookSignature checks the X-Razorpay-Signature header over the raw body.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	if len(body) == 0 || signature == "" {
		return false
	}
	return utils.VerifyWebhookSignature(string(body), signature, c.webhookSecret)
}

func environmentFor(keyID string) (string, error) {
	switch {
	case strings.HasPrefix(keyID, testKeyPrefix):
		return testEnv, nil
	case strings.HasPrefix(keyID, liveKeyPrefix):
		return liveEnv, nil
	default:
		return "", errUnknownKeyPrefix
	}
}

func currencyOrDefault(raw string) string {
	c := strings.ToUpper(strings.TrimSpace(raw))
	if c == "" {
		return "INR"
	}
	return c
}

func stringField(body map[string]interface{}, key string) string {
	if v, ok := body[key].(string); ok {
		return v
	}
	return ""
}

func int64Field(body map[string]interface{}, key string) int64 {
	switch v := body[key].(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}
