package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/addresses"
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubGateway struct {
	mu           sync.Mutex
	verified     bool
	verifyErr    error
	confirmed    bool
	confirmErr   error
	verifyCalls  int
	verifiedFor  []string
	createdFor   []string
	confirmCalls int
}

func (g *stubGateway) CreateIntent(_ context.Context, amount int64, reference string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createdFor = append(g.createdFor, reference)
	return "order_" + reference[len(referencePrefix):len(referencePrefix)+8], nil
}

func (g *stubGateway) Verify(_ context.Context, _ string, _ payments.Proof, orderID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyCalls++
	g.verifiedFor = append(g.verifiedFor, orderID)
	return g.verified, g.verifyErr
}

func (g *stubGateway) ConfirmPayment(context.Context, string, string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.confirmCalls++
	return g.confirmed, g.confirmErr
}

func (g *stubGateway) KeyID() string { return "rzp_test_key" }

type checkoutFixture struct {
	conn      *gorm.DB
	gateway   *stubGateway
	orders    orders.Service
	intents   Repository
	svc       Service
	userID    uuid.UUID
	addressID uuid.UUID
	productID uuid.UUID
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()
	conn := dbtest.Open(t)
	client := db.FromGorm(conn)
	logg := logger.New(logger.Options{ServiceName: "checkout-test"})
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)

	userID := uuid.New()
	address := models.Address{
		ID: uuid.New(), UserID: userID, Name: "Asha", Phone: "9999999999", Line1: "12 MG Road",
		City: "Bengaluru", State: "KA", PostalCode: "560001", Country: "IN",
	}
	require.NoError(t, conn.Create(&address).Error)
	product := models.Product{
		ID: uuid.New(), Name: "Kurta", PricePaise: 249900,
		DiscountPercent: decimal.Zero, TaxRatePercent: decimal.Zero, IsActive: true,
	}
	require.NoError(t, conn.Create(&product).Error)

	ledger, err := orders.NewService(orders.NewRepository(conn), client, emitter, logg, metrics.NewWorkflowMetrics(nil))
	require.NoError(t, err)
	catalogSvc, err := catalog.NewService(catalog.NewRepository(conn))
	require.NoError(t, err)
	addressSvc, err := addresses.NewService(addresses.NewRepository(conn))
	require.NoError(t, err)

	gateway := &stubGateway{verified: true, confirmed: true}
	intents := NewRepository(conn)
	svc, err := NewService(ServiceParams{
		Repo:      intents,
		Tx:        client,
		Catalog:   catalogSvc,
		Addresses: addressSvc,
		Orders:    ledger,
		Gateway:   gateway,
		Outbox:    emitter,
		Logger:    logg,
		IntentTTL: 30 * time.Minute,
	})
	require.NoError(t, err)
	return &checkoutFixture{
		conn: conn, gateway: gateway, orders: ledger, intents: intents, svc: svc,
		userID: userID, addressID: address.ID, productID: product.ID,
	}
}

func (f *checkoutFixture) input(method enums.PaymentMethod) PlaceOrderInput {
	return PlaceOrderInput{
		UserID:        f.userID,
		Cart:          Cart{Items: []CartItem{{ProductID: f.productID, Qty: 1}}},
		AddressID:     f.addressID,
		PaymentMethod: method,
	}
}

func (f *checkoutFixture) openIntent(t *testing.T) *Intent {
	t.Helper()
	res, err := f.svc.PlaceOrder(context.Background(), f.input(enums.PaymentMethodUPI))
	require.NoError(t, err)
	require.NotNil(t, res.Intent)
	return res.Intent
}

func (f *checkoutFixture) orderCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.conn.Model(&models.Order{}).Count(&count).Error)
	return count
}

func TestPlaceOrderCashCreatesPendingOrder(t *testing.T) {
	f := newCheckoutFixture(t)

	res, err := f.svc.PlaceOrder(context.Background(), f.input(enums.PaymentMethodCOD))
	require.NoError(t, err)
	require.NotNil(t, res.Order)
	assert.Nil(t, res.Intent)
	assert.Equal(t, enums.OrderStatusPending, res.Order.Status)
	assert.Equal(t, enums.PaymentMethodCOD, res.Order.PaymentMethod)
	assert.Equal(t, int64(249900), res.Order.TotalPaise)
	assert.Equal(t, "Bengaluru", res.Order.ShippingAddress.City)
	assert.Empty(t, f.gateway.createdFor)
}

func TestPlaceOrderPrepaidOpensIntentOnly(t *testing.T) {
	f := newCheckoutFixture(t)

	intent := f.openIntent(t)
	assert.Regexp(t, `^chk_[0-9a-f]{32}$`, intent.Reference)
	assert.Equal(t, int64(249900), intent.AmountPaise)
	assert.Equal(t, "rzp_test_key", intent.KeyID)
	assert.Zero(t, f.orderCount(t))

	row, err := f.intents.FindByReference(context.Background(), intent.Reference)
	require.NoError(t, err)
	assert.Equal(t, enums.IntentStatusCollecting, row.Status)
	assert.Equal(t, intent.GatewayIntentID, row.GatewayIntentID)
	assert.Equal(t, int64(249900), row.Snapshot.TotalPaise)
}

func TestPlaceOrderValidation(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	empty := f.input(enums.PaymentMethodCOD)
	empty.Cart = Cart{}
	_, err := f.svc.PlaceOrder(ctx, empty)
	assert.ErrorIs(t, err, ErrEmptyCart)

	card := f.input("card")
	_, err = f.svc.PlaceOrder(ctx, card)
	assert.ErrorIs(t, err, ErrUnsupportedPaymentMethod)

	noAddress := f.input(enums.PaymentMethodCOD)
	noAddress.AddressID = uuid.New()
	_, err = f.svc.PlaceOrder(ctx, noAddress)
	assert.ErrorIs(t, err, addresses.ErrAddressRequired)

	unknown := f.input(enums.PaymentMethodUPI)
	unknown.Cart.Items[0].ProductID = uuid.New()
	_, err = f.svc.PlaceOrder(ctx, unknown)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.Empty(t, f.gateway.createdFor)
}

func TestCommitCreatesVerifiedPaidOrder(t *testing.T) {
	f := newCheckoutFixture(t)
	intent := f.openIntent(t)

	res, err := f.svc.Commit(context.Background(), CommitInput{
		UserID: f.userID, Reference: intent.Reference, GatewayPaymentID: "pay_001", Signature: "sig",
	})
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.False(t, res.Replayed)
	assert.Equal(t, enums.OrderStatusPaid, res.Order.Status)
	assert.Equal(t, enums.PaymentMethodUPI, res.Order.PaymentMethod)
	assert.Equal(t, enums.PaymentVerificationVerified, res.Order.PaymentVerification)
	assert.Equal(t, int64(249900), res.Order.TotalPaise)
	require.Len(t, f.gateway.verifiedFor, 1)
	assert.Equal(t, res.Order.ID.String(), f.gateway.verifiedFor[0])

	row, err := f.intents.FindByReference(context.Background(), intent.Reference)
	require.NoError(t, err)
	assert.Equal(t, enums.IntentStatusCommitted, row.Status)
	require.NotNil(t, row.OrderID)
	assert.Equal(t, res.Order.ID, *row.OrderID)
}

func TestCommitWithFailedVerificationFlagsOrder(t *testing.T) {
	f := newCheckoutFixture(t)
	f.gateway.verified = false
	intent := f.openIntent(t)

	res, err := f.svc.Commit(context.Background(), CommitInput{
		UserID: f.userID, Reference: intent.Reference, GatewayPaymentID: "pay_002", Signature: "forged",
	})
	require.NoError(t, err)
	assert.False(t, res.Verified)
	assert.Equal(t, enums.OrderStatusPending, res.Order.Status)
	assert.True(t, res.Order.NeedsReconciliation)
	assert.Equal(t, enums.PaymentVerificationFailed, res.Order.PaymentVerification)
	assert.Equal(t, int64(1), f.orderCount(t))
}

func TestUnreachableGatewayIsReverifiedLater(t *testing.T) {
	f := newCheckoutFixture(t)
	f.gateway.verifyErr = pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("timeout"), "payment gateway unavailable")
	intent := f.openIntent(t)

	res, err := f.svc.Commit(context.Background(), CommitInput{
		UserID: f.userID, Reference: intent.Reference, GatewayPaymentID: "pay_003", Signature: "sig",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentVerificationUnreachable, res.Order.PaymentVerification)
	assert.True(t, res.Order.NeedsReconciliation)

	f.gateway.confirmErr = errors.New("still down")
	summary, err := f.svc.Reverify(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Unreachable)
	assert.Equal(t, int64(1), summary.Outstanding)

	f.gateway.confirmErr = nil
	summary, err = f.svc.Reverify(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Verified)
	assert.Zero(t, summary.Outstanding)

	order, err := f.orders.Get(context.Background(), res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, order.Status)
	assert.False(t, order.NeedsReconciliation)
}

func TestReverifyMarksUncollectedPaymentFailed(t *testing.T) {
	f := newCheckoutFixture(t)
	f.gateway.verifyErr = errors.New("timeout")
	intent := f.openIntent(t)
	res, err := f.svc.Commit(context.Background(), CommitInput{
		UserID: f.userID, Reference: intent.Reference, GatewayPaymentID: "pay_004", Signature: "sig",
	})
	require.NoError(t, err)

	f.gateway.confirmed = false
	summary, err := f.svc.Reverify(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, int64(1), summary.Outstanding)

	order, err := f.orders.Get(context.Background(), res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentVerificationFailed, order.PaymentVerification)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
}

func TestCommitIsIdempotentOnPaymentID(t *testing.T) {
	f := newCheckoutFixture(t)
	intent := f.openIntent(t)
	input := CommitInput{UserID: f.userID, Reference: intent.Reference, GatewayPaymentID: "pay_005", Signature: "sig"}

	first, err := f.svc.Commit(context.Background(), input)
	require.NoError(t, err)
	second, err := f.svc.Commit(context.Background(), input)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, 1, f.gateway.verifyCalls)
	assert.Equal(t, int64(1), f.orderCount(t))

	// the capture notification for the same payment is also a replay
	webhook, err := f.svc.CommitCaptured(context.Background(), CapturedPayment{
		GatewayIntentID: intent.GatewayIntentID, GatewayPaymentID: "pay_005",
	})
	require.NoError(t, err)
	assert.True(t, webhook.Replayed)
}

func TestCommitCapturedCreatesOrderWithoutClientProof(t *testing.T) {
	f := newCheckoutFixture(t)
	intent := f.openIntent(t)

	res, err := f.svc.CommitCaptured(context.Background(), CapturedPayment{
		GatewayIntentID: intent.GatewayIntentID, GatewayPaymentID: "pay_006",
	})
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Equal(t, enums.OrderStatusPaid, res.Order.Status)
	assert.Equal(t, 1, f.gateway.confirmCalls)
	assert.Zero(t, f.gateway.verifyCalls)

	client, err := f.svc.Commit(context.Background(), CommitInput{
		UserID: f.userID, Reference: intent.Reference, GatewayPaymentID: "pay_006", Signature: "sig",
	})
	require.NoError(t, err)
	assert.True(t, client.Replayed)
	assert.Equal(t, res.Order.ID, client.Order.ID)
}

func TestCommitRejectsOtherUsersCheckout(t *testing.T) {
	f := newCheckoutFixture(t)
	intent := f.openIntent(t)

	_, err := f.svc.Commit(context.Background(), CommitInput{
		UserID: uuid.New(), Reference: intent.Reference, GatewayPaymentID: "pay_007", Signature: "sig",
	})
	assert.ErrorIs(t, err, ErrIntentNotFound)

	_, err = f.svc.Commit(context.Background(), CommitInput{UserID: f.userID, Reference: intent.Reference})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestPaymentAfterAbandonIsFlaggedNotDropped(t *testing.T) {
	f := newCheckoutFixture(t)
	intent := f.openIntent(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Abandon(ctx, f.userID, intent.Reference))
	require.NoError(t, f.svc.Abandon(ctx, f.userID, intent.Reference))
	assert.ErrorIs(t, f.svc.Abandon(ctx, uuid.New(), intent.Reference), ErrIntentNotFound)

	_, err := f.svc.Commit(ctx, CommitInput{
		UserID: f.userID, Reference: intent.Reference, GatewayPaymentID: "pay_008", Signature: "sig",
	})
	assert.ErrorIs(t, err, ErrIntentClosed)
	assert.Zero(t, f.orderCount(t))

	row, err := f.intents.FindByReference(ctx, intent.Reference)
	require.NoError(t, err)
	assert.Equal(t, enums.IntentStatusNeedsReconciliation, row.Status)
	require.NotNil(t, row.GatewayPaymentID)
	assert.Equal(t, "pay_008", *row.GatewayPaymentID)
	assert.Nil(t, row.OrderID)
}

func TestExtraPaymentOnCommittedCheckoutKeepsOrderLink(t *testing.T) {
	f := newCheckoutFixture(t)
	intent := f.openIntent(t)
	ctx := context.Background()

	first, err := f.svc.Commit(ctx, CommitInput{
		UserID: f.userID, Reference: intent.Reference, GatewayPaymentID: "pay_010", Signature: "sig",
	})
	require.NoError(t, err)

	_, err = f.svc.CommitCaptured(ctx, CapturedPayment{
		GatewayIntentID: intent.GatewayIntentID, GatewayPaymentID: "pay_011",
	})
	assert.ErrorIs(t, err, ErrIntentClosed)
	assert.Equal(t, int64(1), f.orderCount(t))

	row, err := f.intents.FindByReference(ctx, intent.Reference)
	require.NoError(t, err)
	assert.Equal(t, enums.IntentStatusCommitted, row.Status)
	require.NotNil(t, row.GatewayPaymentID)
	assert.Equal(t, "pay_010", *row.GatewayPaymentID)
	require.NotNil(t, row.OrderID)
	assert.Equal(t, first.Order.ID, *row.OrderID)
	require.NotNil(t, row.ReconciliationReason)
	assert.Contains(t, *row.ReconciliationReason, "pay_011")

	var flagged []models.OutboxEvent
	require.NoError(t, f.conn.Where("event_type = ?", enums.EventIntentReconciliationFlagged).Find(&flagged).Error)
	require.Len(t, flagged, 1)
	assert.Contains(t, string(flagged[0].Payload), `"extra_payment":true`)
	assert.Contains(t, string(flagged[0].Payload), first.Order.ID.String())
}

func TestForgedProofOnClosedCheckoutIsRejected(t *testing.T) {
	f := newCheckoutFixture(t)
	intent := f.openIntent(t)
	ctx := context.Background()
	require.NoError(t, f.svc.Abandon(ctx, f.userID, intent.Reference))

	f.gateway.verified = false
	_, err := f.svc.Commit(ctx, CommitInput{
		UserID: f.userID, Reference: intent.Reference, GatewayPaymentID: "pay_009", Signature: "forged",
	})
	assert.ErrorIs(t, err, ErrPaymentNotVerified)

	row, err := f.intents.FindByReference(ctx, intent.Reference)
	require.NoError(t, err)
	assert.Equal(t, enums.IntentStatusAbandoned, row.Status)
}

func TestExpireIntents(t *testing.T) {
	f := newCheckoutFixture(t)
	stale := f.openIntent(t)
	fresh := f.openIntent(t)
	ctx := context.Background()

	row, err := f.intents.FindByReference(ctx, stale.Reference)
	require.NoError(t, err)
	require.NoError(t, f.conn.Model(&models.PaymentIntent{}).Where("id = ?", row.ID).
		UpdateColumn("expires_at", time.Now().UTC().Add(-time.Minute)).Error)

	n, err := f.svc.ExpireIntents(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	row, err = f.intents.FindByReference(ctx, stale.Reference)
	require.NoError(t, err)
	assert.Equal(t, enums.IntentStatusExpired, row.Status)
	row, err = f.intents.FindByReference(ctx, fresh.Reference)
	require.NoError(t, err)
	assert.Equal(t, enums.IntentStatusCollecting, row.Status)
}
