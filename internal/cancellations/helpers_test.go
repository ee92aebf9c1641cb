package cancellations

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/angelmondragon/storefront-backend/internal/evidence"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/refunds"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var adminActor = orders.Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}

type fakeGateway struct {
	mu      sync.Mutex
	calls   int
	failing bool
}

func (g *fakeGateway) Refund(_ context.Context, paymentID string, _ int64, _ string) (*payments.RefundReceipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.failing {
		return nil, errors.New("gateway unavailable")
	}
	return &payments.RefundReceipt{ID: "rfnd_" + paymentID, Status: "processed"}, nil
}

func (g *fakeGateway) RefundedAmount(context.Context, string) (int64, error) {
	return 0, nil
}

type fakeEvidence struct {
	mu      sync.Mutex
	uploads int
	err     error
}

func (e *fakeEvidence) UploadVideo(_ context.Context, requestID uuid.UUID, _ evidence.VideoUpload) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.uploads++
	if e.err != nil {
		return "", e.err
	}
	return "https://storage.googleapis.com/evidence/cancellations/" + requestID.String() + "/clip.mp4", nil
}

// staleRepo answers reads from before a concurrent writer committed: no
// pending request exists and every request is still pending. Writes go to the
// real repository.
type staleRepo struct {
	Repository
}

func (r staleRepo) FindPendingByOrder(context.Context, uuid.UUID) (*models.CancellationRequest, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r staleRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.CancellationRequest, error) {
	req, err := r.Repository.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	req.Status = enums.CancellationStatusPending
	req.ResolvedBy = nil
	req.ResolvedAt = nil
	return req, nil
}

type workflowFixture struct {
	conn     *gorm.DB
	client   *db.Client
	orders   orders.Service
	refunds  refunds.Service
	gateway  *fakeGateway
	evidence *fakeEvidence
	events   *outbox.Repository
	params   ServiceParams
	svc      Service
}

func newWorkflowFixture(t *testing.T) *workflowFixture {
	t.Helper()
	conn := dbtest.Open(t)
	client := db.FromGorm(conn)
	events := outbox.NewRepository(conn)
	emitter := outbox.NewService(events, nil)
	logg := logger.New(logger.Options{ServiceName: "cancellations-test"})
	wm := metrics.NewWorkflowMetrics(nil)

	ledger, err := orders.NewService(orders.NewRepository(conn), client, emitter, logg, wm)
	require.NoError(t, err)
	gateway := &fakeGateway{}
	dispatcher, err := refunds.NewService(refunds.NewRepository(conn), client, gateway, emitter, logg, wm, 5)
	require.NoError(t, err)
	store := &fakeEvidence{}

	params := ServiceParams{
		Repo:            NewRepository(conn),
		Tx:              client,
		Orders:          ledger,
		Refunds:         dispatcher,
		Evidence:        store,
		Outbox:          emitter,
		Logger:          logg,
		Metrics:         wm,
		MinReasonLength: 10,
	}
	svc, err := NewService(params)
	require.NoError(t, err)
	return &workflowFixture{
		conn: conn, client: client, orders: ledger, refunds: dispatcher,
		gateway: gateway, evidence: store, events: events, params: params, svc: svc,
	}
}

// staleService shares the fixture's database but reads through staleRepo, so
// only the database constraints stand between it and a conflicting write.
func (f *workflowFixture) staleService(t *testing.T) Service {
	t.Helper()
	params := f.params
	params.Repo = staleRepo{Repository: f.params.Repo}
	svc, err := NewService(params)
	require.NoError(t, err)
	return svc
}

func quote() types.CheckoutQuote {
	return types.CheckoutQuote{
		Lines: []types.QuoteLine{
			{ProductID: uuid.New(), Name: "Kurta", Qty: 1, UnitPricePaise: 249900, TotalPaise: 249900},
		},
		Address: types.Address{
			Name: "Asha", Phone: "9999999999", Line1: "12 MG Road",
			City: "Bengaluru", State: "KA", PostalCode: "560001", Country: "IN",
		},
		SubtotalPaise: 249900,
		TotalPaise:    249900,
	}
}

// placeOrder creates an order and walks it to status. Prepaid orders are
// verified first unless they should stay PENDING.
func (f *workflowFixture) placeOrder(t *testing.T, userID uuid.UUID, method enums.PaymentMethod, status enums.OrderStatus) *models.Order {
	t.Helper()
	ctx := context.Background()
	input := orders.NewOrder{UserID: userID, PaymentMethod: method, Quote: quote()}
	if method.IsPrepaid() {
		intentID := uuid.New()
		paymentID := "pay_" + uuid.NewString()[:12]
		input.PaymentIntentID = &intentID
		input.GatewayPaymentID = &paymentID
	}
	var order *models.Order
	require.NoError(t, f.client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if order, err = f.orders.Create(ctx, tx, input); err != nil {
			return err
		}
		if method.IsPrepaid() && status != enums.OrderStatusPending {
			order, err = f.orders.MarkVerified(ctx, tx, order.ID)
		}
		return err
	}))

	var path []enums.OrderStatus
	switch status {
	case enums.OrderStatusPaid:
		if !method.IsPrepaid() {
			path = []enums.OrderStatus{enums.OrderStatusPaid}
		}
	case enums.OrderStatusShipped:
		path = []enums.OrderStatus{enums.OrderStatusShipped}
	case enums.OrderStatusDelivered:
		path = []enums.OrderStatus{enums.OrderStatusShipped, enums.OrderStatusDelivered}
	case enums.OrderStatusCancelled:
		path = []enums.OrderStatus{enums.OrderStatusCancelled}
	}
	for _, target := range path {
		var err error
		order, err = f.orders.Transition(ctx, orders.TransitionInput{OrderID: order.ID, Target: target, Actor: adminActor})
		require.NoError(t, err)
	}
	require.Equal(t, status, order.Status)
	return order
}

func postDeliveryEvidence() *Evidence {
	return &Evidence{
		UpiID: "asha@okbank",
		Video: &evidence.VideoUpload{FileName: "clip.mp4", SizeBytes: 5, Content: strings.NewReader("video")},
	}
}

func (f *workflowFixture) eventTypes(t *testing.T, aggregateID uuid.UUID) []enums.OutboxEventType {
	t.Helper()
	rows, err := f.events.ListByAggregate(aggregateID)
	require.NoError(t, err)
	out := make([]enums.OutboxEventType, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.EventType)
	}
	return out
}
