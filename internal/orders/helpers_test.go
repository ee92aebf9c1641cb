package orders

import (
	"context"
	"testing"

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

type ledgerFixture struct {
	conn   *gorm.DB
	client *db.Client
	svc    Service
	events *outbox.Repository
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	conn := dbtest.Open(t)
	events := outbox.NewRepository(conn)
	client := db.FromGorm(conn)
	svc, err := NewService(
		NewRepository(conn),
		client,
		outbox.NewService(events, nil),
		logger.New(logger.Options{ServiceName: "orders-test"}),
		metrics.NewWorkflowMetrics(nil),
	)
	require.NoError(t, err)
	return &ledgerFixture{conn: conn, client: client, svc: svc, events: events}
}

func sampleQuote() types.CheckoutQuote {
	variant := "M"
	return types.CheckoutQuote{
		Lines: []types.QuoteLine{
			{ProductID: uuid.New(), Name: "Kurta", Variant: &variant, Qty: 1, UnitPricePaise: 199900, DiscountPaise: 0, TaxPaise: 0, TotalPaise: 199900},
			{ProductID: uuid.New(), Name: "Dupatta", Qty: 2, UnitPricePaise: 25000, DiscountPaise: 0, TaxPaise: 0, TotalPaise: 50000},
		},
		Address: types.Address{
			Name: "Asha", Phone: "9999999999", Line1: "12 MG Road",
			City: "Bengaluru", State: "KA", PostalCode: "560001", Country: "IN",
		},
		SubtotalPaise: 249900,
		TotalPaise:    249900,
	}
}

func (f *ledgerFixture) createOrder(t *testing.T, userID uuid.UUID, method enums.PaymentMethod) *models.Order {
	t.Helper()
	input := NewOrder{UserID: userID, PaymentMethod: method, Quote: sampleQuote()}
	if method.IsPrepaid() {
		intentID := uuid.New()
		paymentID := "pay_" + uuid.NewString()
		input.PaymentIntentID = &intentID
		input.GatewayPaymentID = &paymentID
	}
	var order *models.Order
	err := f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		order, err = f.svc.Create(context.Background(), tx, input)
		return err
	})
	require.NoError(t, err)
	return order
}

func (f *ledgerFixture) eventTypes(t *testing.T, orderID uuid.UUID) []enums.OutboxEventType {
	t.Helper()
	rows, err := f.events.ListByAggregate(orderID)
	require.NoError(t, err)
	out := make([]enums.OutboxEventType, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.EventType)
	}
	return out
}
