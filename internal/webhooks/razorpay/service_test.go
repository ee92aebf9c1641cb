package razorpaywebhook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const capturedBody = `{
  "entity": "event",
  "account_id": "acc_test",
  "event": "payment.captured",
  "created_at": 1760600000,
  "payload": {
    "payment": {
      "entity": {
        "id": "pay_29QQoUBi66xm2f",
        "order_id": "order_9A33XWu170gUtm",
        "status": "captured",
        "amount": 249900,
        "currency": "INR",
        "method": "upi"
      }
    }
  }
}`

type fakeCommitter struct {
	calls []checkout.CapturedPayment
	err   error
}

func (f *fakeCommitter) CommitCaptured(_ context.Context, payment checkout.CapturedPayment) (*checkout.CommitResult, error) {
	f.calls = append(f.calls, payment)
	if f.err != nil {
		return nil, f.err
	}
	return &checkout.CommitResult{Order: &models.Order{ID: uuid.New()}, Verified: true}, nil
}

func newWebhookService(t *testing.T, committer *fakeCommitter) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Checkout: committer,
		Logger:   logger.New(logger.Options{ServiceName: "webhook-test"}),
	})
	require.NoError(t, err)
	return svc
}

func TestParseEventReadsPaymentEntity(t *testing.T) {
	event, err := ParseEvent([]byte(capturedBody))
	require.NoError(t, err)
	assert.Equal(t, EventPaymentCaptured, event.Event)

	payment, ok := event.Payment()
	require.True(t, ok)
	assert.Equal(t, "pay_29QQoUBi66xm2f", payment.ID)
	assert.Equal(t, "order_9A33XWu170gUtm", payment.OrderID)
	assert.Equal(t, int64(249900), payment.Amount)

	_, err = ParseEvent([]byte(`{"entity":"event"}`))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = ParseEvent([]byte(`not json`))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestHandleCapturedCommitsCheckout(t *testing.T) {
	committer := &fakeCommitter{}
	svc := newWebhookService(t, committer)
	event, err := ParseEvent([]byte(capturedBody))
	require.NoError(t, err)

	require.NoError(t, svc.HandleEvent(context.Background(), event))
	require.Len(t, committer.calls, 1)
	assert.Equal(t, "order_9A33XWu170gUtm", committer.calls[0].GatewayIntentID)
	assert.Equal(t, "pay_29QQoUBi66xm2f", committer.calls[0].GatewayPaymentID)
}

func TestHandleCapturedAcknowledgesTerminalOutcomes(t *testing.T) {
	for _, sentinel := range []error{checkout.ErrIntentNotFound, checkout.ErrIntentClosed} {
		committer := &fakeCommitter{err: sentinel}
		svc := newWebhookService(t, committer)
		event, err := ParseEvent([]byte(capturedBody))
		require.NoError(t, err)
		assert.NoError(t, svc.HandleEvent(context.Background(), event))
	}
}

func TestHandleCapturedSurfacesTransientFailure(t *testing.T) {
	committer := &fakeCommitter{err: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("db down"), "record order")}
	svc := newWebhookService(t, committer)
	event, err := ParseEvent([]byte(capturedBody))
	require.NoError(t, err)

	err = svc.HandleEvent(context.Background(), event)
	assert.True(t, pkgerrors.IsRetryable(err))
}

func TestHandleIgnoresOtherEvents(t *testing.T) {
	committer := &fakeCommitter{}
	svc := newWebhookService(t, committer)

	assert.NoError(t, svc.HandleEvent(context.Background(), Event{Event: "refund.processed"}))
	assert.NoError(t, svc.HandleEvent(context.Background(), Event{Event: EventPaymentFailed}))
	assert.Empty(t, committer.calls)

	err := svc.HandleEvent(context.Background(), Event{Event: EventPaymentCaptured})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDeliveryGuard(t *testing.T) {
	store := newMemoryStore()
	guard, err := NewDeliveryGuard(store, time.Hour, "razorpay-webhook")
	require.NoError(t, err)
	ctx := context.Background()

	seen, err := guard.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)
	seen, err = guard.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)

	require.NoError(t, guard.Forget(ctx, "evt_1"))
	seen, err = guard.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	_, err = guard.Seen(ctx, "")
	assert.Error(t, err)
	_, err = NewDeliveryGuard(nil, time.Hour, "x")
	assert.Error(t, err)
}

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]string)}
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = fmt.Sprintf("%v", value)
	return true, nil
}

func (s *memoryStore) IdempotencyKey(scope, id string) string {
	return "sf:idempotency:" + scope + ":" + id
}

func (s *memoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}
