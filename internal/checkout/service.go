package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const referencePrefix = "chk_"

var (
	ErrEmptyCart                = pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	ErrUnsupportedPaymentMethod = pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method")
	ErrIntentNotFound           = pkgerrors.New(pkgerrors.CodeNotFound, "checkout not found")
	ErrIntentClosed             = pkgerrors.New(pkgerrors.CodeStateConflict, "checkout is no longer collecting payment")
	ErrPaymentNotVerified       = pkgerrors.New(pkgerrors.CodeValidation, "payment proof could not be verified")
	ErrOrderNotRecorded         = pkgerrors.New(pkgerrors.CodeDependency, "payment received but the order could not be recorded; it has been flagged for reconciliation")
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type catalogReader interface {
	GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]catalog.Pricing, error)
}

type addressBook interface {
	GetAddress(ctx context.Context, userID, addressID uuid.UUID) (types.Address, error)
}

type orderLedger interface {
	Create(ctx context.Context, tx *gorm.DB, input orders.NewOrder) (*models.Order, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByGatewayPayment(ctx context.Context, gatewayPaymentID string) (*models.Order, error)
	MarkVerified(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Order, error)
	FlagReconciliation(ctx context.Context, tx *gorm.DB, id uuid.UUID, verification enums.PaymentVerification, reason string) error
	ListFlagged(ctx context.Context, verification enums.PaymentVerification, limit int) ([]models.Order, error)
	CountFlagged(ctx context.Context) (int64, error)
}

type paymentGateway interface {
	CreateIntent(ctx context.Context, amountPaise int64, reference string) (string, error)
	Verify(ctx context.Context, intentID string, proof payments.Proof, orderID string) (bool, error)
	ConfirmPayment(ctx context.Context, intentID, paymentID string) (bool, error)
	KeyID() string
}

// verifier confirms a payment once the order id is known.
type verifier func(ctx context.Context, orderID string) (bool, error)

// Service is the checkout orchestrator.
type Service interface {
	PlaceOrder(ctx context.Context, input PlaceOrderInput) (*PlaceOrderResult, error)
	Commit(ctx context.Context, input CommitInput) (*CommitResult, error)
	CommitCaptured(ctx context.Context, payment CapturedPayment) (*CommitResult, error)
	Abandon(ctx context.Context, userID uuid.UUID, reference string) error
	Reverify(ctx context.Context, limit int) (ReverifySummary, error)
	ExpireIntents(ctx context.Context) (int64, error)
}

// ServiceParams groups the orchestrator's collaborators.
type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Catalog   catalogReader
	Addresses addressBook
	Orders    orderLedger
	Gateway   paymentGateway
	Outbox    outbox.Emitter
	Logger    *logger.Logger
	IntentTTL time.Duration
	Currency  enums.Currency
}

type service struct {
	repo      Repository
	tx        txRunner
	catalog   catalogReader
	addresses addressBook
	orders    orderLedger
	gateway   paymentGateway
	outbox    outbox.Emitter
	logg      *logger.Logger
	intentTTL time.Duration
	currency  enums.Currency
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("payment intent repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Catalog == nil:
		return nil, fmt.Errorf("catalog required")
	case params.Addresses == nil:
		return nil, fmt.Errorf("address book required")
	case params.Orders == nil:
		return nil, fmt.Errorf("order ledger required")
	case params.Gateway == nil:
		return nil, fmt.Errorf("payment gateway required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.IntentTTL <= 0:
		return nil, fmt.Errorf("intent ttl must be positive")
	}
	currency := params.Currency
	if currency == "" {
		currency = enums.CurrencyINR
	}
	return &service{
		repo:      params.Repo,
		tx:        params.Tx,
		catalog:   params.Catalog,
		addresses: params.Addresses,
		orders:    params.Orders,
		gateway:   params.Gateway,
		outbox:    params.Outbox,
		logg:      params.Logger,
		intentTTL: params.IntentTTL,
		currency:  currency,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// PlaceOrder snapshots the cart and address. Cash orders are created directly;
// prepaid checkouts open a payment intent and no order exists until commit.
func (s *service) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*PlaceOrderResult, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, ErrUnsupportedPaymentMethod
	}
	if len(input.Cart.Items) == 0 {
		return nil, ErrEmptyCart
	}

	address, err := s.addresses.GetAddress(ctx, input.UserID, input.AddressID)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(input.Cart.Items))
	for _, item := range input.Cart.Items {
		ids = append(ids, item.ProductID)
	}
	prices, err := s.catalog.GetProducts(ctx, ids)
	if err != nil {
		return nil, err
	}
	quote, err := BuildQuote(input.Cart, prices, address)
	if err != nil {
		return nil, err
	}

	if !input.PaymentMethod.IsPrepaid() {
		var order *models.Order
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			order, err = s.orders.Create(ctx, tx, orders.NewOrder{
				UserID:        input.UserID,
				PaymentMethod: input.PaymentMethod,
				Quote:         quote,
			})
			return err
		})
		if err != nil {
			return nil, err
		}
		return &PlaceOrderResult{Order: order}, nil
	}

	intent, err := s.openIntent(ctx, input, quote)
	if err != nil {
		return nil, err
	}
	return &PlaceOrderResult{Intent: intent}, nil
}

func (s *service) openIntent(ctx context.Context, input PlaceOrderInput, quote types.CheckoutQuote) (*Intent, error) {
	reference := referencePrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
	ctx = s.logg.WithPaymentReference(ctx, reference)

	gatewayIntentID, err := s.gateway.CreateIntent(ctx, quote.TotalPaise, reference)
	if err != nil {
		return nil, err
	}

	row := &models.PaymentIntent{
		ID:              uuid.New(),
		Reference:       reference,
		UserID:          input.UserID,
		Method:          input.PaymentMethod,
		Status:          enums.IntentStatusCollecting,
		Currency:        s.currency,
		AmountPaise:     quote.TotalPaise,
		GatewayIntentID: gatewayIntentID,
		Snapshot:        quote,
		ExpiresAt:       s.now().Add(s.intentTTL),
	}
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payment intent")
	}
	s.logg.Info(ctx, fmt.Sprintf("payment intent opened for %d paise", row.AmountPaise))
	return &Intent{
		Reference:       reference,
		GatewayIntentID: gatewayIntentID,
		AmountPaise:     row.AmountPaise,
		Currency:        row.Currency,
		KeyID:           s.gateway.KeyID(),
		ExpiresAt:       row.ExpiresAt,
	}, nil
}

// Commit turns a successful client-side collection into an order. It is
// idempotent on the gateway payment id.
func (s *service) Commit(ctx context.Context, input CommitInput) (*CommitResult, error) {
	reference := strings.TrimSpace(input.Reference)
	paymentID := strings.TrimSpace(input.GatewayPaymentID)
	if reference == "" || paymentID == "" || strings.TrimSpace(input.Signature) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference, payment id and signature are required")
	}
	intent, err := s.loadIntent(s.repo.FindByReference(ctx, reference))
	if err != nil {
		return nil, err
	}
	if input.UserID != uuid.Nil && intent.UserID != input.UserID {
		return nil, ErrIntentNotFound
	}

	proof := payments.Proof{PaymentID: paymentID, Signature: input.Signature}
	verify := func(ctx context.Context, orderID string) (bool, error) {
		return s.gateway.Verify(ctx, intent.GatewayIntentID, proof, orderID)
	}
	return s.commit(ctx, intent, paymentID, verify)
}

// CommitCaptured runs the commit for a gateway capture notification. The
// notification is already authenticated, so the payment is confirmed by fetch.
func (s *service) CommitCaptured(ctx context.Context, payment CapturedPayment) (*CommitResult, error) {
	if payment.GatewayIntentID == "" || payment.GatewayPaymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "captured payment is missing identifiers")
	}
	intent, err := s.loadIntent(s.repo.FindByGatewayIntent(ctx, payment.GatewayIntentID))
	if err != nil {
		return nil, err
	}
	verify := func(ctx context.Context, _ string) (bool, error) {
		return s.gateway.ConfirmPayment(ctx, intent.GatewayIntentID, payment.GatewayPaymentID)
	}
	return s.commit(ctx, intent, payment.GatewayPaymentID, verify)
}

func (s *service) loadIntent(intent *models.PaymentIntent, err error) (*models.PaymentIntent, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIntentNotFound
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment intent")
	}
	return intent, nil
}

func (s *service) commit(ctx context.Context, intent *models.PaymentIntent, paymentID string, verify verifier) (*CommitResult, error) {
	ctx = s.logg.WithPaymentReference(ctx, intent.Reference)

	if existing, err := s.replay(ctx, paymentID); existing != nil || err != nil {
		return existing, err
	}
	if intent.Status != enums.IntentStatusCollecting {
		return nil, s.lateCapture(ctx, intent, paymentID, verify)
	}

	var (
		order    *models.Order
		verified bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		claimed, err := repo.UpdateIfStatus(ctx, intent.ID, enums.IntentStatusCollecting, map[string]any{
			"status":             enums.IntentStatusCommitted,
			"gateway_payment_id": paymentID,
		})
		if err != nil {
			return err
		}
		if !claimed {
			return ErrIntentClosed
		}

		order, err = s.orders.Create(ctx, tx, orders.NewOrder{
			UserID:           intent.UserID,
			PaymentMethod:    intent.Method,
			Quote:            intent.Snapshot,
			PaymentIntentID:  &intent.ID,
			GatewayPaymentID: &paymentID,
		})
		if err != nil {
			return err
		}
		if err := repo.Update(ctx, intent.ID, map[string]any{"order_id": order.ID}); err != nil {
			return err
		}

		ok, verr := verify(ctx, order.ID.String())
		switch {
		case verr != nil:
			return s.orders.FlagReconciliation(ctx, tx, order.ID, enums.PaymentVerificationUnreachable, "gateway unreachable during verification: "+verr.Error())
		case !ok:
			return s.orders.FlagReconciliation(ctx, tx, order.ID, enums.PaymentVerificationFailed, "payment verification failed after commit")
		}
		order, err = s.orders.MarkVerified(ctx, tx, order.ID)
		verified = err == nil
		return err
	})
	if err != nil {
		if existing, replayErr := s.replay(ctx, paymentID); existing != nil || replayErr != nil {
			return existing, replayErr
		}
		if errors.Is(err, ErrIntentClosed) {
			current, loadErr := s.loadIntent(s.repo.FindByID(ctx, intent.ID))
			if loadErr != nil {
				return nil, loadErr
			}
			return nil, s.lateCapture(ctx, current, paymentID, verify)
		}
		s.flagIntent(ctx, intent, paymentID, "order creation failed after payment: "+err.Error())
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, ErrOrderNotRecorded, ErrOrderNotRecorded.Message())
	}

	if !verified {
		reloaded, err := s.orders.Get(ctx, order.ID)
		if err == nil {
			order = reloaded
		}
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	s.logg.Info(ctx, fmt.Sprintf("checkout committed (verified=%t)", verified))
	return &CommitResult{Order: order, Verified: verified}, nil
}

// replay returns the order already recorded for paymentID, if any.
func (s *service) replay(ctx context.Context, paymentID string) (*CommitResult, error) {
	order, err := s.orders.FindByGatewayPayment(ctx, paymentID)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &CommitResult{
		Order:    order,
		Verified: order.PaymentVerification == enums.PaymentVerificationVerified,
		Replayed: true,
	}, nil
}

// lateCapture handles a proof arriving for an intent that is no longer
// collecting. A genuine payment without an order is flagged, never dropped.
func (s *service) lateCapture(ctx context.Context, intent *models.PaymentIntent, paymentID string, verify verifier) error {
	ok, err := verify(ctx, "")
	if err != nil {
		return err
	}
	if !ok {
		return ErrPaymentNotVerified
	}
	reason := fmt.Sprintf("payment captured for %s checkout", intent.Status)
	if intent.Status == enums.IntentStatusCommitted {
		reason = fmt.Sprintf("extra payment %s captured for committed checkout", paymentID)
	}
	s.flagIntent(ctx, intent, paymentID, reason)
	return ErrIntentClosed
}

// flagIntent records a captured payment that has no order of its own. A
// committed intent keeps its status and payment link so the order it produced
// stays traceable; the stray payment travels in the reason and the event.
func (s *service) flagIntent(ctx context.Context, intent *models.PaymentIntent, paymentID, reason string) {
	extra := intent.Status == enums.IntentStatusCommitted
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		updates := map[string]any{"reconciliation_reason": reason}
		if !extra {
			updates["status"] = enums.IntentStatusNeedsReconciliation
		}
		if intent.GatewayPaymentID == nil {
			updates["gateway_payment_id"] = paymentID
		}
		if err := s.repo.WithTx(tx).Update(ctx, intent.ID, updates); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventIntentReconciliationFlagged,
			AggregateType: enums.AggregatePaymentIntent,
			AggregateID:   intent.ID,
			Data: payloads.IntentReconciliationFlaggedEvent{
				PaymentIntentID:  intent.ID,
				Reference:        intent.Reference,
				GatewayPaymentID: paymentID,
				AmountPaise:      intent.AmountPaise,
				Reason:           reason,
				OrderID:          intent.OrderID,
				ExtraPayment:     extra,
			},
		})
	})
	if err != nil {
		s.logg.Error(ctx, "failed to flag payment intent", err)
	}
	s.logg.Reconciliation(ctx, reason, err)
}

// Abandon closes a collecting intent. No order is created and nothing else changes.
func (s *service) Abandon(ctx context.Context, userID uuid.UUID, reference string) error {
	intent, err := s.loadIntent(s.repo.FindByReference(ctx, strings.TrimSpace(reference)))
	if err != nil {
		return err
	}
	if intent.UserID != userID {
		return ErrIntentNotFound
	}
	switch intent.Status {
	case enums.IntentStatusAbandoned, enums.IntentStatusExpired:
		return nil
	case enums.IntentStatusCollecting:
	default:
		return ErrIntentClosed
	}
	closed, err := s.repo.UpdateIfStatus(ctx, intent.ID, enums.IntentStatusCollecting, map[string]any{
		"status": enums.IntentStatusAbandoned,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "abandon payment intent")
	}
	if !closed {
		return ErrIntentClosed
	}
	s.logg.Info(s.logg.WithPaymentReference(ctx, intent.Reference), "checkout abandoned")
	return nil
}

// Reverify re-checks orders flagged because the gateway could not be reached.
// Orders the gateway now confirms become PAID; the rest stay flagged for an operator.
func (s *service) Reverify(ctx context.Context, limit int) (ReverifySummary, error) {
	var summary ReverifySummary
	flagged, err := s.orders.ListFlagged(ctx, enums.PaymentVerificationUnreachable, limit)
	if err != nil {
		return summary, err
	}
	for i := range flagged {
		order := flagged[i]
		summary.Checked++
		orderCtx := s.logg.WithOrderID(ctx, order.ID.String())
		if order.PaymentIntentID == nil || order.GatewayPaymentID == nil {
			s.logg.Warn(orderCtx, "flagged order has no payment references")
			summary.Unreachable++
			continue
		}
		intent, err := s.loadIntent(s.repo.FindByID(ctx, *order.PaymentIntentID))
		if err != nil {
			s.logg.Error(orderCtx, "load intent for reverification", err)
			summary.Unreachable++
			continue
		}
		ok, err := s.gateway.ConfirmPayment(orderCtx, intent.GatewayIntentID, *order.GatewayPaymentID)
		if err != nil {
			summary.Unreachable++
			continue
		}
		err = s.tx.WithTx(orderCtx, func(tx *gorm.DB) error {
			if ok {
				_, err := s.orders.MarkVerified(orderCtx, tx, order.ID)
				return err
			}
			return s.orders.FlagReconciliation(orderCtx, tx, order.ID, enums.PaymentVerificationFailed, "payment not collected on re-check")
		})
		if err != nil {
			s.logg.Error(orderCtx, "record reverification", err)
			summary.Unreachable++
			continue
		}
		if ok {
			summary.Verified++
		} else {
			summary.Failed++
		}
	}
	outstanding, err := s.orders.CountFlagged(ctx)
	if err != nil {
		return summary, err
	}
	summary.Outstanding = outstanding
	return summary, nil
}

// ExpireIntents closes collecting intents past their expiry.
func (s *service) ExpireIntents(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireCollecting(ctx, s.now())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire payment intents")
	}
	return n, nil
}
