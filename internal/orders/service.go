package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrOrderNotFound          = pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	ErrIllegalTransition      = pkgerrors.New(pkgerrors.CodeStateConflict, "order status transition not allowed")
	ErrAwaitingReconciliation = pkgerrors.New(pkgerrors.CodeStateConflict, "order payment is awaiting reconciliation")
	ErrNotFlagged             = pkgerrors.New(pkgerrors.CodeConflict, "order is not flagged for reconciliation")
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type workflowMetrics interface {
	IncOrderCreated(method string)
	IncReconciliationFlag(reason string)
}

// Service is the order ledger. It is the only writer of Order.status.
type Service interface {
	Create(ctx context.Context, tx *gorm.DB, input NewOrder) (*models.Order, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.Order, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*pagination.Page[models.Order], error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) (*pagination.Page[models.Order], error)
	FindByGatewayPayment(ctx context.Context, gatewayPaymentID string) (*models.Order, error)
	Transition(ctx context.Context, input TransitionInput) (*models.Order, error)
	Cancel(ctx context.Context, tx *gorm.DB, id uuid.UUID, actor Actor) (*models.Order, error)
	MarkVerified(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Order, error)
	FlagReconciliation(ctx context.Context, tx *gorm.DB, id uuid.UUID, verification enums.PaymentVerification, reason string) error
	Reconcile(ctx context.Context, input ReconcileInput) (*models.Order, error)
	ListFlagged(ctx context.Context, verification enums.PaymentVerification, limit int) ([]models.Order, error)
	CountFlagged(ctx context.Context) (int64, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outbox.Emitter
	logg    *logger.Logger
	metrics workflowMetrics
	now     func() time.Time
}

// NewService builds the order ledger with the required dependencies.
func NewService(repo Repository, tx txRunner, emitter outbox.Emitter, logg *logger.Logger, metrics workflowMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if metrics == nil {
		return nil, fmt.Errorf("workflow metrics required")
	}
	return &service{
		repo:    repo,
		tx:      tx,
		outbox:  emitter,
		logg:    logg,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Create inserts the order and its line items using tx. Prepaid orders start
// with verification pending; the caller settles it in the same transaction.
func (s *service) Create(ctx context.Context, tx *gorm.DB, input NewOrder) (*models.Order, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if err := validateNewOrder(input); err != nil {
		return nil, err
	}

	verification := enums.PaymentVerificationNotRequired
	if input.PaymentMethod.IsPrepaid() {
		verification = enums.PaymentVerificationPending
	}

	quote := input.Quote
	items := make([]models.OrderLineItem, 0, len(quote.Lines))
	for i, line := range quote.Lines {
		items = append(items, models.OrderLineItem{
			ID:             uuid.New(),
			Position:       i + 1,
			ProductID:      line.ProductID,
			Name:           line.Name,
			Variant:        line.Variant,
			Qty:            line.Qty,
			UnitPricePaise: line.UnitPricePaise,
			DiscountPaise:  line.DiscountPaise,
			TaxPaise:       line.TaxPaise,
			TotalPaise:     line.TotalPaise,
		})
	}

	order := &models.Order{
		ID:                  uuid.New(),
		UserID:              input.UserID,
		Status:              enums.OrderStatusPending,
		PaymentMethod:       input.PaymentMethod,
		Currency:            enums.CurrencyINR,
		SubtotalPaise:       quote.SubtotalPaise,
		DiscountPaise:       quote.DiscountPaise,
		TaxPaise:            quote.TaxPaise,
		TotalPaise:          quote.TotalPaise,
		ShippingAddress:     quote.Address,
		PaymentIntentID:     input.PaymentIntentID,
		GatewayPaymentID:    input.GatewayPaymentID,
		PaymentVerification: verification,
		Items:               items,
	}

	if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
		return nil, err
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: order.UserID, Role: enums.UserRoleCustomer.String()},
		Data: payloads.OrderCreatedEvent{
			OrderID:       order.ID,
			UserID:        order.UserID,
			PaymentMethod: order.PaymentMethod,
			TotalPaise:    order.TotalPaise,
			Currency:      order.Currency,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, err
	}

	s.metrics.IncOrderCreated(order.PaymentMethod.String())
	return order, nil
}

func validateNewOrder(input NewOrder) error {
	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !input.PaymentMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method")
	}
	if len(input.Quote.Lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one item")
	}
	if err := input.Quote.Address.Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "delivery address incomplete")
	}
	if input.Quote.TotalPaise < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order total cannot be negative")
	}
	if input.PaymentMethod.IsPrepaid() && (input.PaymentIntentID == nil || input.GatewayPaymentID == nil) {
		return pkgerrors.New(pkgerrors.CodeValidation, "prepaid orders require a payment reference")
	}
	return nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, id)
	return mapFindError(order, err)
}

// GetForUser returns NOT_FOUND for orders owned by someone else.
func (s *service) GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByIDForUser(ctx, id, userID)
	return mapFindError(order, err)
}

func (s *service) FindByGatewayPayment(ctx context.Context, gatewayPaymentID string) (*models.Order, error) {
	if strings.TrimSpace(gatewayPaymentID) == "" {
		return nil, ErrOrderNotFound
	}
	order, err := s.repo.FindByGatewayPayment(ctx, gatewayPaymentID)
	return mapFindError(order, err)
}

func mapFindError(order *models.Order, err error) (*models.Order, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*pagination.Page[models.Order], error) {
	rows, err := s.repo.ListForUser(ctx, userID, params)
	if err != nil {
		return nil, listError(err)
	}
	page := pagination.Trim(rows, params.Limit, orderCursor)
	return &page, nil
}

func (s *service) List(ctx context.Context, filters ListFilters, params pagination.Params) (*pagination.Page[models.Order], error) {
	rows, err := s.repo.List(ctx, filters, params)
	if err != nil {
		return nil, listError(err)
	}
	page := pagination.Trim(rows, params.Limit, orderCursor)
	return &page, nil
}

func listError(err error) error {
	if errors.Is(err, pagination.ErrInvalidCursor) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
}

func orderCursor(o models.Order) pagination.Cursor {
	return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
}

func (s *service) ListFlagged(ctx context.Context, verification enums.PaymentVerification, limit int) ([]models.Order, error) {
	rows, err := s.repo.ListFlagged(ctx, verification, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list flagged orders")
	}
	return rows, nil
}

func (s *service) CountFlagged(ctx context.Context) (int64, error) {
	return s.repo.CountFlagged(ctx)
}

// Transition is the operator path for forward moves (ship, deliver, cash collected).
func (s *service) Transition(ctx context.Context, input TransitionInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid target status")
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := mapFindError(s.repo.WithTx(tx).FindByID(ctx, input.OrderID))
		if err != nil {
			return err
		}
		if order.PaymentMethod.IsPrepaid() && order.NeedsReconciliation && input.Target != enums.OrderStatusCancelled {
			return ErrAwaitingReconciliation
		}
		// prepaid orders become PAID only through payment verification
		if order.PaymentMethod.IsPrepaid() && input.Target == enums.OrderStatusPaid {
			return ErrIllegalTransition
		}
		updated, err = s.transition(ctx, tx, order, input.Target, input.Actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Cancel moves the order to CANCELLED inside the caller's transaction. It is a
// no-op on an order that is already cancelled.
func (s *service) Cancel(ctx context.Context, tx *gorm.DB, id uuid.UUID, actor Actor) (*models.Order, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	order, err := mapFindError(s.repo.WithTx(tx).FindByID(ctx, id))
	if err != nil {
		return nil, err
	}
	if order.Status == enums.OrderStatusCancelled {
		return order, nil
	}
	return s.transition(ctx, tx, order, enums.OrderStatusCancelled, actor)
}

// MarkVerified records a successful gateway verification and moves the order to PAID.
func (s *service) MarkVerified(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Order, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	repo := s.repo.WithTx(tx)
	order, err := mapFindError(repo.FindByID(ctx, id))
	if err != nil {
		return nil, err
	}
	if order.PaymentVerification == enums.PaymentVerificationVerified && order.Status != enums.OrderStatusPending {
		return order, nil
	}

	if err := repo.Update(ctx, order.ID, map[string]any{
		"payment_verification":  enums.PaymentVerificationVerified,
		"needs_reconciliation":  false,
		"reconciliation_reason": nil,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record verification")
	}
	order.PaymentVerification = enums.PaymentVerificationVerified
	order.NeedsReconciliation = false
	order.ReconciliationReason = nil

	if order.Status != enums.OrderStatusPending {
		return order, nil
	}
	return s.transition(ctx, tx, order, enums.OrderStatusPaid, SystemActor)
}

// FlagReconciliation keeps the order but marks it as disagreeing with the gateway.
func (s *service) FlagReconciliation(ctx context.Context, tx *gorm.DB, id uuid.UUID, verification enums.PaymentVerification, reason string) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	if verification != enums.PaymentVerificationFailed && verification != enums.PaymentVerificationUnreachable {
		return pkgerrors.New(pkgerrors.CodeValidation, "flag requires a failed or unreachable verification")
	}
	repo := s.repo.WithTx(tx)
	order, err := mapFindError(repo.FindByID(ctx, id))
	if err != nil {
		return err
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "payment verification " + verification.String()
	}
	if err := repo.Update(ctx, order.ID, map[string]any{
		"payment_verification":  verification,
		"needs_reconciliation":  true,
		"reconciliation_reason": reason,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flag order")
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventOrderReconciliationFlagged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.OrderReconciliationFlaggedEvent{
			OrderID:          order.ID,
			PaymentIntentID:  order.PaymentIntentID,
			GatewayPaymentID: order.GatewayPaymentID,
			Verification:     verification,
			Reason:           reason,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return err
	}

	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	s.logg.Reconciliation(logCtx, "order flagged for payment reconciliation", errors.New(reason))
	s.metrics.IncReconciliationFlag(verification.String())
	return nil
}

// Reconcile applies an operator's decision to a flagged order.
func (s *service) Reconcile(ctx context.Context, input ReconcileInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Resolution.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid reconciliation resolution")
	}

	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := mapFindError(repo.FindByID(ctx, input.OrderID))
		if err != nil {
			return err
		}
		if !order.NeedsReconciliation {
			return ErrNotFlagged
		}

		switch input.Resolution {
		case enums.ReconciliationConfirmPaid:
			result, err = s.MarkVerified(ctx, tx, order.ID)
		case enums.ReconciliationVoid:
			if err := repo.Update(ctx, order.ID, map[string]any{
				"needs_reconciliation": false,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear reconciliation flag")
			}
			order.NeedsReconciliation = false
			result, err = s.Cancel(ctx, tx, order.ID, input.Actor)
		}
		if err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderReconciliationResolved,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         input.Actor.ref(),
			Data: payloads.OrderReconciliationResolvedEvent{
				OrderID:    order.ID,
				Resolution: input.Resolution,
				Note:       strings.TrimSpace(input.Note),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// transition performs the compare-and-swap on the current status and stamps the
// matching one-time timestamp.
func (s *service) transition(ctx context.Context, tx *gorm.DB, order *models.Order, target enums.OrderStatus, actor Actor) (*models.Order, error) {
	from := order.Status
	if !from.CanTransitionTo(target) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStateConflict, ErrIllegalTransition, "order status transition not allowed").
			WithDetails(map[string]any{"from": from, "to": target})
	}

	now := s.now()
	updates := map[string]any{"status": target}
	switch target {
	case enums.OrderStatusPaid:
		if order.PaidAt == nil {
			updates["paid_at"] = now
			order.PaidAt = &now
		}
	case enums.OrderStatusShipped:
		if order.ShippedAt == nil {
			updates["shipped_at"] = now
			order.ShippedAt = &now
		}
	case enums.OrderStatusDelivered:
		if order.DeliveredAt == nil {
			updates["delivered_at"] = now
			order.DeliveredAt = &now
		}
	case enums.OrderStatusCancelled:
		if order.CanceledAt == nil {
			updates["canceled_at"] = now
			order.CanceledAt = &now
		}
	}

	swapped, err := s.repo.WithTx(tx).UpdateIfStatus(ctx, order.ID, from, updates)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if !swapped {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStateConflict, ErrIllegalTransition, "order status changed concurrently")
	}
	order.Status = target

	event := outbox.DomainEvent{
		EventType:     enums.EventOrderStateChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor.ref(),
		Data: payloads.OrderStateChangedEvent{
			OrderID:   order.ID,
			From:      from,
			To:        target,
			ChangedAt: now,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	s.logg.Info(logCtx, fmt.Sprintf("order status %s -> %s", from, target))
	return order, nil
}
