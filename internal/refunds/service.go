package refunds

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

const staleProcessingAfter = 15 * time.Minute

var (
	ErrRefundNotFound     = pkgerrors.New(pkgerrors.CodeNotFound, "refund not found")
	ErrRequestNotApproved = pkgerrors.New(pkgerrors.CodeStateConflict, "refunds are only issued for approved requests")
	ErrDispatchInProgress = pkgerrors.New(pkgerrors.CodeConflict, "refund is already being dispatched")
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type refundGateway interface {
	Refund(ctx context.Context, paymentID string, amountPaise int64, receipt string) (*payments.RefundReceipt, error)
	RefundedAmount(ctx context.Context, paymentID string) (int64, error)
}

type refundMetrics interface {
	IncRefund(channel, outcome string)
}

// Service is the refund dispatcher, the only writer of refund records.
type Service interface {
	Schedule(ctx context.Context, tx *gorm.DB, order *models.Order, request *models.CancellationRequest) (*models.Refund, error)
	MaybeRefund(ctx context.Context, order *models.Order, request *models.CancellationRequest) (*Result, error)
	Retry(ctx context.Context, refundID uuid.UUID) (*Result, error)
	RetryFailed(ctx context.Context, limit int) (RetrySummary, error)
	Get(ctx context.Context, refundID uuid.UUID) (*models.Refund, error)
	GetForRequest(ctx context.Context, requestID uuid.UUID) (*models.Refund, error)
	ListRetryable(ctx context.Context, limit int) ([]models.Refund, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) (*pagination.Page[models.Refund], error)
}

type service struct {
	repo        Repository
	tx          txRunner
	gateway     refundGateway
	outbox      outbox.Emitter
	logg        *logger.Logger
	metrics     refundMetrics
	maxAttempts int
	now         func() time.Time
}

// NewService builds the refund dispatcher.
func NewService(repo Repository, tx txRunner, gateway refundGateway, emitter outbox.Emitter, logg *logger.Logger, metrics refundMetrics, maxAttempts int) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("refunds repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if metrics == nil {
		return nil, fmt.Errorf("refund metrics required")
	}
	if maxAttempts <= 0 {
		return nil, fmt.Errorf("refund max attempts must be positive")
	}
	return &service{
		repo:        repo,
		tx:          tx,
		gateway:     gateway,
		outbox:      emitter,
		logg:        logg,
		metrics:     metrics,
		maxAttempts: maxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// Schedule records the refund owed for an approved request inside the approval
// transaction. It returns nil when the decision table says no refund. Calling
// it again for the same request returns the existing record.
func (s *service) Schedule(ctx context.Context, tx *gorm.DB, order *models.Order, request *models.CancellationRequest) (*models.Refund, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if order == nil || request == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order and request required")
	}
	decision := Decide(request.DeliveryPhase, order.PaymentMethod)
	if !decision.Refund {
		return nil, nil
	}

	refund := &models.Refund{
		ID:                    uuid.New(),
		CancellationRequestID: request.ID,
		OrderID:               order.ID,
		AmountPaise:           order.TotalPaise,
		Currency:              order.Currency,
		Channel:               decision.Channel,
		Status:                enums.RefundStatusPending,
	}
	switch decision.Channel {
	case enums.RefundChannelGateway:
		refund.GatewayPaymentID = order.GatewayPaymentID
	case enums.RefundChannelUPIPayout:
		refund.Destination = request.UpiID
	}

	repo := s.repo.WithTx(tx)
	if err := repo.CreateIfAbsent(ctx, refund); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "schedule refund")
	}
	stored, err := repo.FindByRequest(ctx, request.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load scheduled refund")
	}
	return stored, nil
}

// MaybeRefund evaluates the decision table for an approved request and issues
// the refund at most once.
func (s *service) MaybeRefund(ctx context.Context, order *models.Order, request *models.CancellationRequest) (*Result, error) {
	if order == nil || request == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order and request required")
	}
	if request.Status != enums.CancellationStatusApproved {
		return nil, ErrRequestNotApproved
	}
	if !Decide(request.DeliveryPhase, order.PaymentMethod).Refund {
		return &Result{Initiated: false}, nil
	}

	refund, err := s.repo.FindByRequest(ctx, request.ID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load refund")
		}
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			scheduled, scheduleErr := s.Schedule(ctx, tx, order, request)
			refund = scheduled
			return scheduleErr
		})
		if err != nil {
			return nil, err
		}
	}
	return s.dispatch(ctx, refund)
}

// Retry is the operator path for a failed refund. It ignores the attempt ceiling.
func (s *service) Retry(ctx context.Context, refundID uuid.UUID) (*Result, error) {
	refund, err := s.Get(ctx, refundID)
	if err != nil {
		return nil, err
	}
	return s.dispatch(ctx, refund)
}

// RetryFailed is run by the refund-retry job: it releases interrupted
// dispatches, then retries refunds still under the attempt ceiling.
func (s *service) RetryFailed(ctx context.Context, limit int) (RetrySummary, error) {
	var summary RetrySummary
	released, err := s.repo.ReleaseStale(ctx, s.now().Add(-staleProcessingAfter))
	if err != nil {
		return summary, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release stale refunds")
	}
	summary.Released = int(released)

	rows, err := s.ListRetryable(ctx, limit)
	if err != nil {
		return summary, err
	}

	var errs error
	for i := range rows {
		summary.Attempted++
		res, err := s.dispatch(ctx, &rows[i])
		switch {
		case err != nil:
			summary.Failed++
			if !errors.Is(err, ErrDispatchInProgress) {
				errs = multierr.Append(errs, err)
			}
		case res.Initiated:
			summary.Initiated++
		}
	}
	return summary, errs
}

func (s *service) Get(ctx context.Context, refundID uuid.UUID) (*models.Refund, error) {
	refund, err := s.repo.FindByID(ctx, refundID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRefundNotFound
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load refund")
	}
	return refund, nil
}

func (s *service) GetForRequest(ctx context.Context, requestID uuid.UUID) (*models.Refund, error) {
	refund, err := s.repo.FindByRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRefundNotFound
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load refund")
	}
	return refund, nil
}

func (s *service) ListRetryable(ctx context.Context, limit int) ([]models.Refund, error) {
	rows, err := s.repo.ListRetryable(ctx, s.maxAttempts, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list retryable refunds")
	}
	return rows, nil
}

func (s *service) List(ctx context.Context, filters ListFilters, params pagination.Params) (*pagination.Page[models.Refund], error) {
	rows, err := s.repo.List(ctx, filters, params)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidCursor) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list refunds")
	}
	page := pagination.Trim(rows, params.Limit, func(r models.Refund) pagination.Cursor {
		return pagination.Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
	})
	return &page, nil
}

// dispatch claims the refund and issues it through its channel. A refund that
// is already initiated is returned as-is.
func (s *service) dispatch(ctx context.Context, refund *models.Refund) (*Result, error) {
	ctx = s.logg.WithRefundID(ctx, refund.ID.String())
	if refund.Status == enums.RefundStatusInitiated {
		return &Result{Initiated: true, Refund: refund}, nil
	}

	claimed, err := s.repo.Claim(ctx, refund.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim refund")
	}
	if !claimed {
		current, err := s.Get(ctx, refund.ID)
		if err != nil {
			return nil, err
		}
		if current.Status == enums.RefundStatusInitiated {
			return &Result{Initiated: true, Refund: current}, nil
		}
		return &Result{Initiated: false, Refund: current}, ErrDispatchInProgress
	}
	refund.Status = enums.RefundStatusProcessing
	refund.AttemptCount++

	switch refund.Channel {
	case enums.RefundChannelGateway:
		return s.issueGatewayRefund(ctx, refund)
	case enums.RefundChannelUPIPayout:
		return s.requestPayout(ctx, refund)
	default:
		return s.fail(ctx, refund, fmt.Errorf("unknown refund channel %q", refund.Channel))
	}
}

func (s *service) issueGatewayRefund(ctx context.Context, refund *models.Refund) (*Result, error) {
	if refund.GatewayPaymentID == nil || *refund.GatewayPaymentID == "" {
		return s.fail(ctx, refund, errors.New("order has no captured gateway payment"))
	}
	paymentID := *refund.GatewayPaymentID

	// a previous attempt may have reached the gateway before failing locally
	if refund.AttemptCount > 1 {
		refunded, err := s.gateway.RefundedAmount(ctx, paymentID)
		if err != nil {
			return s.fail(ctx, refund, err)
		}
		if refunded >= refund.AmountPaise {
			s.logg.Warn(ctx, "gateway already holds a refund for this payment; recording it as initiated")
			return s.initiate(ctx, refund, nil, nil)
		}
	}

	receipt, err := s.gateway.Refund(ctx, paymentID, refund.AmountPaise, refund.CancellationRequestID.String())
	if err != nil {
		return s.fail(ctx, refund, err)
	}
	providerID := receipt.ID
	return s.initiate(ctx, refund, &providerID, nil)
}

// requestPayout hands a COD refund to the payouts desk through the outbox.
func (s *service) requestPayout(ctx context.Context, refund *models.Refund) (*Result, error) {
	if refund.Destination == nil || *refund.Destination == "" {
		return s.fail(ctx, refund, errors.New("payout refund has no UPI destination"))
	}
	payout := &outbox.DomainEvent{
		EventType:     enums.EventRefundPayoutRequested,
		AggregateType: enums.AggregateRefund,
		AggregateID:   refund.ID,
		Data: payloads.RefundPayoutRequestedEvent{
			RefundID:    refund.ID,
			RequestID:   refund.CancellationRequestID,
			OrderID:     refund.OrderID,
			AmountPaise: refund.AmountPaise,
			Currency:    refund.Currency,
			UpiID:       *refund.Destination,
		},
	}
	return s.initiate(ctx, refund, nil, payout)
}

func (s *service) initiate(ctx context.Context, refund *models.Refund, providerRefundID *string, extra *outbox.DomainEvent) (*Result, error) {
	at := s.now()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).MarkInitiated(ctx, refund.ID, providerRefundID, at); err != nil {
			return err
		}
		if extra != nil {
			if err := s.outbox.Emit(ctx, tx, *extra); err != nil {
				return err
			}
		}
		return s.outbox.Emit(ctx, tx, s.refundEvent(enums.EventRefundInitiated, refund, providerRefundID, ""))
	})
	if err != nil {
		// the provider accepted the refund; the row stays processing until released
		s.logg.Reconciliation(ctx, "refund issued but not recorded", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record refund")
	}

	refund.Status = enums.RefundStatusInitiated
	refund.ProviderRefundID = providerRefundID
	refund.InitiatedAt = &at
	refund.LastError = nil
	s.metrics.IncRefund(refund.Channel.String(), "initiated")
	s.logg.Info(ctx, "refund initiated")
	return &Result{Initiated: true, Refund: refund}, nil
}

func (s *service) fail(ctx context.Context, refund *models.Refund, cause error) (*Result, error) {
	msg := cause.Error()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).MarkFailed(ctx, refund.ID, msg); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, s.refundEvent(enums.EventRefundFailed, refund, nil, msg))
	})
	if err != nil {
		s.logg.Error(ctx, "failed to record refund failure", err)
	}

	refund.Status = enums.RefundStatusFailed
	refund.LastError = &msg
	s.metrics.IncRefund(refund.Channel.String(), "failed")
	s.logg.Error(ctx, "refund dispatch failed", cause)
	return &Result{Initiated: false, Refund: refund}, pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "refund dispatch failed")
}

func (s *service) refundEvent(eventType enums.OutboxEventType, refund *models.Refund, providerRefundID *string, errMsg string) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateRefund,
		AggregateID:   refund.ID,
		Data: payloads.RefundEvent{
			RefundID:         refund.ID,
			RequestID:        refund.CancellationRequestID,
			OrderID:          refund.OrderID,
			AmountPaise:      refund.AmountPaise,
			Currency:         refund.Currency,
			Channel:          refund.Channel,
			ProviderRefundID: providerRefundID,
			AttemptCount:     refund.AttemptCount,
			Error:            errMsg,
		},
	}
}
