package cancellations

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/delivery"
	"github.com/angelmondragon/storefront-backend/internal/evidence"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/refunds"
	"github.com/angelmondragon/storefront-backend/pkg/db"
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
	ErrAlreadyCancelled    = pkgerrors.New(pkgerrors.CodeStateConflict, "order is already cancelled")
	ErrInTransit           = pkgerrors.New(pkgerrors.CodeStateConflict, "order is in transit; file a claim after delivery")
	ErrDuplicateRequest    = pkgerrors.New(pkgerrors.CodeConflict, "a cancellation request is already pending for this order")
	ErrInvalidReason       = pkgerrors.New(pkgerrors.CodeValidation, "reason is too short")
	ErrMissingEvidence     = pkgerrors.New(pkgerrors.CodeValidation, "post-delivery claims require a video and a UPI id")
	ErrInvalidUPI          = pkgerrors.New(pkgerrors.CodeValidation, "UPI id is malformed")
	ErrRequestNotFound     = pkgerrors.New(pkgerrors.CodeNotFound, "cancellation request not found")
	ErrAlreadyResolved     = pkgerrors.New(pkgerrors.CodeConflict, "cancellation request is already resolved")
	ErrEvidenceNotAccepted = pkgerrors.New(pkgerrors.CodeValidation, "evidence is only accepted for post-delivery claims")
	ErrEvidenceAttached    = pkgerrors.New(pkgerrors.CodeConflict, "evidence is already attached to this request")
	ErrNeverDelivered      = delivery.ErrNeverDelivered
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type orderLedger interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.Order, error)
	Cancel(ctx context.Context, tx *gorm.DB, id uuid.UUID, actor orders.Actor) (*models.Order, error)
}

type refundDispatcher interface {
	Schedule(ctx context.Context, tx *gorm.DB, order *models.Order, request *models.CancellationRequest) (*models.Refund, error)
	MaybeRefund(ctx context.Context, order *models.Order, request *models.CancellationRequest) (*refunds.Result, error)
}

type cancellationMetrics interface {
	IncCancellationRequest(phase string)
}

// Service is the cancellation workflow engine.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*CreateResult, error)
	AttachEvidence(ctx context.Context, requestID, userID uuid.UUID, upload evidence.VideoUpload) (*models.CancellationRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*models.CancellationRequest, error)
	GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.CancellationRequest, error)
	GetForOrder(ctx context.Context, orderID, userID uuid.UUID) (*models.CancellationRequest, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*pagination.Page[models.CancellationRequest], error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) (*pagination.Page[models.CancellationRequest], error)
	Resolve(ctx context.Context, input ResolveInput) (*ResolveResult, error)
}

// ServiceParams groups the collaborators of the workflow engine.
type ServiceParams struct {
	Repo            Repository
	Tx              txRunner
	Orders          orderLedger
	Refunds         refundDispatcher
	Evidence        evidence.Store
	Outbox          outbox.Emitter
	Logger          *logger.Logger
	Metrics         cancellationMetrics
	MinReasonLength int
}

type service struct {
	repo            Repository
	tx              txRunner
	orders          orderLedger
	refunds         refundDispatcher
	evidence        evidence.Store
	outbox          outbox.Emitter
	logg            *logger.Logger
	metrics         cancellationMetrics
	minReasonLength int
	now             func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("cancellations repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Orders == nil:
		return nil, fmt.Errorf("order ledger required")
	case params.Refunds == nil:
		return nil, fmt.Errorf("refund dispatcher required")
	case params.Evidence == nil:
		return nil, fmt.Errorf("evidence store required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.Metrics == nil:
		return nil, fmt.Errorf("cancellation metrics required")
	case params.MinReasonLength <= 0:
		return nil, fmt.Errorf("minimum reason length must be positive")
	}
	return &service{
		repo:            params.Repo,
		tx:              params.Tx,
		orders:          params.Orders,
		refunds:         params.Refunds,
		evidence:        params.Evidence,
		outbox:          params.Outbox,
		logg:            params.Logger,
		metrics:         params.Metrics,
		minReasonLength: params.MinReasonLength,
		now:             func() time.Time { return time.Now().UTC() },
	}, nil
}

// Create files a request against one of the user's orders. The delivery phase
// is decided here and stored; evidence requirements follow from it.
func (s *service) Create(ctx context.Context, input CreateInput) (*CreateResult, error) {
	if input.OrderID == uuid.Nil || input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and user id are required")
	}
	order, err := s.orders.GetForUser(ctx, input.OrderID, input.UserID)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	switch order.Status {
	case enums.OrderStatusCancelled:
		return nil, ErrAlreadyCancelled
	case enums.OrderStatusShipped:
		return nil, ErrInTransit
	}

	reason := strings.TrimSpace(input.Reason)
	if len([]rune(reason)) < s.minReasonLength {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, ErrInvalidReason, "reason is too short").
			WithDetails(map[string]any{"min_length": s.minReasonLength})
	}

	if _, err := s.repo.FindPendingByOrder(ctx, order.ID); err == nil {
		return nil, ErrDuplicateRequest
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check pending requests")
	}

	filedAt := s.now()
	phase, err := delivery.Classify(delivery.SnapshotOf(order), filedAt)
	if err != nil {
		return nil, err
	}

	req := &models.CancellationRequest{
		ID:            uuid.New(),
		OrderID:       order.ID,
		UserID:        input.UserID,
		Reason:        reason,
		Status:        enums.CancellationStatusPending,
		DeliveryPhase: phase,
	}

	var video *evidence.VideoUpload
	if phase.RequiresEvidence() {
		ev, err := validateEvidence(input.Evidence)
		if err != nil {
			return nil, err
		}
		upi := strings.TrimSpace(ev.UpiID)
		req.UpiID = &upi
		if ev.VideoURL != "" {
			videoURL := strings.TrimSpace(ev.VideoURL)
			req.VideoURL = &videoURL
			req.VideoUploadedAt = &filedAt
		} else {
			video = ev.Video
		}
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, req); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCancellationRequested,
			AggregateType: enums.AggregateCancellationRequest,
			AggregateID:   req.ID,
			Actor:         &outbox.ActorRef{UserID: input.UserID, Role: enums.UserRoleCustomer.String()},
			Data: payloads.CancellationRequestedEvent{
				RequestID:     req.ID,
				OrderID:       order.ID,
				UserID:        input.UserID,
				DeliveryPhase: phase,
			},
		})
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, ErrDuplicateRequest
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store cancellation request")
	}

	ctx = s.logg.WithCancellationRequestID(ctx, req.ID.String())
	s.metrics.IncCancellationRequest(phase.String())
	s.logg.Info(ctx, fmt.Sprintf("cancellation requested (%s)", phase))

	result := &CreateResult{Request: req}
	if video != nil {
		if err := s.storeVideo(ctx, req, *video); err != nil {
			s.logg.Warn(ctx, "evidence upload deferred: "+err.Error())
			result.EvidencePending = true
			result.EvidenceError = err.Error()
		}
	}
	return result, nil
}

func validateEvidence(ev *Evidence) (*Evidence, error) {
	if ev == nil || strings.TrimSpace(ev.UpiID) == "" {
		return nil, ErrMissingEvidence
	}
	if strings.TrimSpace(ev.VideoURL) == "" && (ev.Video == nil || ev.Video.Content == nil) {
		return nil, ErrMissingEvidence
	}
	if !ValidUPI(ev.UpiID) {
		return nil, ErrInvalidUPI
	}
	if raw := strings.TrimSpace(ev.VideoURL); raw != "" {
		parsed, err := url.ParseRequestURI(raw)
		if err != nil || (parsed.Scheme != "https" && parsed.Scheme != "http") || parsed.Host == "" {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, ErrMissingEvidence, "video url is not a valid link")
		}
	}
	return ev, nil
}

// AttachEvidence uploads a video for a pending post-delivery request that was
// filed without one reaching storage.
func (s *service) AttachEvidence(ctx context.Context, requestID, userID uuid.UUID, upload evidence.VideoUpload) (*models.CancellationRequest, error) {
	req, err := s.GetForUser(ctx, requestID, userID)
	if err != nil {
		return nil, err
	}
	if req.Status != enums.CancellationStatusPending {
		return nil, ErrAlreadyResolved
	}
	if !req.DeliveryPhase.RequiresEvidence() {
		return nil, ErrEvidenceNotAccepted
	}
	if req.VideoURL != nil && *req.VideoURL != "" {
		return nil, ErrEvidenceAttached
	}
	ctx = s.logg.WithCancellationRequestID(ctx, req.ID.String())
	if err := s.storeVideo(ctx, req, upload); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *service) storeVideo(ctx context.Context, req *models.CancellationRequest, upload evidence.VideoUpload) error {
	videoURL, err := s.evidence.UploadVideo(ctx, req.ID, upload)
	if err != nil {
		return err
	}
	at := s.now()
	updated, err := s.repo.AttachVideo(ctx, req.ID, videoURL, at)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record evidence")
	}
	if !updated {
		return ErrAlreadyResolved
	}
	req.VideoURL = &videoURL
	req.VideoUploadedAt = &at
	s.logg.Info(ctx, "evidence attached")
	return nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.CancellationRequest, error) {
	req, err := s.repo.FindByID(ctx, id)
	return req, lookupError(err)
}

func (s *service) GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.CancellationRequest, error) {
	req, err := s.repo.FindByIDForUser(ctx, id, userID)
	return req, lookupError(err)
}

// GetForOrder returns the most recent request filed against the user's order.
func (s *service) GetForOrder(ctx context.Context, orderID, userID uuid.UUID) (*models.CancellationRequest, error) {
	if _, err := s.orders.GetForUser(ctx, orderID, userID); err != nil {
		return nil, err
	}
	req, err := s.repo.FindLatestByOrder(ctx, orderID)
	return req, lookupError(err)
}

func lookupError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRequestNotFound
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cancellation request")
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*pagination.Page[models.CancellationRequest], error) {
	rows, err := s.repo.ListForUser(ctx, userID, params)
	if err != nil {
		return nil, listError(err)
	}
	page := pagination.Trim(rows, params.Limit, requestCursor)
	return &page, nil
}

func (s *service) List(ctx context.Context, filters ListFilters, params pagination.Params) (*pagination.Page[models.CancellationRequest], error) {
	rows, err := s.repo.List(ctx, filters, params)
	if err != nil {
		return nil, listError(err)
	}
	page := pagination.Trim(rows, params.Limit, requestCursor)
	return &page, nil
}

func listError(err error) error {
	if errors.Is(err, pagination.ErrInvalidCursor) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cancellation requests")
}

func requestCursor(r models.CancellationRequest) pagination.Cursor {
	return pagination.Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
}

// Resolve applies an administrator's decision exactly once. Approval cancels
// the order and schedules the refund in the same transaction; the refund is
// dispatched after commit and its failure does not undo the approval.
func (s *service) Resolve(ctx context.Context, input ResolveInput) (*ResolveResult, error) {
	if !input.Decision.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "decision must be APPROVED or REJECTED")
	}
	if input.Actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "resolving administrator is required")
	}
	req, err := s.Get(ctx, input.RequestID)
	if err != nil {
		return nil, err
	}
	if req.Status.IsResolved() {
		return nil, ErrAlreadyResolved
	}
	ctx = s.logg.WithCancellationRequestID(ctx, req.ID.String())
	ctx = s.logg.WithOrderID(ctx, req.OrderID.String())

	status := input.Decision.Status()
	at := s.now()
	var (
		order     *models.Order
		scheduled *models.Refund
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		resolved, err := s.repo.WithTx(tx).Resolve(ctx, req.ID, status, input.Actor.UserID, at)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve cancellation request")
		}
		if !resolved {
			return ErrAlreadyResolved
		}
		req.Status = status
		req.ResolvedBy = &input.Actor.UserID
		req.ResolvedAt = &at

		if status == enums.CancellationStatusApproved {
			order, err = s.orders.Cancel(ctx, tx, req.OrderID, input.Actor)
			if err != nil {
				return err
			}
			scheduled, err = s.refunds.Schedule(ctx, tx, order, req)
			if err != nil {
				return err
			}
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCancellationResolved,
			AggregateType: enums.AggregateCancellationRequest,
			AggregateID:   req.ID,
			Actor:         &outbox.ActorRef{UserID: input.Actor.UserID, Role: input.Actor.Role.String()},
			Data: payloads.CancellationResolvedEvent{
				RequestID:       req.ID,
				OrderID:         req.OrderID,
				Status:          status,
				ResolvedBy:      input.Actor.UserID,
				RefundScheduled: scheduled != nil,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(ctx, fmt.Sprintf("cancellation request %s", strings.ToLower(status.String())))

	result := &ResolveResult{Request: req, Order: order}
	if status != enums.CancellationStatusApproved {
		return result, nil
	}

	refund, err := s.refunds.MaybeRefund(ctx, order, req)
	if err != nil {
		s.logg.Error(ctx, "refund dispatch failed after approval", err)
		result.RefundError = err.Error()
	}
	result.Refund = refund
	return result, nil
}
