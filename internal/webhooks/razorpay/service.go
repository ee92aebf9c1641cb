package razorpaywebhook

import (
	"context"
	"errors"

	"github.com/angelmondragon/storefront-backend/internal/checkout"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type paymentCommitter interface {
	CommitCaptured(ctx context.Context, payment checkout.CapturedPayment) (*checkout.CommitResult, error)
}

type ServiceParams struct {
	Checkout paymentCommitter
	Logger   *logger.Logger
}

type Service struct {
	checkout paymentCommitter
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Checkout == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{checkout: params.Checkout, logg: params.Logger}, nil
}

// HandleEvent applies a verified webhook. Errors returned here make the provider
// redeliver, so only transient failures are surfaced.
func (s *Service) HandleEvent(ctx context.Context, event Event) error {
	switch event.Event {
	case EventPaymentCaptured, EventOrderPaid:
		payment, ok := event.Payment()
		if !ok || payment.OrderID == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment entity missing")
		}
		ctx = s.logg.WithPaymentReference(ctx, payment.OrderID)
		res, err := s.checkout.CommitCaptured(ctx, checkout.CapturedPayment{
			GatewayIntentID:  payment.OrderID,
			GatewayPaymentID: payment.ID,
		})
		switch {
		case err == nil:
			if !res.Replayed {
				s.logg.Info(s.logg.WithOrderID(ctx, res.Order.ID.String()), "order recorded from capture notification")
			}
			return nil
		case errors.Is(err, checkout.ErrIntentNotFound):
			s.logg.Warn(ctx, "capture notification for unknown checkout")
			return nil
		case errors.Is(err, checkout.ErrIntentClosed):
			// the intent was flagged for reconciliation by the checkout service
			return nil
		default:
			return err
		}
	case EventPaymentFailed:
		if payment, ok := event.Payment(); ok {
			s.logg.Info(s.logg.WithPaymentReference(ctx, payment.ID), "payment attempt failed at provider")
		}
		return nil
	default:
		return nil
	}
}
