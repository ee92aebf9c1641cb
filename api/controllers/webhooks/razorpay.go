package webhooks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-backend/api/responses"
	razorpaywebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/razorpay"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	razorpaySignatureHeader = "X-Razorpay-Signature"
	razorpayEventIDHeader   = "X-Razorpay-Event-Id"
	maxWebhookBodyBytes     = 1 << 20
)

type RazorpayWebhookService interface {
	HandleEvent(ctx context.Context, event razorpaywebhook.Event) error
}

type razorpayWebhookGuard interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type webhookVerifier interface {
	VerifyWebhook(body []byte, signature string) bool
}

// RazorpayWebhook handles payment capture notifications from Razorpay.
func RazorpayWebhook(svc RazorpayWebhookService, verifier webhookVerifier, guard razorpayWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if verifier == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		signature := strings.TrimSpace(r.Header.Get(razorpaySignatureHeader))
		if signature == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "razorpay signature missing"))
			return
		}
		if !verifier.VerifyWebhook(payload, signature) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "razorpay signature invalid"))
			return
		}

		event, err := razorpaywebhook.ParseEvent(payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		eventID := strings.TrimSpace(r.Header.Get(razorpayEventIDHeader))
		if eventID != "" {
			alreadyProcessed, err := guard.Seen(ctx, eventID)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			}
			if alreadyProcessed {
				responses.WriteSuccess(w, nil)
				return
			}
		}

		if err := svc.HandleEvent(ctx, event); err != nil {
			if eventID != "" {
				_ = guard.Forget(ctx, eventID)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("razorpay event %s (%s) processed", eventID, event.Event))
		}
		responses.WriteSuccess(w, nil)
	}
}
