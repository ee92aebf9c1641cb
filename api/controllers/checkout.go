package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type checkoutRequest struct {
	Cart          checkout.Cart `json:"cart" validate:"required"`
	AddressID     uuid.UUID     `json:"address_id" validate:"required"`
	PaymentMethod string        `json:"payment_method" validate:"required,oneof=cod upi"`
}

type commitRequest struct {
	GatewayPaymentID string `json:"gateway_payment_id" validate:"required"`
	Signature        string `json:"signature" validate:"required"`
}

// Checkout places a cash order immediately or opens a prepaid payment intent.
func Checkout(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID, err := middleware.CurrentUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req checkoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		method, err := enums.ParsePaymentMethod(req.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		result, err := svc.PlaceOrder(r.Context(), checkout.PlaceOrderInput{
			UserID:        userID,
			Cart:          req.Cart,
			AddressID:     req.AddressID,
			PaymentMethod: method,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteCreated(w, result)
	}
}

// CheckoutCommit submits the client-side payment proof for a prepaid checkout.
func CheckoutCommit(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID, err := middleware.CurrentUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reference, err := checkoutReference(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req commitRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Commit(r.Context(), checkout.CommitInput{
			UserID:           userID,
			Reference:        reference,
			GatewayPaymentID: strings.TrimSpace(req.GatewayPaymentID),
			Signature:        strings.TrimSpace(req.Signature),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if result.Replayed {
			responses.WriteSuccess(w, result)
			return
		}
		responses.WriteCreated(w, result)
	}
}

// CheckoutAbandon closes a prepaid checkout the client walked away from.
func CheckoutAbandon(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID, err := middleware.CurrentUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reference, err := checkoutReference(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Abandon(r.Context(), userID, reference); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"reference": reference, "status": "abandoned"})
	}
}

func checkoutReference(r *http.Request) (string, error) {
	reference := strings.TrimSpace(chi.URLParam(r, "reference"))
	if reference == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "checkout reference is required")
	}
	return reference, nil
}
