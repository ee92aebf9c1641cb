package orders

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/delivery"
	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// DetailResponse pairs an order with its current cancellation eligibility.
type DetailResponse struct {
	Order    *models.Order `json:"order"`
	Delivery delivery.View `json:"delivery"`
}

type transitionRequest struct {
	Status string `json:"status" validate:"required"`
}

type reconcileRequest struct {
	Resolution string `json:"resolution" validate:"required,oneof=confirm_paid void"`
	Note       string `json:"note" validate:"max=1000"`
}

// List returns the caller's orders, newest first.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		userID, err := middleware.CurrentUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListForUser(r.Context(), userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// Detail returns one of the caller's orders with its delivery classification.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		userID, err := middleware.CurrentUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetForUser(r.Context(), orderID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, DetailResponse{
			Order:    order,
			Delivery: delivery.Describe(delivery.SnapshotOf(order), time.Now().UTC()),
		})
	}
}

// AdminList returns every order matching the optional status, payment_method,
// needs_reconciliation and user_id filters.
func AdminList(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		params, err := validators.ParsePageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters, err := buildAdminFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.List(r.Context(), filters, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// AdminTransition moves an order along its fulfilment path.
func AdminTransition(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		actor, err := currentActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req transitionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		target, err := enums.ParseOrderStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order status"))
			return
		}

		order, err := svc.Transition(r.Context(), internalorders.TransitionInput{
			OrderID: orderID,
			Target:  target,
			Actor:   actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// AdminReconcile records the operator's decision for an order whose payment
// could not be verified automatically.
func AdminReconcile(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		actor, err := currentActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req reconcileRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Reconcile(r.Context(), internalorders.ReconcileInput{
			OrderID:    orderID,
			Resolution: enums.ReconciliationResolution(req.Resolution),
			Note:       validators.TrimText(req.Note, 1000),
			Actor:      actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func currentActor(r *http.Request) (internalorders.Actor, error) {
	userID, err := middleware.CurrentUserID(r.Context())
	if err != nil {
		return internalorders.Actor{}, err
	}
	return internalorders.Actor{
		UserID: userID,
		Role:   enums.UserRole(middleware.RoleFromContext(r.Context())),
	}, nil
}

func buildAdminFilters(r *http.Request) (internalorders.ListFilters, error) {
	var filters internalorders.ListFilters

	status, err := validators.ParseOptionalQuery(r, "status", func(raw string) (enums.OrderStatus, error) {
		return enums.ParseOrderStatus(strings.ToUpper(raw))
	})
	if err != nil {
		return filters, err
	}
	filters.Status = status

	method, err := validators.ParseOptionalQuery(r, "payment_method", func(raw string) (enums.PaymentMethod, error) {
		return enums.ParsePaymentMethod(strings.ToLower(raw))
	})
	if err != nil {
		return filters, err
	}
	filters.PaymentMethod = method

	flagged, err := validators.ParseOptionalQuery(r, "needs_reconciliation", strconv.ParseBool)
	if err != nil {
		return filters, err
	}
	filters.NeedsReconciliation = flagged

	userID, err := validators.ParseOptionalQuery(r, "user_id", uuid.Parse)
	if err != nil {
		return filters, err
	}
	filters.UserID = userID

	return filters, nil
}
