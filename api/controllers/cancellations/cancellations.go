package cancellations

import (
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	internalcancellations "github.com/angelmondragon/storefront-backend/internal/cancellations"
	"github.com/angelmondragon/storefront-backend/internal/evidence"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	videoField       = "video"
	multipartMemory  = 8 << 20
	maxReasonLength  = 2000
	maxUPIFieldChars = 320
)

type createRequest struct {
	Reason   string `json:"reason" validate:"required"`
	UpiID    string `json:"upi_id,omitempty"`
	VideoURL string `json:"video_url,omitempty"`
}

// Create files a cancellation request for one of the caller's orders. It
// accepts JSON, or multipart/form-data when a video file is attached.
func Create(svc internalcancellations.Service, maxUploadBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cancellation service unavailable"))
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

		input := internalcancellations.CreateInput{OrderID: orderID, UserID: userID}

		if isMultipart(r) {
			r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
			if err := r.ParseMultipartForm(multipartMemory); err != nil {
				responses.WriteError(r.Context(), logg, w, multipartError(err))
				return
			}
			defer func() { _ = r.MultipartForm.RemoveAll() }()

			input.Reason = validators.TrimText(r.FormValue("reason"), maxReasonLength)
			ev := &internalcancellations.Evidence{
				UpiID:    validators.TrimText(r.FormValue("upi_id"), maxUPIFieldChars),
				VideoURL: strings.TrimSpace(r.FormValue("video_url")),
			}
			upload, closeFn, err := formVideo(r)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if upload != nil {
				defer closeFn()
				ev.Video = upload
			}
			input.Evidence = ev
		} else {
			var req createRequest
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			input.Reason = validators.TrimText(req.Reason, maxReasonLength)
			if req.UpiID != "" || req.VideoURL != "" {
				input.Evidence = &internalcancellations.Evidence{
					UpiID:    validators.TrimText(req.UpiID, maxUPIFieldChars),
					VideoURL: strings.TrimSpace(req.VideoURL),
				}
			}
		}

		result, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, result)
	}
}

// GetForOrder returns the latest cancellation request for one of the caller's orders.
func GetForOrder(svc internalcancellations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cancellation service unavailable"))
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

		req, err := svc.GetForOrder(r.Context(), orderID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, req)
	}
}

// ListMine returns the caller's cancellation requests.
func ListMine(svc internalcancellations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cancellation service unavailable"))
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

// AttachEvidence uploads the video for a post-delivery claim whose original
// upload did not reach storage.
func AttachEvidence(svc internalcancellations.Service, maxUploadBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cancellation service unavailable"))
			return
		}

		userID, err := middleware.CurrentUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := validators.ParseUUIDParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !isMultipart(r) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "multipart/form-data body required"))
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			responses.WriteError(r.Context(), logg, w, multipartError(err))
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		upload, closeFn, err := formVideo(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if upload == nil {
			responses.WriteError(r.Context(), logg, w, evidence.ErrVideoRequired)
			return
		}
		defer closeFn()

		req, err := svc.AttachEvidence(r.Context(), requestID, userID, *upload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, req)
	}
}

// AdminList returns the request queue filtered by status, delivery_phase and order_id.
func AdminList(svc internalcancellations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cancellation service unavailable"))
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

// AdminGet returns any cancellation request.
func AdminGet(svc internalcancellations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cancellation service unavailable"))
			return
		}

		requestID, err := validators.ParseUUIDParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		req, err := svc.Get(r.Context(), requestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, req)
	}
}

// AdminApprove approves a pending request, cancels the order and dispatches the refund.
func AdminApprove(svc internalcancellations.Service, logg *logger.Logger) http.HandlerFunc {
	return resolve(svc, enums.CancellationDecisionApprove, logg)
}

// AdminReject rejects a pending request and leaves the order untouched.
func AdminReject(svc internalcancellations.Service, logg *logger.Logger) http.HandlerFunc {
	return resolve(svc, enums.CancellationDecisionReject, logg)
}

func resolve(svc internalcancellations.Service, decision enums.CancellationDecision, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cancellation service unavailable"))
			return
		}

		userID, err := middleware.CurrentUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := validators.ParseUUIDParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Resolve(r.Context(), internalcancellations.ResolveInput{
			RequestID: requestID,
			Decision:  decision,
			Actor: orders.Actor{
				UserID: userID,
				Role:   enums.UserRole(middleware.RoleFromContext(r.Context())),
			},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func buildAdminFilters(r *http.Request) (internalcancellations.ListFilters, error) {
	var filters internalcancellations.ListFilters

	status, err := validators.ParseOptionalQuery(r, "status", func(raw string) (enums.CancellationStatus, error) {
		return enums.ParseCancellationStatus(strings.ToUpper(raw))
	})
	if err != nil {
		return filters, err
	}
	filters.Status = status

	phase, err := validators.ParseOptionalQuery(r, "delivery_phase", func(raw string) (enums.DeliveryPhase, error) {
		return enums.ParseDeliveryPhase(strings.ToUpper(raw))
	})
	if err != nil {
		return filters, err
	}
	filters.DeliveryPhase = phase

	orderID, err := validators.ParseOptionalQuery(r, "order_id", uuid.Parse)
	if err != nil {
		return filters, err
	}
	filters.OrderID = orderID

	return filters, nil
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// formVideo returns the uploaded video, or nil when the form carries none.
func formVideo(r *http.Request) (*evidence.VideoUpload, func(), error) {
	file, header, err := r.FormFile(videoField)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, func() {}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read video upload")
	}
	return &evidence.VideoUpload{
		FileName:  header.Filename,
		SizeBytes: header.Size,
		Content:   file,
	}, func() { _ = file.Close() }, nil
}

func multipartError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return evidence.ErrVideoTooLarge
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart body")
}
