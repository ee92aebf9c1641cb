package cancellations

import (
	"regexp"
	"strings"

	"github.com/angelmondragon/storefront-backend/internal/evidence"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/refunds"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/google/uuid"
)

var upiPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{2,256}@[a-zA-Z][a-zA-Z0-9]{1,63}$`)

// ValidUPI reports whether value looks like a UPI virtual payment address.
func ValidUPI(value string) bool {
	return upiPattern.MatchString(strings.TrimSpace(value))
}

// Evidence accompanies a post-delivery claim. Either Video or VideoURL
// satisfies the video requirement.
type Evidence struct {
	UpiID    string
	VideoURL string
	Video    *evidence.VideoUpload
}

// CreateInput files a cancellation request.
type CreateInput struct {
	OrderID  uuid.UUID
	UserID   uuid.UUID
	Reason   string
	Evidence *Evidence
}

// CreateResult reports the stored request. EvidencePending is set when an
// attached video could not be stored; the caller retries with AttachEvidence.
type CreateResult struct {
	Request         *models.CancellationRequest `json:"request"`
	EvidencePending bool                        `json:"evidence_pending"`
	EvidenceError   string                      `json:"evidence_error,omitempty"`
}

// ResolveInput is an administrator's decision on a request.
type ResolveInput struct {
	RequestID uuid.UUID
	Decision  enums.CancellationDecision
	Actor     orders.Actor
}

// ResolveResult carries the resolved request and, for approvals, the order and
// refund outcome. A refund dispatch failure is reported in RefundError.
type ResolveResult struct {
	Request     *models.CancellationRequest `json:"request"`
	Order       *models.Order               `json:"order,omitempty"`
	Refund      *refunds.Result             `json:"refund,omitempty"`
	RefundError string                      `json:"refund_error,omitempty"`
}

// ListFilters narrows the admin request queue.
type ListFilters struct {
	Status        *enums.CancellationStatus
	DeliveryPhase *enums.DeliveryPhase
	OrderID       *uuid.UUID
}
