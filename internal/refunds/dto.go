package refunds

import (
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Result is what the dispatcher reports back to the approval flow.
type Result struct {
	Initiated bool           `json:"initiated"`
	Refund    *models.Refund `json:"refund,omitempty"`
}

// ListFilters narrows the admin refund report.
type ListFilters struct {
	Status  *enums.RefundStatus
	Channel *enums.RefundChannel
}

// RetrySummary reports one sweep of the retry job.
type RetrySummary struct {
	Released  int
	Attempted int
	Initiated int
	Failed    int
}
