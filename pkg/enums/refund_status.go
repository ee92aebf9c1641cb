package enums

import (
	"fmt"
	"slices"
)

// RefundStatus tracks issuance of a refund record.
type RefundStatus string

const (
	RefundStatusPending    RefundStatus = "pending"
	RefundStatusProcessing RefundStatus = "processing"
	RefundStatusInitiated  RefundStatus = "initiated"
	RefundStatusFailed     RefundStatus = "failed"
)

var validRefundStatuses = []RefundStatus{
	RefundStatusPending,
	RefundStatusProcessing,
	RefundStatusInitiated,
	RefundStatusFailed,
}

// claimableRefundStatuses may be moved to processing by a dispatcher.
var claimableRefundStatuses = []RefundStatus{
	RefundStatusPending,
	RefundStatusFailed,
}

func (r RefundStatus) String() string {
	return string(r)
}

func (r RefundStatus) IsValid() bool {
	return slices.Contains(validRefundStatuses, r)
}

// IsClaimable reports whether a dispatcher may attempt issuance.
func (r RefundStatus) IsClaimable() bool {
	return slices.Contains(claimableRefundStatuses, r)
}

// ClaimableRefundStatuses returns the statuses a dispatcher may claim from.
func ClaimableRefundStatuses() []RefundStatus {
	return slices.Clone(claimableRefundStatuses)
}

// ParseRefundStatus converts raw input into a RefundStatus.
func ParseRefundStatus(value string) (RefundStatus, error) {
	return parse(value, validRefundStatuses, "refund status")
}

// RefundChannel is how money is returned to the customer.
type RefundChannel string

const (
	// RefundChannelGateway reverses a captured gateway payment.
	RefundChannelGateway RefundChannel = "gateway_refund"
	// RefundChannelUPIPayout pays out to the UPI id on the cancellation request.
	RefundChannelUPIPayout RefundChannel = "upi_payout"
)

func (c RefundChannel) IsValid() bool {
	return c == RefundChannelGateway || c == RefundChannelUPIPayout
}

func (c RefundChannel) String() string {
	return string(c)
}

// ParseRefundChannel converts raw input into a RefundChannel.
func ParseRefundChannel(value string) (RefundChannel, error) {
	channel := RefundChannel(value)
	if !channel.IsValid() {
		return "", fmt.Errorf("invalid refund channel %q", value)
	}
	return channel, nil
}
