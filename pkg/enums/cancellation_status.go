package enums

import "slices"

// CancellationStatus tracks a cancellation request. APPROVED and REJECTED are terminal.
type CancellationStatus string

const (
	CancellationStatusPending  CancellationStatus = "PENDING"
	CancellationStatusApproved CancellationStatus = "APPROVED"
	CancellationStatusRejected CancellationStatus = "REJECTED"
)

var validCancellationStatuses = []CancellationStatus{
	CancellationStatusPending,
	CancellationStatusApproved,
	CancellationStatusRejected,
}

func (s CancellationStatus) String() string {
	return string(s)
}

func (s CancellationStatus) IsValid() bool {
	return slices.Contains(validCancellationStatuses, s)
}

func (s CancellationStatus) IsResolved() bool {
	return s == CancellationStatusApproved || s == CancellationStatusRejected
}

// ParseCancellationStatus converts raw input into a CancellationStatus.
func ParseCancellationStatus(value string) (CancellationStatus, error) {
	return parse(value, validCancellationStatuses, "cancellation status")
}

// CancellationDecision is an administrator's verdict on a pending request.
type CancellationDecision string

const (
	CancellationDecisionApprove CancellationDecision = "APPROVED"
	CancellationDecisionReject  CancellationDecision = "REJECTED"
)

func (d CancellationDecision) IsValid() bool {
	return d == CancellationDecisionApprove || d == CancellationDecisionReject
}

// Status returns the request status the decision resolves to.
func (d CancellationDecision) Status() CancellationStatus {
	if d == CancellationDecisionApprove {
		return CancellationStatusApproved
	}
	return CancellationStatusRejected
}
