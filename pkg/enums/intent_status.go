package enums

import "slices"

// IntentStatus tracks a prepaid checkout intent through its phases.
type IntentStatus string

const (
	IntentStatusCollecting          IntentStatus = "collecting"
	IntentStatusCommitted           IntentStatus = "committed"
	IntentStatusAbandoned           IntentStatus = "abandoned"
	IntentStatusExpired             IntentStatus = "expired"
	IntentStatusNeedsReconciliation IntentStatus = "needs_reconciliation"
)

var validIntentStatuses = []IntentStatus{
	IntentStatusCollecting,
	IntentStatusCommitted,
	IntentStatusAbandoned,
	IntentStatusExpired,
	IntentStatusNeedsReconciliation,
}

func (s IntentStatus) String() string {
	return string(s)
}

func (s IntentStatus) IsValid() bool {
	return slices.Contains(validIntentStatuses, s)
}

// ParseIntentStatus converts raw input into an IntentStatus.
func ParseIntentStatus(value string) (IntentStatus, error) {
	return parse(value, validIntentStatuses, "intent status")
}
