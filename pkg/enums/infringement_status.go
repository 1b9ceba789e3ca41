package enums

import "fmt"

// InfringementStatus tracks a case through its lifecycle. Most transitions
// are free-form; dismissal is only allowed from pending and resolution only
// from reported. Callers enforce those rules via CanTransitionTo.
type InfringementStatus string

const (
	InfringementStatusPending   InfringementStatus = "pending"
	InfringementStatusEvidenced InfringementStatus = "evidenced"
	InfringementStatusReported  InfringementStatus = "reported"
	InfringementStatusResolved  InfringementStatus = "resolved"
	InfringementStatusDismissed InfringementStatus = "dismissed"
)

var validInfringementStatuses = []InfringementStatus{
	InfringementStatusPending,
	InfringementStatusEvidenced,
	InfringementStatusReported,
	InfringementStatusResolved,
	InfringementStatusDismissed,
}

// String implements fmt.Stringer.
func (s InfringementStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known InfringementStatus.
func (s InfringementStatus) IsValid() bool {
	for _, candidate := range validInfringementStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a case in this status accepts no further
// status changes.
func (s InfringementStatus) IsTerminal() bool {
	return s == InfringementStatusResolved || s == InfringementStatusDismissed
}

// CanTransitionTo reports whether the lifecycle permits moving from the
// current status to next.
func (s InfringementStatus) CanTransitionTo(next InfringementStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch next {
	case InfringementStatusDismissed:
		return s == InfringementStatusPending
	case InfringementStatusResolved:
		return s == InfringementStatusReported
	case InfringementStatusPending, InfringementStatusEvidenced, InfringementStatusReported:
		return true
	}
	return false
}

// ParseInfringementStatus converts raw input into an InfringementStatus.
func ParseInfringementStatus(value string) (InfringementStatus, error) {
	for _, candidate := range validInfringementStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid infringement status %q", value)
}
