package enums

import "fmt"

// MatchStatus records the operator disposition of a discovered match.
// Transitions are intentionally unrestricted; disposition is not a workflow.
type MatchStatus string

const (
	MatchStatusDetected MatchStatus = "detected"
	MatchStatusReported MatchStatus = "reported"
	MatchStatusResolved MatchStatus = "resolved"
	MatchStatusIgnored  MatchStatus = "ignored"
)

var validMatchStatuses = []MatchStatus{
	MatchStatusDetected,
	MatchStatusReported,
	MatchStatusResolved,
	MatchStatusIgnored,
}

// String implements fmt.Stringer.
func (m MatchStatus) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MatchStatus.
func (m MatchStatus) IsValid() bool {
	for _, candidate := range validMatchStatuses {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMatchStatus converts raw input into a MatchStatus.
func ParseMatchStatus(value string) (MatchStatus, error) {
	for _, candidate := range validMatchStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid match status %q", value)
}
