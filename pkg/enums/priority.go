package enums

import "fmt"

// Priority ranks an infringement case for triage.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

var validPriorities = []Priority{
	PriorityLow,
	PriorityMedium,
	PriorityHigh,
	PriorityCritical,
}

// String implements fmt.Stringer.
func (p Priority) String() string {
	return string(p)
}

// IsValid reports whether the value is a known Priority.
func (p Priority) IsValid() bool {
	for _, candidate := range validPriorities {
		if candidate == p {
			return true
		}
	}
	return false
}

// PriorityForScore derives a triage priority from a similarity score.
// Scores of 90 and above are high, 70 and above medium, everything else low.
// Critical is reserved for manual escalation.
func PriorityForScore(score int) Priority {
	switch {
	case score >= 90:
		return PriorityHigh
	case score >= 70:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// ParsePriority converts raw input into a Priority.
func ParsePriority(value string) (Priority, error) {
	for _, candidate := range validPriorities {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid priority %q", value)
}
