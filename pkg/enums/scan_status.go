package enums

import "fmt"

// ScanStatus tracks the lifecycle of one orchestrated scan run.
type ScanStatus string

const (
	ScanStatusPending   ScanStatus = "pending"
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusFailed    ScanStatus = "failed"
)

var validScanStatuses = []ScanStatus{
	ScanStatusPending,
	ScanStatusRunning,
	ScanStatusCompleted,
	ScanStatusFailed,
}

// String implements fmt.Stringer.
func (s ScanStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ScanStatus.
func (s ScanStatus) IsValid() bool {
	for _, candidate := range validScanStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the scan reached a final state.
func (s ScanStatus) IsTerminal() bool {
	return s == ScanStatusCompleted || s == ScanStatusFailed
}

// ParseScanStatus converts raw input into a ScanStatus.
func ParseScanStatus(value string) (ScanStatus, error) {
	for _, candidate := range validScanStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid scan status %q", value)
}
