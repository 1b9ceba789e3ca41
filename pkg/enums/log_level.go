package enums

import "fmt"

// LogLevel is the severity of a persisted system log entry.
type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
	LogLevelFatal LogLevel = "fatal"
)

var validLogLevels = []LogLevel{
	LogLevelInfo,
	LogLevelWarn,
	LogLevelError,
	LogLevelFatal,
}

// String implements fmt.Stringer.
func (l LogLevel) String() string {
	return string(l)
}

// IsValid reports whether the value is a known LogLevel.
func (l LogLevel) IsValid() bool {
	for _, candidate := range validLogLevels {
		if candidate == l {
			return true
		}
	}
	return false
}

// ParseLogLevel converts raw input into a LogLevel.
func ParseLogLevel(value string) (LogLevel, error) {
	for _, candidate := range validLogLevels {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid log level %q", value)
}
