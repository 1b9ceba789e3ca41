package enums

import "fmt"

// EvidenceType classifies a captured evidence artifact.
type EvidenceType string

const (
	EvidenceTypeScreenshot      EvidenceType = "screenshot"
	EvidenceTypeWebpageArchive  EvidenceType = "webpage_archive"
	EvidenceTypeHashCertificate EvidenceType = "hash_certificate"
)

var validEvidenceTypes = []EvidenceType{
	EvidenceTypeScreenshot,
	EvidenceTypeWebpageArchive,
	EvidenceTypeHashCertificate,
}

// String implements fmt.Stringer.
func (e EvidenceType) String() string {
	return string(e)
}

// IsValid reports whether the value is a known EvidenceType.
func (e EvidenceType) IsValid() bool {
	for _, candidate := range validEvidenceTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseEvidenceType converts raw input into an EvidenceType.
func ParseEvidenceType(value string) (EvidenceType, error) {
	for _, candidate := range validEvidenceTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid evidence type %q", value)
}
