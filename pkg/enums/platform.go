package enums

import "fmt"

// Platform identifies a marketplace or search surface we scan.
type Platform string

const (
	PlatformShopee Platform = "shopee"
	PlatformMomo   Platform = "momo"
	PlatformRuten  Platform = "ruten"
	PlatformGoogle Platform = "google"
)

var validPlatforms = []Platform{
	PlatformShopee,
	PlatformMomo,
	PlatformRuten,
	PlatformGoogle,
}

// AllPlatforms returns the platforms scanned by default, in stable order.
func AllPlatforms() []Platform {
	out := make([]Platform, len(validPlatforms))
	copy(out, validPlatforms)
	return out
}

// String implements fmt.Stringer.
func (p Platform) String() string {
	return string(p)
}

// DisplayName returns the human-facing platform name.
func (p Platform) DisplayName() string {
	switch p {
	case PlatformShopee:
		return "Shopee"
	case PlatformMomo:
		return "momo購物網"
	case PlatformRuten:
		return "露天拍賣"
	case PlatformGoogle:
		return "Google Shopping"
	}
	return string(p)
}

// IsValid reports whether the value is a known Platform.
func (p Platform) IsValid() bool {
	for _, candidate := range validPlatforms {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePlatform converts raw input into a Platform.
func ParsePlatform(value string) (Platform, error) {
	for _, candidate := range validPlatforms {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid platform %q", value)
}
