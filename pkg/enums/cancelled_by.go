package enums

import (
	"fmt"
	"strings"
)

// CancelledBy identifies the party that cancelled a vendor order.
type CancelledBy string

const (
	CancelledByVendor   CancelledBy = "vendor"
	CancelledByCustomer CancelledBy = "customer"
)

var validCancelledBy = []CancelledBy{
	CancelledByVendor,
	CancelledByCustomer,
}

// String implements fmt.Stringer.
func (c CancelledBy) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CancelledBy.
func (c CancelledBy) IsValid() bool {
	for _, candidate := range validCancelledBy {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCancelledBy converts raw input into a CancelledBy.
func ParseCancelledBy(value string) (CancelledBy, error) {
	normalized := CancelledBy(strings.ToLower(strings.TrimSpace(value)))
	if normalized.IsValid() {
		return normalized, nil
	}
	return "", fmt.Errorf("invalid cancelled_by %q", value)
}
