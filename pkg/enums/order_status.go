package enums

import (
	"fmt"
	"strings"
)

// OrderStatus is the fulfillment status shared by orders and vendor orders.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// UnrankedStatus is the rank reported for statuses outside the progress track.
const UnrankedStatus = -1

// ProgressTrack lists the ranked statuses in order; cancelled is not part of it.
var ProgressTrack = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
}

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Rank returns the position on the progress track, or UnrankedStatus.
func (s OrderStatus) Rank() int {
	for i, candidate := range ProgressTrack {
		if candidate == s {
			return i
		}
	}
	return UnrankedStatus
}

// IsTerminal reports whether no further transition is modeled out of the status.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// ParseOrderStatus converts raw input into an OrderStatus, ignoring case and padding.
func ParseOrderStatus(value string) (OrderStatus, error) {
	normalized := OrderStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized.IsValid() {
		return normalized, nil
	}
	return "", fmt.Errorf("invalid order status %q", value)
}

// NormalizeOrderStatus parses a stored status, defaulting to pending when the
// value is empty or unrecognized.
func NormalizeOrderStatus(value string) OrderStatus {
	status, err := ParseOrderStatus(value)
	if err != nil {
		return OrderStatusPending
	}
	return status
}

// TimelineKey lower-cases a timeline target without restricting it to the
// known vocabulary.
func TimelineKey(value string) OrderStatus {
	return OrderStatus(strings.ToLower(strings.TrimSpace(value)))
}
