package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-order-progress/pkg/enums"
)

// VendorOrderCanceledEvent is emitted for every confirmed vendor order cancellation.
type VendorOrderCanceledEvent struct {
	OrderID       uuid.UUID         `json:"order_id"`
	VendorOrderID uuid.UUID         `json:"vendor_order_id"`
	VendorStoreID uuid.UUID         `json:"vendor_store_id"`
	CancelledBy   enums.CancelledBy `json:"cancelled_by"`
	Reason        string            `json:"reason,omitempty"`
	OverallStatus enums.OrderStatus `json:"overall_status"`
	CanceledAt    time.Time         `json:"canceled_at"`
}

// OrderCanceledEvent is emitted once every vendor order of an order is cancelled.
type OrderCanceledEvent struct {
	OrderID     uuid.UUID          `json:"order_id"`
	CustomerID  uuid.UUID          `json:"customer_id"`
	CancelledBy *enums.CancelledBy `json:"cancelled_by,omitempty"`
	Reason      *string            `json:"reason,omitempty"`
	CanceledAt  time.Time          `json:"canceled_at"`
}
