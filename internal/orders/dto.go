package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-order-progress/pkg/enums"
)

// Scope restricts which orders a list query may return.
type Scope struct {
	CustomerID    *uuid.UUID
	VendorStoreID *uuid.UUID
}

// ListFilters describe the inputs supported by the orders list.
type ListFilters struct {
	DateFrom *time.Time
	DateTo   *time.Time
}

// OrderSummary is a row of the orders list.
type OrderSummary struct {
	OrderID           uuid.UUID         `json:"order_id"`
	UNID              string            `json:"unid"`
	CreatedAt         time.Time         `json:"created_at"`
	TotalAmount       decimal.Decimal   `json:"total_amount"`
	Status            enums.OrderStatus `json:"status"`
	ProgressPercent   int               `json:"progress_percent"`
	DivergentProgress bool              `json:"divergent_progress"`
	VendorOrderCount  int               `json:"vendor_order_count"`
}

// CancelInput carries an authoritative vendor order cancellation.
type CancelInput struct {
	OrderID       uuid.UUID
	VendorOrderID uuid.UUID
	Actor         Viewer
	Reason        string
	RequestedAt   time.Time
}

// CancelResult reports the order state after a committed cancellation.
type CancelResult struct {
	VendorOrderID  uuid.UUID         `json:"vendor_order_id"`
	OverallStatus  enums.OrderStatus `json:"overall_status"`
	OrderCancelled bool              `json:"order_cancelled"`
}
