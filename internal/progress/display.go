package progress

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-order-progress/pkg/enums"
)

// Step is one rung of the progress track as shown to the viewer.
type Step struct {
	Status  enums.OrderStatus `json:"status"`
	Reached bool              `json:"reached"`
	Current bool              `json:"current"`
	At      *time.Time        `json:"at"`
}

// Cancellation describes who cancelled an order and why.
type Cancellation struct {
	CancelledBy *enums.CancelledBy `json:"cancelled_by,omitempty"`
	Reason      *string            `json:"reason,omitempty"`
}

// VendorView is the projection of a single vendor order.
type VendorView struct {
	VendorOrderID       string             `json:"vendor_order_id"`
	VendorStoreID       string             `json:"vendor_store_id,omitempty"`
	Status              enums.OrderStatus  `json:"status"`
	Rank                int                `json:"rank"`
	ProgressPercent     int                `json:"progress_percent"`
	CancelledBy         *enums.CancelledBy `json:"cancelled_by,omitempty"`
	Cancellable         bool               `json:"cancellable"`
	CancellationPending bool               `json:"cancellation_pending"`
	StatusSince         *time.Time         `json:"status_since"`
	ItemCount           int                `json:"item_count"`
	Steps               []Step             `json:"steps"`
	Timeline            Timeline           `json:"timeline"`
}

// Display is the full progress view of an order.
type Display struct {
	OrderID           string          `json:"order_id"`
	CreatedAt         *time.Time      `json:"created_at,omitempty"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	Overall           Overall         `json:"overall"`
	DivergentProgress bool            `json:"divergent_progress"`
	Steps             []Step          `json:"steps"`
	Timeline          Timeline        `json:"timeline"`
	Cancellation      *Cancellation   `json:"cancellation,omitempty"`
	VendorOrders      []VendorView    `json:"vendor_orders"`
}

// Project builds the display model for order.
func Project(order Order) Display {
	overall := DeriveOverallStatus(order.VendorOrders)
	timeline := ExtractTimeline(order, nil)

	display := Display{
		OrderID:           order.ID,
		CreatedAt:         order.CreatedAt,
		TotalAmount:       order.TotalAmount,
		Overall:           overall,
		DivergentProgress: HasDivergentProgress(VendorStatuses(order.VendorOrders)),
		Steps:             buildSteps(timeline, overall.Rank),
		Timeline:          timeline,
		VendorOrders:      make([]VendorView, 0, len(order.VendorOrders)),
	}

	if overall.Status == enums.OrderStatusCancelled && (order.CancelledBy != nil || order.CancelReason != nil) {
		display.Cancellation = &Cancellation{
			CancelledBy: order.CancelledBy,
			Reason:      order.CancelReason,
		}
	}

	for _, vo := range order.VendorOrders {
		display.VendorOrders = append(display.VendorOrders, projectVendor(order, vo))
	}
	return display
}

func projectVendor(order Order, vo VendorOrder) VendorView {
	entity := vo.Entity()
	timeline := ExtractTimeline(order, &entity)
	status := normalize(vo.Status)
	rank, percent := standing(status)

	view := VendorView{
		VendorOrderID:       vo.ID,
		VendorStoreID:       vo.VendorStoreID,
		Status:              status,
		Rank:                rank,
		ProgressPercent:     percent,
		Cancellable:         status == enums.OrderStatusPending && !vo.PendingCancellation,
		CancellationPending: vo.PendingCancellation,
		StatusSince:         statusSince(timeline, vo, status),
		ItemCount:           len(vo.Items),
		Steps:               buildSteps(timeline, rank),
		Timeline:            timeline,
	}
	if status == enums.OrderStatusCancelled {
		view.CancelledBy = vo.CancelledBy
	}
	return view
}

// statusSince prefers the timeline, then updated_at, then created_at.
func statusSince(timeline Timeline, vo VendorOrder, status enums.OrderStatus) *time.Time {
	if at := timeline.At(status); at != nil {
		return at
	}
	if vo.UpdatedAt != nil {
		return vo.UpdatedAt
	}
	return vo.CreatedAt
}

func buildSteps(timeline Timeline, rank int) []Step {
	steps := make([]Step, 0, len(enums.ProgressTrack))
	for i, status := range enums.ProgressTrack {
		steps = append(steps, Step{
			Status:  status,
			Reached: rank >= i,
			Current: rank == i,
			At:      timeline.At(status),
		})
	}
	return steps
}
