// Package progress derives the customer-facing status, progress percentage and
// step timeline of a multi-vendor order from an already-fetched snapshot.
// Every function here is pure and safe for concurrent use.
package progress

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-order-progress/pkg/enums"
)

// Order is the read-only snapshot of an order and its vendor orders.
type Order struct {
	ID             string             `json:"id"`
	UNID           string             `json:"unid,omitempty"`
	CustomerID     string             `json:"customer_id,omitempty"`
	CreatedAt      *time.Time         `json:"created_at,omitempty"`
	TotalAmount    decimal.Decimal    `json:"total_amount"`
	Status         string             `json:"status,omitempty"`
	StatusTimeline []TimelineEntry    `json:"status_timeline"`
	VendorOrders   []VendorOrder      `json:"vendor_orders"`
	CancelledBy    *enums.CancelledBy `json:"cancelled_by,omitempty"`
	CancelReason   *string            `json:"cancel_reason,omitempty"`
}

// VendorOrder is the slice of an order fulfilled by a single vendor.
type VendorOrder struct {
	ID            string             `json:"id"`
	UNID          string             `json:"unid,omitempty"`
	VendorStoreID string             `json:"vendor_store_id,omitempty"`
	Status        enums.OrderStatus  `json:"status"`
	CancelledBy   *enums.CancelledBy `json:"cancelled_by,omitempty"`
	Items         []Item             `json:"items"`
	CreatedAt     *time.Time         `json:"created_at,omitempty"`
	UpdatedAt     *time.Time         `json:"updated_at,omitempty"`

	// PendingCancellation marks a cancellation applied locally and not yet
	// confirmed by the orders store. It is never cached or serialized.
	PendingCancellation bool `json:"-"`
}

// Item is a line item of a vendor order.
type Item struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"`
}

// TimelineEntry is one status change in the flat log shared by an order and
// all its vendor orders. UNID names the entity the change applies to.
type TimelineEntry struct {
	UNID     string     `json:"unid"`
	To       string     `json:"to"`
	DateTime *time.Time `json:"date_time"`
}

// Entity is anything with its own slice of the status timeline.
type Entity struct {
	Key       string
	CreatedAt *time.Time
}

// Key returns the identifier used to join timeline entries to the order.
func (o Order) Key() string {
	if o.UNID != "" {
		return o.UNID
	}
	return o.ID
}

// Entity returns the order as a timeline entity.
func (o Order) Entity() Entity {
	return Entity{Key: o.Key(), CreatedAt: o.CreatedAt}
}

// Key returns the identifier used to join timeline entries to the vendor order.
func (v VendorOrder) Key() string {
	if v.UNID != "" {
		return v.UNID
	}
	return v.ID
}

// Entity returns the vendor order as a timeline entity.
func (v VendorOrder) Entity() Entity {
	return Entity{Key: v.Key(), CreatedAt: v.CreatedAt}
}

// FindVendorOrder returns the vendor order matching id or unid.
func (o Order) FindVendorOrder(id string) (VendorOrder, bool) {
	for _, vo := range o.VendorOrders {
		if vo.ID == id || (vo.UNID != "" && vo.UNID == id) {
			return vo, true
		}
	}
	return VendorOrder{}, false
}

// Clone returns a copy whose slices can be modified without touching o.
func (o Order) Clone() Order {
	out := o
	out.StatusTimeline = append([]TimelineEntry(nil), o.StatusTimeline...)
	out.VendorOrders = make([]VendorOrder, len(o.VendorOrders))
	for i, vo := range o.VendorOrders {
		vo.Items = append([]Item(nil), vo.Items...)
		out.VendorOrders[i] = vo
	}
	return out
}
