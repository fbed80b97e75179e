package orders

import (
	"time"

	"github.com/angelmondragon/packfinderz-order-progress/internal/progress"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/db/models"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/enums"
)

// toSnapshot maps stored rows onto the progress model. Vendor order statuses
// are normalized here, so nothing downstream sees an unknown value.
func toSnapshot(row *models.Order) progress.Order {
	snapshot := progress.Order{
		ID:             row.ID.String(),
		UNID:           row.UNID,
		CustomerID:     row.CustomerID.String(),
		CreatedAt:      timePtr(row.CreatedAt),
		TotalAmount:    row.TotalAmount,
		Status:         string(row.Status),
		StatusTimeline: make([]progress.TimelineEntry, 0, len(row.StatusEvents)),
		VendorOrders:   make([]progress.VendorOrder, 0, len(row.VendorOrders)),
		CancelledBy:    row.CancelledBy,
		CancelReason:   row.CancelReason,
	}

	for _, event := range row.StatusEvents {
		snapshot.StatusTimeline = append(snapshot.StatusTimeline, progress.TimelineEntry{
			UNID:     event.UNID,
			To:       event.ToStatus,
			DateTime: event.OccurredAt,
		})
	}

	for _, vo := range row.VendorOrders {
		snapshot.VendorOrders = append(snapshot.VendorOrders, toVendorSnapshot(vo))
	}
	return snapshot
}

func toVendorSnapshot(vo models.VendorOrder) progress.VendorOrder {
	out := progress.VendorOrder{
		ID:            vo.ID.String(),
		UNID:          vo.UNID,
		VendorStoreID: vo.VendorStoreID.String(),
		Status:        enums.NormalizeOrderStatus(string(vo.Status)),
		CancelledBy:   vo.CancelledBy,
		Items:         make([]progress.Item, 0, len(vo.Items)),
		CreatedAt:     timePtr(vo.CreatedAt),
		UpdatedAt:     timePtr(vo.UpdatedAt),
	}
	for _, item := range vo.Items {
		out.Items = append(out.Items, progress.Item{
			ID:        item.ID.String(),
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Total:     item.Total,
		})
	}
	return out
}

func toSummary(row models.Order) OrderSummary {
	statuses := make([]enums.OrderStatus, 0, len(row.VendorOrders))
	for _, vo := range row.VendorOrders {
		statuses = append(statuses, vo.Status)
	}
	overall := progress.DeriveOverallFromStatuses(statuses)
	return OrderSummary{
		OrderID:           row.ID,
		UNID:              row.UNID,
		CreatedAt:         row.CreatedAt,
		TotalAmount:       row.TotalAmount,
		Status:            overall.Status,
		ProgressPercent:   overall.ProgressPercent,
		DivergentProgress: progress.HasDivergentProgress(statuses),
		VendorOrderCount:  len(row.VendorOrders),
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
