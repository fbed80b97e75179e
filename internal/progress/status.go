package progress

import (
	"math"

	"github.com/angelmondragon/packfinderz-order-progress/pkg/enums"
)

// Overall is the single status shown for a whole order.
type Overall struct {
	Status          enums.OrderStatus `json:"status"`
	Rank            int               `json:"rank"`
	ProgressPercent int               `json:"progress_percent"`
}

// VendorStatuses returns the normalized status of every vendor order.
func VendorStatuses(vendorOrders []VendorOrder) []enums.OrderStatus {
	statuses := make([]enums.OrderStatus, 0, len(vendorOrders))
	for _, vo := range vendorOrders {
		statuses = append(statuses, normalize(vo.Status))
	}
	return statuses
}

// DeriveOverallStatus computes the order status from its vendor orders.
// Cancelled vendor orders are ignored; the least advanced of the remaining
// ones gates the order. When nothing remains the order is cancelled.
func DeriveOverallStatus(vendorOrders []VendorOrder) Overall {
	return DeriveOverallFromStatuses(VendorStatuses(vendorOrders))
}

// DeriveOverallFromStatuses applies the same rule to bare statuses.
func DeriveOverallFromStatuses(statuses []enums.OrderStatus) Overall {
	minRank := enums.UnrankedStatus
	for _, status := range statuses {
		status = normalize(status)
		if status == enums.OrderStatusCancelled {
			continue
		}
		rank := status.Rank()
		if minRank == enums.UnrankedStatus || rank < minRank {
			minRank = rank
		}
	}

	if minRank == enums.UnrankedStatus {
		return Overall{
			Status:          enums.OrderStatusCancelled,
			Rank:            enums.UnrankedStatus,
			ProgressPercent: 0,
		}
	}
	return Overall{
		Status:          enums.ProgressTrack[minRank],
		Rank:            minRank,
		ProgressPercent: percentFor(minRank),
	}
}

// HasDivergentProgress reports whether several vendor orders sit at different
// statuses.
func HasDivergentProgress(statuses []enums.OrderStatus) bool {
	if len(statuses) <= 1 {
		return false
	}
	first := normalize(statuses[0])
	for _, status := range statuses[1:] {
		if normalize(status) != first {
			return true
		}
	}
	return false
}

// standing returns the rank and percentage of a single status.
func standing(status enums.OrderStatus) (int, int) {
	status = normalize(status)
	if status == enums.OrderStatusCancelled {
		return enums.UnrankedStatus, 0
	}
	rank := status.Rank()
	return rank, percentFor(rank)
}

func percentFor(rank int) int {
	if rank < 0 {
		return 0
	}
	return int(math.Round(float64(rank+1) / float64(len(enums.ProgressTrack)) * 100))
}

// normalize treats unknown or empty statuses as pending.
func normalize(status enums.OrderStatus) enums.OrderStatus {
	if status.IsValid() {
		return status
	}
	return enums.NormalizeOrderStatus(string(status))
}
