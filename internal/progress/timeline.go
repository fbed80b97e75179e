package progress

import (
	"time"

	"github.com/angelmondragon/packfinderz-order-progress/pkg/enums"
)

// Timeline maps a lower-cased status name to the time it was reached.
// A nil value means the status is known but carries no timestamp.
type Timeline map[enums.OrderStatus]*time.Time

// At returns the recorded time for status, if any.
func (t Timeline) At(status enums.OrderStatus) *time.Time {
	if t == nil {
		return nil
	}
	return t[status]
}

// ExtractTimeline folds the order's status timeline into the effective timeline
// of entity. A nil entity selects the order itself.
//
// The pending key is seeded first with the entity's creation time (falling back
// to the order's), then matching entries are applied in array order so a later
// entry for the same status replaces an earlier one.
func ExtractTimeline(order Order, entity *Entity) Timeline {
	target := order.Entity()
	if entity != nil {
		target = *entity
	}

	seed := target.CreatedAt
	if seed == nil {
		seed = order.CreatedAt
	}

	timeline := Timeline{enums.OrderStatusPending: seed}
	for _, entry := range order.StatusTimeline {
		if entry.UNID != target.Key {
			continue
		}
		key := enums.TimelineKey(entry.To)
		if key == "" {
			continue
		}
		timeline[key] = entry.DateTime
	}
	return timeline
}
