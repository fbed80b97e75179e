package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatusEvent is one row of the flat status timeline shared by an order
// and its vendor orders. Rows are read back in id order.
type OrderStatusEvent struct {
	ID         int64      `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID    uuid.UUID  `gorm:"column:order_id;type:uuid;not null;index"`
	UNID       string     `gorm:"column:unid;not null"`
	ToStatus   string     `gorm:"column:to_status;not null"`
	OccurredAt *time.Time `gorm:"column:occurred_at"`
	ActorRole  *string    `gorm:"column:actor_role"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
}
