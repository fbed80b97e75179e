package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-order-progress/pkg/enums"
)

// Order is the customer purchase spanning one or more vendor orders.
type Order struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	UNID         string             `gorm:"column:unid;not null;uniqueIndex"`
	CustomerID   uuid.UUID          `gorm:"column:customer_id;type:uuid;not null"`
	TotalAmount  decimal.Decimal    `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Status       enums.OrderStatus  `gorm:"column:status;type:text;not null;default:'pending'"`
	CancelledBy  *enums.CancelledBy `gorm:"column:cancelled_by;type:text"`
	CancelReason *string            `gorm:"column:cancel_reason"`
	VendorOrders []VendorOrder      `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	StatusEvents []OrderStatusEvent `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	if o.UNID == "" {
		o.UNID = o.ID.String()
	}
	return nil
}
