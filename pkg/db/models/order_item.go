package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderItem captures the snapshot of each line within a vendor order.
type OrderItem struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	VendorOrderID uuid.UUID       `gorm:"column:vendor_order_id;type:uuid;not null;index"`
	Name          string          `gorm:"column:name;not null"`
	Quantity      int             `gorm:"column:quantity;not null"`
	UnitPrice     decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Total         decimal.Decimal `gorm:"column:total;type:numeric(12,2);not null"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
