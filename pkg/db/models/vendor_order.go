package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-order-progress/pkg/enums"
)

// VendorOrder is the slice of an order fulfilled by one vendor store.
type VendorOrder struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	UNID          string             `gorm:"column:unid;not null;uniqueIndex"`
	OrderID       uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	VendorStoreID uuid.UUID          `gorm:"column:vendor_store_id;type:uuid;not null;index"`
	Status        enums.OrderStatus  `gorm:"column:status;type:text;not null;default:'pending'"`
	CancelledBy   *enums.CancelledBy `gorm:"column:cancelled_by;type:text"`
	CancelReason  *string            `gorm:"column:cancel_reason"`
	CancelledAt   *time.Time         `gorm:"column:cancelled_at"`
	Items         []OrderItem        `gorm:"foreignKey:VendorOrderID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *VendorOrder) BeforeCreate(*gorm.DB) error {
	ensureID(&v.ID)
	if v.UNID == "" {
		v.UNID = v.ID.String()
	}
	return nil
}
