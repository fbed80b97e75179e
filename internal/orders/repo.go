package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-order-progress/pkg/db/models"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/enums"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindOrder loads an order by id or unid with its vendor orders, items and
// status events. Events come back in insertion order.
func (r *repository) FindOrder(ctx context.Context, ref string) (*models.Order, error) {
	query := r.db.WithContext(ctx).
		Preload("VendorOrders", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC").Order("id ASC")
		}).
		Preload("VendorOrders.Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("StatusEvents", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		})

	if id, err := uuid.Parse(ref); err == nil {
		query = query.Where("id = ? OR unid = ?", id, ref)
	} else {
		query = query.Where("unid = ?", ref)
	}

	var order models.Order
	if err := query.First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListOrders(ctx context.Context, scope Scope, params pagination.Params, filters ListFilters) ([]models.Order, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	query := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Preload("VendorOrders")

	if scope.CustomerID != nil {
		query = query.Where("customer_id = ?", *scope.CustomerID)
	}
	if scope.VendorStoreID != nil {
		query = query.Where("id IN (?)",
			r.db.Model(&models.VendorOrder{}).Select("order_id").Where("vendor_store_id = ?", *scope.VendorStoreID))
	}
	if filters.DateFrom != nil {
		query = query.Where("created_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("created_at <= ?", *filters.DateTo)
	}
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Order
	err = query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindVendorOrder(ctx context.Context, id uuid.UUID) (*models.VendorOrder, error) {
	var vo models.VendorOrder
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&vo).Error; err != nil {
		return nil, err
	}
	return &vo, nil
}

// UpdateVendorOrderStatus moves a vendor order from one status to another. It
// reports false when the row was no longer in the expected status.
func (r *repository) UpdateVendorOrderStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error) {
	values := map[string]any{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.VendorOrder{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) AppendStatusEvent(ctx context.Context, event *models.OrderStatusEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(updates).Error
}
