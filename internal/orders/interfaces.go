package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-order-progress/pkg/db/models"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/enums"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/pagination"
)

// Repository defines persistence operations for the order progress tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOrder(ctx context.Context, ref string) (*models.Order, error)
	ListOrders(ctx context.Context, scope Scope, params pagination.Params, filters ListFilters) ([]models.Order, error)
	FindVendorOrder(ctx context.Context, id uuid.UUID) (*models.VendorOrder, error)
	UpdateVendorOrderStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error)
	AppendStatusEvent(ctx context.Context, event *models.OrderStatusEvent) error
	UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error
}
