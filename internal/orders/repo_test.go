package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-order-progress/pkg/db"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/db/models"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/enums"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/pagination"
)

func TestRepositoryFindOrderPreloadsChildren(t *testing.T) {
	conn := setupOrdersTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	seeded := seedOrder(t, conn, uuid.New(), baseTime,
		seedVendor{status: enums.OrderStatusPending, store: uuid.New()},
		seedVendor{status: enums.OrderStatusShipped, store: uuid.New()},
	)
	second := baseTime.Add(time.Minute)
	require.NoError(t, repo.AppendStatusEvent(ctx, &models.OrderStatusEvent{OrderID: seeded.ID, UNID: seeded.VendorOrders[1].UNID, ToStatus: "confirmed", OccurredAt: &baseTime}))
	require.NoError(t, repo.AppendStatusEvent(ctx, &models.OrderStatusEvent{OrderID: seeded.ID, UNID: seeded.VendorOrders[1].UNID, ToStatus: "shipped", OccurredAt: &second}))

	found, err := repo.FindOrder(ctx, seeded.ID.String())
	require.NoError(t, err)
	require.Len(t, found.VendorOrders, 2)
	assert.Equal(t, seeded.VendorOrders[0].ID, found.VendorOrders[0].ID)
	require.Len(t, found.VendorOrders[0].Items, 1)
	require.Len(t, found.StatusEvents, 2)
	assert.Equal(t, "confirmed", found.StatusEvents[0].ToStatus)
	assert.Equal(t, "shipped", found.StatusEvents[1].ToStatus)

	byUNID, err := repo.FindOrder(ctx, seeded.UNID)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, byUNID.ID)

	_, err = repo.FindOrder(ctx, "ORD-MISSING")
	assert.True(t, db.IsNotFound(err))
}

func TestRepositoryUpdateVendorOrderStatusIsConditional(t *testing.T) {
	conn := setupOrdersTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	seeded := seedOrder(t, conn, uuid.New(), baseTime, seedVendor{status: enums.OrderStatusPending, store: uuid.New()})
	voID := seeded.VendorOrders[0].ID

	updated, err := repo.UpdateVendorOrderStatus(ctx, voID, enums.OrderStatusConfirmed, enums.OrderStatusCancelled, nil)
	require.NoError(t, err)
	assert.False(t, updated)

	updated, err = repo.UpdateVendorOrderStatus(ctx, voID, enums.OrderStatusPending, enums.OrderStatusCancelled, map[string]any{
		"cancelled_by": enums.CancelledByVendor,
	})
	require.NoError(t, err)
	assert.True(t, updated)

	vo, err := repo.FindVendorOrder(ctx, voID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, vo.Status)
	require.NotNil(t, vo.CancelledBy)
	assert.Equal(t, enums.CancelledByVendor, *vo.CancelledBy)
}

func TestRepositoryListOrdersScopesAndPaginates(t *testing.T) {
	conn := setupOrdersTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	customer := uuid.New()
	store := uuid.New()
	for i := 0; i < 3; i++ {
		seedOrder(t, conn, customer, baseTime.Add(time.Duration(i)*time.Hour), seedVendor{status: enums.OrderStatusPending, store: uuid.New()})
	}
	vendorOrder := seedOrder(t, conn, uuid.New(), baseTime.Add(5*time.Hour), seedVendor{status: enums.OrderStatusPending, store: store})

	rows, err := repo.ListOrders(ctx, Scope{CustomerID: &customer}, pagination.Params{Limit: 2}, ListFilters{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.True(t, rows[0].CreatedAt.After(rows[1].CreatedAt))

	page, last := pagination.Trim(rows, 2)
	require.Len(t, page, 2)
	require.NotNil(t, last)

	next, err := repo.ListOrders(ctx, Scope{CustomerID: &customer}, pagination.Params{
		Limit:  2,
		Cursor: pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}),
	}, ListFilters{})
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.True(t, next[0].CreatedAt.Equal(baseTime))

	vendorRows, err := repo.ListOrders(ctx, Scope{VendorStoreID: &store}, pagination.Params{}, ListFilters{})
	require.NoError(t, err)
	require.Len(t, vendorRows, 1)
	assert.Equal(t, vendorOrder.ID, vendorRows[0].ID)
	require.Len(t, vendorRows[0].VendorOrders, 1)
}
