package orders

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-order-progress/pkg/db/models"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/enums"
)

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, conn.AutoMigrate(
		&models.Order{},
		&models.VendorOrder{},
		&models.OrderItem{},
		&models.OrderStatusEvent{},
		&models.OutboxEvent{},
	))
	return conn
}

type seedVendor struct {
	status enums.OrderStatus
	store  uuid.UUID
}

func seedOrder(t *testing.T, conn *gorm.DB, customerID uuid.UUID, createdAt time.Time, vendors ...seedVendor) *models.Order {
	t.Helper()

	order := &models.Order{
		CustomerID:  customerID,
		TotalAmount: decimal.NewFromInt(int64(40 * len(vendors))),
		Status:      enums.OrderStatusPending,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	for i, v := range vendors {
		order.VendorOrders = append(order.VendorOrders, models.VendorOrder{
			VendorStoreID: v.store,
			Status:        v.status,
			CreatedAt:     createdAt.Add(time.Duration(i) * time.Second),
			UpdatedAt:     createdAt.Add(time.Duration(i) * time.Second),
			Items: []models.OrderItem{{
				Name:      fmt.Sprintf("item-%d", i),
				Quantity:  2,
				UnitPrice: decimal.NewFromInt(20),
				Total:     decimal.NewFromInt(40),
			}},
		})
	}
	require.NoError(t, conn.Create(order).Error)
	return order
}

type memoryCache struct {
	mu      sync.Mutex
	entries  map[string]string
	versions map[string]int64
	deleted  []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string]string{}, versions: map[string]int64{}}
}

func (c *memoryCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.entries[key]
	if !ok {
		return "", goredis.Nil
	}
	return value, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		c.entries[key] = string(v)
	case string:
		c.entries[key] = v
	default:
		return fmt.Errorf("unsupported cache value %T", value)
	}
	return nil
}

func (c *memoryCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.entries, key)
		c.deleted = append(c.deleted, key)
	}
	return nil
}

func (c *memoryCache) Version(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[key], nil
}

func (c *memoryCache) SetIfVersion(ctx context.Context, key, versionKey string, version int64, value any, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	current := c.versions[versionKey]
	c.mu.Unlock()
	if current != version {
		return false, nil
	}
	return true, c.Set(ctx, key, value, ttl)
}

func (c *memoryCache) BumpVersion(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[key]++
	return c.versions[key], nil
}

func (c *memoryCache) SnapshotKey(orderID string) string {
	return "pf:order_snapshot:" + orderID
}

func (c *memoryCache) SnapshotVersionKey(orderID string) string {
	return "pf:order_snapshot:" + orderID + ":version"
}

func (c *memoryCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}
