package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-order-progress/internal/progress"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/db"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/db/models"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-order-progress/pkg/errors"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/logger"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/metrics"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/outbox"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/outbox/payloads"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/pagination"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/redis"
)

const maxReasonLength = 500

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// SnapshotCache stores serialized order snapshots behind a per-key generation
// counter, so a reader that loaded before an invalidation cannot repopulate it.
type SnapshotCache interface {
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	Version(ctx context.Context, key string) (int64, error)
	SetIfVersion(ctx context.Context, key, versionKey string, version int64, value any, ttl time.Duration) (bool, error)
	BumpVersion(ctx context.Context, key string, ttl time.Duration) (int64, error)
	SnapshotKey(orderID string) string
	SnapshotVersionKey(orderID string) string
}

// snapshotVersionTTL outlives any snapshot load so an expired counter never re-admits a stale write.
const snapshotVersionTTL = 24 * time.Hour

// Service exposes order reads and the authoritative cancellation.
type Service interface {
	Snapshot(ctx context.Context, ref string, viewer Viewer) (*progress.Order, error)
	List(ctx context.Context, viewer Viewer, params pagination.Params, filters ListFilters) (*pagination.Page[OrderSummary], error)
	CancelVendorOrder(ctx context.Context, input CancelInput) (*CancelResult, error)
}

// ServiceParams groups the service collaborators.
type ServiceParams struct {
	Repo        Repository
	Tx          txRunner
	Outbox      outboxPublisher
	Cache       SnapshotCache
	CacheTTL    time.Duration
	Logger      *logger.Logger
	CacheMetric *metrics.SnapshotCacheMetrics
	Now         func() time.Time
}

type service struct {
	repo        Repository
	tx          txRunner
	outbox      outboxPublisher
	cache       SnapshotCache
	cacheTTL    time.Duration
	logg        *logger.Logger
	cacheMetric *metrics.SnapshotCacheMetrics
	now         func() time.Time
}

// NewService builds the orders service. The cache is optional.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &service{
		repo:        params.Repo,
		tx:          params.Tx,
		outbox:      params.Outbox,
		cache:       params.Cache,
		cacheTTL:    params.CacheTTL,
		logg:        params.Logger,
		cacheMetric: params.CacheMetric,
		now:         params.Now,
	}, nil
}

func (s *service) Snapshot(ctx context.Context, ref string, viewer Viewer) (*progress.Order, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if id, err := uuid.Parse(ref); err == nil {
		ref = id.String()
	}
	if err := viewer.validate(); err != nil {
		return nil, err
	}

	snapshot, ok := s.cachedSnapshot(ctx, ref)
	if !ok {
		version, fenced := s.snapshotVersion(ctx, ref)
		row, err := s.repo.FindOrder(ctx, ref)
		if err != nil {
			if db.IsNotFound(err) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		mapped := toSnapshot(row)
		snapshot = &mapped
		if fenced {
			s.storeSnapshot(ctx, ref, version, snapshot)
		}
	}

	// Orders the viewer may not read look missing, so ids do not leak.
	if !viewer.CanView(*snapshot) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return snapshot, nil
}

func (s *service) List(ctx context.Context, viewer Viewer, params pagination.Params, filters ListFilters) (*pagination.Page[OrderSummary], error) {
	if err := viewer.validate(); err != nil {
		return nil, err
	}
	if filters.DateFrom != nil && filters.DateTo != nil && filters.DateTo.Before(*filters.DateFrom) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "date_to must not be before date_from")
	}

	rows, err := s.repo.ListOrders(ctx, viewer.Scope(), params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	rows, last := pagination.Trim(rows, params.Limit)
	page := &pagination.Page[OrderSummary]{Items: make([]OrderSummary, 0, len(rows))}
	for _, row := range rows {
		page.Items = append(page.Items, toSummary(row))
	}
	if last != nil {
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, nil
}

func (s *service) CancelVendorOrder(ctx context.Context, input CancelInput) (*CancelResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.VendorOrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor order id required")
	}
	if err := input.Actor.validate(); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(input.Reason)
	if len(reason) > maxReasonLength {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "reason must be at most %d characters", maxReasonLength)
	}
	at := input.RequestedAt
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC()

	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_id":        input.OrderID.String(),
		"vendor_order_id": input.VendorOrderID.String(),
	})

	var (
		result   CancelResult
		orderRow *models.Order
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		row, err := repo.FindOrder(ctx, input.OrderID.String())
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		orderRow = row
		snapshot := toSnapshot(row)

		target, ok := snapshot.FindVendorOrder(input.VendorOrderID.String())
		if !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, "vendor order not found")
		}
		if !input.Actor.CanView(snapshot) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		party, err := input.Actor.CheckCancel(snapshot, target)
		if err != nil {
			return err
		}
		if target.Status != enums.OrderStatusPending {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "vendor order is %s and can no longer be cancelled", target.Status)
		}

		stored := storedVendorOrder(row, input.VendorOrderID)
		updates := map[string]any{
			"cancelled_by": party,
			"cancelled_at": at,
		}
		if reason != "" {
			updates["cancel_reason"] = reason
		}
		updated, err := repo.UpdateVendorOrderStatus(ctx, input.VendorOrderID, stored.Status, enums.OrderStatusCancelled, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update vendor order status")
		}
		if !updated {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "vendor order changed while cancelling")
		}

		role := string(input.Actor.Role)
		if err := repo.AppendStatusEvent(ctx, &models.OrderStatusEvent{
			OrderID:    row.ID,
			UNID:       target.Key(),
			ToStatus:   string(enums.OrderStatusCancelled),
			OccurredAt: &at,
			ActorRole:  &role,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append vendor order status event")
		}

		previous := progress.DeriveOverallStatus(snapshot.VendorOrders).Status
		for i := range snapshot.VendorOrders {
			if snapshot.VendorOrders[i].ID == target.ID {
				snapshot.VendorOrders[i].Status = enums.OrderStatusCancelled
				snapshot.VendorOrders[i].CancelledBy = &party
			}
		}
		overall := progress.DeriveOverallStatus(snapshot.VendorOrders)

		orderUpdates := map[string]any{"status": overall.Status}
		orderCancelled := overall.Status == enums.OrderStatusCancelled
		if orderCancelled {
			if by := commonCancelledBy(snapshot.VendorOrders); by != nil {
				orderUpdates["cancelled_by"] = *by
			}
			if reason != "" {
				orderUpdates["cancel_reason"] = reason
			}
		}
		if err := repo.UpdateOrder(ctx, row.ID, orderUpdates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}

		if overall.Status != previous {
			if err := repo.AppendStatusEvent(ctx, &models.OrderStatusEvent{
				OrderID:    row.ID,
				UNID:       snapshot.Key(),
				ToStatus:   string(overall.Status),
				OccurredAt: &at,
				ActorRole:  &role,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order status event")
			}
		}

		actor := buildActor(input.Actor)
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventVendorOrderCanceled,
			AggregateType: enums.AggregateVendorOrder,
			AggregateID:   input.VendorOrderID,
			Actor:         actor,
			OccurredAt:    at,
			Data: payloads.VendorOrderCanceledEvent{
				OrderID:       row.ID,
				VendorOrderID: input.VendorOrderID,
				VendorStoreID: stored.VendorStoreID,
				CancelledBy:   party,
				Reason:        reason,
				OverallStatus: overall.Status,
				CanceledAt:    at,
			},
		}); err != nil {
			return err
		}

		if orderCancelled {
			data := payloads.OrderCanceledEvent{
				OrderID:     row.ID,
				CustomerID:  row.CustomerID,
				CancelledBy: commonCancelledBy(snapshot.VendorOrders),
				CanceledAt:  at,
			}
			if reason != "" {
				data.Reason = &reason
			}
			if err := s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderCanceled,
				AggregateType: enums.AggregateOrder,
				AggregateID:   row.ID,
				Actor:         actor,
				OccurredAt:    at,
				Data:          data,
			}); err != nil {
				return err
			}
		}

		result = CancelResult{
			VendorOrderID:  input.VendorOrderID,
			OverallStatus:  overall.Status,
			OrderCancelled: orderCancelled,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, orderRow)
	s.logg.Info(s.logg.WithField(ctx, "overall_status", result.OverallStatus), "vendor order cancelled")
	return &result, nil
}

func storedVendorOrder(row *models.Order, id uuid.UUID) models.VendorOrder {
	for _, vo := range row.VendorOrders {
		if vo.ID == id {
			return vo
		}
	}
	return models.VendorOrder{}
}

// commonCancelledBy returns the party when every vendor order was cancelled by it.
func commonCancelledBy(vendorOrders []progress.VendorOrder) *enums.CancelledBy {
	var party *enums.CancelledBy
	for _, vo := range vendorOrders {
		if vo.CancelledBy == nil {
			return nil
		}
		if party != nil && *party != *vo.CancelledBy {
			return nil
		}
		party = vo.CancelledBy
	}
	if party == nil {
		return nil
	}
	out := *party
	return &out
}

func buildActor(viewer Viewer) *outbox.ActorRef {
	actor := &outbox.ActorRef{
		UserID: viewer.UserID.String(),
		Role:   viewer.Role,
	}
	if viewer.StoreID != nil {
		actor.StoreID = viewer.StoreID.String()
	}
	return actor
}

func (s *service) cachedSnapshot(ctx context.Context, ref string) (*progress.Order, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, s.cache.SnapshotKey(ref))
	if err != nil {
		if redis.IsMiss(err) {
			s.cacheMetric.Miss()
		} else {
			s.cacheMetric.Error()
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "order snapshot cache read failed")
		}
		return nil, false
	}
	var snapshot progress.Order
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		s.cacheMetric.Error()
		return nil, false
	}
	s.cacheMetric.Hit()
	return &snapshot, true
}

// snapshotVersion reads the generation a later store must still match.
func (s *service) snapshotVersion(ctx context.Context, ref string) (int64, bool) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return 0, false
	}
	version, err := s.cache.Version(ctx, s.cache.SnapshotVersionKey(ref))
	if err != nil {
		s.cacheMetric.Error()
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "order snapshot version read failed")
		return 0, false
	}
	return version, true
}

func (s *service) storeSnapshot(ctx context.Context, ref string, version int64, snapshot *progress.Order) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	written, err := s.cache.SetIfVersion(ctx, s.cache.SnapshotKey(ref), s.cache.SnapshotVersionKey(ref), version, payload, s.cacheTTL)
	if err != nil {
		s.cacheMetric.Error()
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "order snapshot cache write failed")
		return
	}
	if !written {
		s.logg.Debug(s.logg.WithField(ctx, "order_ref", ref), "order snapshot invalidated during load, skipping cache write")
	}
}

// invalidate drops every cache key an order may have been stored under.
// Generations are bumped before the delete so in-flight loads cannot write back.
func (s *service) invalidate(ctx context.Context, row *models.Order) {
	if s.cache == nil || row == nil {
		return
	}
	refs := []string{row.ID.String()}
	if row.UNID != "" && row.UNID != row.ID.String() {
		refs = append(refs, row.UNID)
	}
	keys := make([]string, 0, len(refs))
	for _, ref := range refs {
		if _, err := s.cache.BumpVersion(ctx, s.cache.SnapshotVersionKey(ref), snapshotVersionTTL); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "order snapshot version bump failed")
		}
		keys = append(keys, s.cache.SnapshotKey(ref))
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "order snapshot cache invalidation failed")
	}
}
