package cancellation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-order-progress/internal/orders"
	"github.com/angelmondragon/packfinderz-order-progress/internal/progress"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-order-progress/pkg/errors"
)

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) afterFunc(d time.Duration, f func()) Stopper {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{delay: d, fn: f}
	s.timers = append(s.timers, t)
	return t
}

// fire runs the most recent timer as if its delay had elapsed.
func (s *fakeScheduler) fire() {
	s.mu.Lock()
	t := s.timers[len(s.timers)-1]
	s.mu.Unlock()
	t.fn()
}

type stubCommitter struct {
	mu    sync.Mutex
	calls []orders.CancelInput
	err   error
	block chan struct{}
}

func (c *stubCommitter) CancelVendorOrder(ctx context.Context, input orders.CancelInput) (*orders.CancelResult, error) {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, input)
	if c.err != nil {
		return nil, c.err
	}
	return &orders.CancelResult{VendorOrderID: input.VendorOrderID, OverallStatus: enums.OrderStatusShipped}, nil
}

func (c *stubCommitter) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

type recordingNotifier struct {
	mu      sync.Mutex
	tickets []Ticket
}

func (n *recordingNotifier) CancellationRolledBack(_ context.Context, ticket Ticket) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tickets = append(n.tickets, ticket)
}

type fixture struct {
	coordinator *Coordinator
	scheduler   *fakeScheduler
	committer   *stubCommitter
	notifier    *recordingNotifier
	now         *time.Time
	order       progress.Order
	customer    orders.Viewer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f := &fixture{
		scheduler: &fakeScheduler{},
		committer: &stubCommitter{},
		notifier:  &recordingNotifier{},
		now:       &now,
	}
	customerID := uuid.New()
	f.customer = orders.Viewer{UserID: customerID, Role: enums.ActorRoleCustomer}
	f.order = progress.Order{
		ID:         uuid.NewString(),
		CustomerID: customerID.String(),
		VendorOrders: []progress.VendorOrder{
			{ID: uuid.NewString(), VendorStoreID: uuid.NewString(), Status: enums.OrderStatusPending},
			{ID: uuid.NewString(), VendorStoreID: uuid.NewString(), Status: enums.OrderStatusShipped},
		},
	}

	coordinator, err := NewCoordinator(Params{
		Committer:   f.committer,
		Notifier:    f.notifier,
		GraceWindow: 5 * time.Second,
		Now:         func() time.Time { return *f.now },
		AfterFunc:   f.scheduler.afterFunc,
	})
	require.NoError(t, err)
	f.coordinator = coordinator
	return f
}

func (f *fixture) request(t *testing.T) Ticket {
	t.Helper()
	ticket, err := f.coordinator.Request(context.Background(), RequestInput{
		Order:         f.order,
		VendorOrderID: f.order.VendorOrders[0].ID,
		Actor:         f.customer,
		Reason:        " wrong size ",
	})
	require.NoError(t, err)
	return ticket
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	assert.Equal(t, code, typed.Code())
}

func TestRequestOpensPendingTicket(t *testing.T) {
	f := newFixture(t)
	ticket := f.request(t)

	assert.Equal(t, enums.CancellationStatePendingConfirmation, ticket.State)
	assert.Equal(t, f.now.Add(5*time.Second), ticket.Deadline)
	assert.Equal(t, enums.CancelledByCustomer, ticket.CancelledBy)
	assert.Equal(t, "wrong size", ticket.Reason)
	assert.True(t, ticket.UndoAvailable)
	require.Len(t, f.scheduler.timers, 1)
	assert.Equal(t, 5*time.Second, f.scheduler.timers[0].delay)
	assert.Zero(t, f.committer.callCount())
}

func TestOverlayShowsPendingCancellation(t *testing.T) {
	f := newFixture(t)
	f.request(t)

	overlaid := f.coordinator.Overlay(f.order)
	vo := overlaid.VendorOrders[0]
	assert.Equal(t, enums.OrderStatusCancelled, vo.Status)
	assert.True(t, vo.PendingCancellation)
	require.NotNil(t, vo.CancelledBy)
	assert.Equal(t, enums.CancelledByCustomer, *vo.CancelledBy)

	assert.Equal(t, enums.OrderStatusPending, f.order.VendorOrders[0].Status, "snapshot must stay untouched")

	display := progress.Project(overlaid)
	assert.Equal(t, enums.OrderStatusShipped, display.Overall.Status)
	assert.True(t, display.VendorOrders[0].CancellationPending)
	assert.False(t, display.VendorOrders[0].Cancellable)
}

func TestUndoWithinGraceWindow(t *testing.T) {
	f := newFixture(t)
	ticket := f.request(t)

	undone, err := f.coordinator.Undo(context.Background(), ticket.ID, f.customer.UserID)
	require.NoError(t, err)
	assert.Equal(t, enums.CancellationStateRolledBack, undone.State)
	assert.Equal(t, enums.RollbackReasonUndone, undone.RollbackReason)
	assert.False(t, undone.UndoAvailable)
	assert.True(t, f.scheduler.timers[0].stopped)

	f.scheduler.fire()
	assert.Zero(t, f.committer.callCount(), "stale timer must not commit")

	overlaid := f.coordinator.Overlay(f.order)
	assert.Equal(t, enums.OrderStatusPending, overlaid.VendorOrders[0].Status)
	assert.Empty(t, f.notifier.tickets)

	_, err = f.coordinator.Undo(context.Background(), ticket.ID, f.customer.UserID)
	requireCode(t, err, pkgerrors.CodeStateConflict)
}

func TestUndoRequiresRequester(t *testing.T) {
	f := newFixture(t)
	ticket := f.request(t)

	_, err := f.coordinator.Undo(context.Background(), ticket.ID, uuid.New())
	requireCode(t, err, pkgerrors.CodeNotFound)

	_, err = f.coordinator.Undo(context.Background(), uuid.New(), f.customer.UserID)
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestCommitConfirmsTicket(t *testing.T) {
	f := newFixture(t)
	ticket := f.request(t)

	f.scheduler.fire()

	require.Equal(t, 1, f.committer.callCount())
	call := f.committer.calls[0]
	assert.Equal(t, ticket.VendorOrderID, call.VendorOrderID)
	assert.Equal(t, ticket.RequestedAt, call.RequestedAt)
	assert.Equal(t, "wrong size", call.Reason)

	got, ok := f.coordinator.Get(ticket.ID)
	require.True(t, ok)
	assert.Equal(t, enums.CancellationStateConfirmed, got.State)
	require.NotNil(t, got.ResolvedAt)

	_, err := f.coordinator.Undo(context.Background(), ticket.ID, f.customer.UserID)
	requireCode(t, err, pkgerrors.CodeStateConflict)

	overlaid := f.coordinator.Overlay(f.order)
	assert.False(t, overlaid.VendorOrders[0].PendingCancellation)
}

func TestCommitFailureRollsBackAndNotifies(t *testing.T) {
	f := newFixture(t)
	f.committer.err = pkgerrors.New(pkgerrors.CodeStateConflict, "vendor order is confirmed and can no longer be cancelled")
	ticket := f.request(t)

	f.scheduler.fire()

	got, ok := f.coordinator.Get(ticket.ID)
	require.True(t, ok)
	assert.Equal(t, enums.CancellationStateRolledBack, got.State)
	assert.Equal(t, enums.RollbackReasonRejected, got.RollbackReason)
	assert.Equal(t, "vendor order is confirmed and can no longer be cancelled", got.Failure)

	require.Len(t, f.notifier.tickets, 1)
	assert.Equal(t, ticket.ID, f.notifier.tickets[0].ID)

	overlaid := f.coordinator.Overlay(f.order)
	assert.Equal(t, enums.OrderStatusPending, overlaid.VendorOrders[0].Status)
}

func TestRequestRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.coordinator.Request(ctx, RequestInput{Order: f.order, VendorOrderID: f.order.VendorOrders[1].ID, Actor: f.customer})
	requireCode(t, err, pkgerrors.CodeStateConflict)

	_, err = f.coordinator.Request(ctx, RequestInput{Order: f.order, VendorOrderID: uuid.NewString(), Actor: f.customer})
	requireCode(t, err, pkgerrors.CodeNotFound)

	admin := orders.Viewer{UserID: uuid.New(), Role: enums.ActorRoleAdmin}
	_, err = f.coordinator.Request(ctx, RequestInput{Order: f.order, VendorOrderID: f.order.VendorOrders[0].ID, Actor: admin})
	requireCode(t, err, pkgerrors.CodeForbidden)

	f.request(t)
	_, err = f.coordinator.Request(ctx, RequestInput{Order: f.order, VendorOrderID: f.order.VendorOrders[0].ID, Actor: f.customer})
	requireCode(t, err, pkgerrors.CodeConflict)
}

func TestPruneDropsResolvedTickets(t *testing.T) {
	f := newFixture(t)
	ticket := f.request(t)
	f.scheduler.fire()

	assert.Zero(t, f.coordinator.Prune(f.now.Add(-time.Minute)))
	assert.Equal(t, 1, f.coordinator.Prune(f.now.Add(time.Minute)))

	_, ok := f.coordinator.Get(ticket.ID)
	assert.False(t, ok)
}

func TestPruneKeepsPendingTickets(t *testing.T) {
	f := newFixture(t)
	ticket := f.request(t)

	assert.Zero(t, f.coordinator.Prune(f.now.Add(time.Hour)))
	_, ok := f.coordinator.Get(ticket.ID)
	assert.True(t, ok)
}

func TestCloseRollsBackPendingTickets(t *testing.T) {
	f := newFixture(t)
	ticket := f.request(t)

	require.NoError(t, f.coordinator.Close(context.Background()))

	got, ok := f.coordinator.Get(ticket.ID)
	require.True(t, ok)
	assert.Equal(t, enums.CancellationStateRolledBack, got.State)
	assert.Equal(t, enums.RollbackReasonShutdown, got.RollbackReason)
	require.Len(t, f.notifier.tickets, 1)

	f.scheduler.fire()
	assert.Zero(t, f.committer.callCount())

	_, err := f.coordinator.Request(context.Background(), RequestInput{
		Order:         f.order,
		VendorOrderID: f.order.VendorOrders[0].ID,
		Actor:         f.customer,
	})
	requireCode(t, err, pkgerrors.CodeUnavailable)
}

func TestCloseReportsCommitStillRunning(t *testing.T) {
	f := newFixture(t)
	f.committer.block = make(chan struct{})
	f.request(t)

	fired := make(chan struct{})
	go func() {
		f.scheduler.fire()
		close(fired)
	}()
	require.Eventually(t, func() bool {
		f.coordinator.mu.Lock()
		defer f.coordinator.mu.Unlock()
		for _, e := range f.coordinator.byVendor {
			if e.committing {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := f.coordinator.Close(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Contains(t, err.Error(), "commit still running")

	close(f.committer.block)
	<-fired
	assert.Equal(t, 1, f.committer.callCount())
}

func TestRepeatedCloseSharesOneDrainWaiter(t *testing.T) {
	f := newFixture(t)
	f.committer.block = make(chan struct{})
	f.request(t)

	fired := make(chan struct{})
	go func() {
		f.scheduler.fire()
		close(fired)
	}()
	require.Eventually(t, func() bool {
		f.coordinator.mu.Lock()
		defer f.coordinator.mu.Unlock()
		for _, e := range f.coordinator.byVendor {
			if e.committing {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		err := f.coordinator.Close(ctx)
		cancel()
		require.Error(t, err)
	}
	first := f.coordinator.drain()
	assert.Equal(t, first, f.coordinator.drain())

	close(f.committer.block)
	<-fired
	select {
	case <-first:
	case <-time.After(time.Second):
		t.Fatal("drain waiter did not finish after the commit returned")
	}
	require.NoError(t, f.coordinator.Close(context.Background()))
}
