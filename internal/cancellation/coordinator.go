// Package cancellation runs the optimistic cancel flow: a vendor order shows as
// cancelled as soon as it is requested, and the authoritative write happens
// only once the grace window closes without an undo.
//
//	idle -> pending_confirmation(deadline) -> confirmed
//	                                       -> rolled_back(undone|rejected|shutdown)
package cancellation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/packfinderz-order-progress/internal/orders"
	"github.com/angelmondragon/packfinderz-order-progress/internal/progress"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-order-progress/pkg/errors"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/logger"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/metrics"
)

const (
	defaultGraceWindow   = 5 * time.Second
	defaultCommitTimeout = 10 * time.Second
)

// Committer writes the cancellation to the orders store.
type Committer interface {
	CancelVendorOrder(ctx context.Context, input orders.CancelInput) (*orders.CancelResult, error)
}

// Stopper cancels a scheduled commit; *time.Timer satisfies it.
type Stopper interface {
	Stop() bool
}

// AfterFunc schedules f after d. The default wraps time.AfterFunc.
type AfterFunc func(d time.Duration, f func()) Stopper

// RequestInput asks for a vendor order to be cancelled. Order is the snapshot
// the requester is looking at.
type RequestInput struct {
	Order         progress.Order
	VendorOrderID string
	Actor         orders.Viewer
	Reason        string
}

// Params configure the coordinator.
type Params struct {
	Committer     Committer
	Notifier      Notifier
	Logger        *logger.Logger
	Metrics       *metrics.CancellationMetrics
	GraceWindow   time.Duration
	CommitTimeout time.Duration
	Now           func() time.Time
	AfterFunc     AfterFunc
}

// Coordinator owns every ticket of this process.
type Coordinator struct {
	committer     Committer
	notifier      Notifier
	logg          *logger.Logger
	metrics       *metrics.CancellationMetrics
	grace         time.Duration
	commitTimeout time.Duration
	now           func() time.Time
	afterFunc     AfterFunc

	mu        sync.Mutex
	tickets   map[uuid.UUID]*entry
	byVendor  map[uuid.UUID]*entry
	closed    bool
	inflight  sync.WaitGroup
	closeOnce sync.Once

	// drained closes once every in-flight commit has returned; one waiter serves all Close calls.
	drainOnce sync.Once
	drained   chan struct{}
}

// NewCoordinator builds a coordinator.
func NewCoordinator(params Params) (*Coordinator, error) {
	if params.Committer == nil {
		return nil, fmt.Errorf("committer required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.GraceWindow <= 0 {
		params.GraceWindow = defaultGraceWindow
	}
	if params.CommitTimeout <= 0 {
		params.CommitTimeout = defaultCommitTimeout
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	if params.AfterFunc == nil {
		params.AfterFunc = func(d time.Duration, f func()) Stopper {
			return time.AfterFunc(d, f)
		}
	}
	return &Coordinator{
		committer:     params.Committer,
		notifier:      params.Notifier,
		logg:          params.Logger,
		metrics:       params.Metrics,
		grace:         params.GraceWindow,
		commitTimeout: params.CommitTimeout,
		now:           params.Now,
		afterFunc:     params.AfterFunc,
		tickets:       make(map[uuid.UUID]*entry),
		byVendor:      make(map[uuid.UUID]*entry),
	}, nil
}

// Request opens a ticket in pending_confirmation and schedules its commit at
// the end of the grace window.
func (c *Coordinator) Request(ctx context.Context, input RequestInput) (Ticket, error) {
	orderID, err := uuid.Parse(input.Order.ID)
	if err != nil {
		return Ticket{}, pkgerrors.New(pkgerrors.CodeValidation, "order id must be a uuid")
	}
	target, ok := input.Order.FindVendorOrder(input.VendorOrderID)
	if !ok {
		return Ticket{}, pkgerrors.New(pkgerrors.CodeNotFound, "vendor order not found")
	}
	vendorOrderID, err := uuid.Parse(target.ID)
	if err != nil {
		return Ticket{}, pkgerrors.New(pkgerrors.CodeValidation, "vendor order id must be a uuid")
	}
	party, err := input.Actor.CheckCancel(input.Order, target)
	if err != nil {
		return Ticket{}, err
	}
	if status := enums.NormalizeOrderStatus(string(target.Status)); status != enums.OrderStatusPending {
		return Ticket{}, pkgerrors.Newf(pkgerrors.CodeStateConflict, "vendor order is %s and can no longer be cancelled", status)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Ticket{}, pkgerrors.New(pkgerrors.CodeUnavailable, "cancellations are not accepted while shutting down")
	}
	if existing, ok := c.byVendor[vendorOrderID]; ok {
		c.mu.Unlock()
		return Ticket{}, pkgerrors.New(pkgerrors.CodeConflict, "cancellation already pending").
			WithDetails(map[string]any{"ticket_id": existing.ticket.ID})
	}

	now := c.now().UTC()
	e := &entry{
		ticket: Ticket{
			ID:            uuid.New(),
			OrderID:       orderID,
			VendorOrderID: vendorOrderID,
			RequestedBy:   input.Actor.UserID,
			CancelledBy:   party,
			Reason:        strings.TrimSpace(input.Reason),
			State:         enums.CancellationStatePendingConfirmation,
			RequestedAt:   now,
			Deadline:      now.Add(c.grace),
		},
		orderKey: input.Order.ID,
	}
	actor := input.Actor
	ticketID := e.ticket.ID
	c.tickets[ticketID] = e
	c.byVendor[vendorOrderID] = e
	e.timer = c.afterFunc(c.grace, func() { c.commit(ticketID, actor) })
	pending := len(c.byVendor)
	view := e.view()
	c.mu.Unlock()

	c.metrics.IncRequested()
	c.metrics.SetPending(pending)
	c.logg.Info(c.ticketContext(ctx, view), "cancellation pending confirmation")
	return view, nil
}

// Undo rolls back a ticket that is still inside its grace window.
func (c *Coordinator) Undo(ctx context.Context, ticketID, requester uuid.UUID) (Ticket, error) {
	c.mu.Lock()
	e, ok := c.tickets[ticketID]
	if !ok || e.ticket.RequestedBy != requester {
		c.mu.Unlock()
		return Ticket{}, pkgerrors.New(pkgerrors.CodeNotFound, "cancellation not found")
	}
	if e.ticket.State != enums.CancellationStatePendingConfirmation {
		c.mu.Unlock()
		return Ticket{}, pkgerrors.Newf(pkgerrors.CodeStateConflict, "cancellation already %s", e.ticket.State)
	}
	if e.committing {
		c.mu.Unlock()
		return Ticket{}, pkgerrors.New(pkgerrors.CodeStateConflict, "cancellation is being committed")
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	e.resolve(enums.CancellationStateRolledBack, enums.RollbackReasonUndone, c.now().UTC())
	delete(c.byVendor, e.ticket.VendorOrderID)
	pending := len(c.byVendor)
	view := e.view()
	c.mu.Unlock()

	c.metrics.RecordOutcome(string(view.State), string(view.RollbackReason))
	c.metrics.SetPending(pending)
	c.logg.Info(c.ticketContext(ctx, view), "cancellation undone")
	return view, nil
}

// Get returns the current view of a ticket.
func (c *Coordinator) Get(ticketID uuid.UUID) (Ticket, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.tickets[ticketID]
	if !ok {
		return Ticket{}, false
	}
	return e.view(), true
}

// Overlay returns a copy of order with every pending cancellation applied, so
// the requester sees the vendor order as cancelled during the grace window.
func (c *Coordinator) Overlay(order progress.Order) progress.Order {
	out := order.Clone()

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.byVendor) == 0 {
		return out
	}
	for i := range out.VendorOrders {
		id, err := uuid.Parse(out.VendorOrders[i].ID)
		if err != nil {
			continue
		}
		e, ok := c.byVendor[id]
		if !ok || e.orderKey != order.ID {
			continue
		}
		party := e.ticket.CancelledBy
		requestedAt := e.ticket.RequestedAt
		out.VendorOrders[i].Status = enums.OrderStatusCancelled
		out.VendorOrders[i].CancelledBy = &party
		out.VendorOrders[i].UpdatedAt = &requestedAt
		out.VendorOrders[i].PendingCancellation = true
	}
	return out
}

// Prune forgets resolved tickets that were resolved before cutoff.
func (c *Coordinator) Prune(cutoff time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for id, e := range c.tickets {
		if e.ticket.ResolvedAt != nil && e.ticket.ResolvedAt.Before(cutoff) {
			delete(c.tickets, id)
			removed++
		}
	}
	return removed
}

// Close stops accepting requests, rolls back every ticket still waiting out
// its grace window and waits for commits already running.
func (c *Coordinator) Close(ctx context.Context) error {
	var rolledBack []Ticket
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		now := c.now().UTC()
		for vendorOrderID, e := range c.byVendor {
			if e.committing {
				continue
			}
			if e.timer != nil {
				e.timer.Stop()
			}
			e.resolve(enums.CancellationStateRolledBack, enums.RollbackReasonShutdown, now)
			delete(c.byVendor, vendorOrderID)
			rolledBack = append(rolledBack, e.view())
		}
		pending := len(c.byVendor)
		c.mu.Unlock()
		c.metrics.SetPending(pending)
	})

	for _, ticket := range rolledBack {
		c.metrics.RecordOutcome(string(ticket.State), string(ticket.RollbackReason))
		c.notify(ctx, ticket)
	}

	select {
	case <-c.drain():
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		defer c.mu.Unlock()
		var err error
		for _, e := range c.byVendor {
			if e.committing {
				err = multierr.Append(err, fmt.Errorf("ticket %s: commit still running", e.ticket.ID))
			}
		}
		return multierr.Append(err, ctx.Err())
	}
}

func (c *Coordinator) drain() <-chan struct{} {
	c.drainOnce.Do(func() {
		c.drained = make(chan struct{})
		go func() {
			c.inflight.Wait()
			close(c.drained)
		}()
	})
	return c.drained
}

// commit runs when the grace window of ticketID closes.
func (c *Coordinator) commit(ticketID uuid.UUID, actor orders.Viewer) {
	c.mu.Lock()
	e, ok := c.tickets[ticketID]
	if !ok || e.ticket.State != enums.CancellationStatePendingConfirmation || e.committing {
		c.mu.Unlock()
		return
	}
	e.committing = true
	c.inflight.Add(1)
	input := orders.CancelInput{
		OrderID:       e.ticket.OrderID,
		VendorOrderID: e.ticket.VendorOrderID,
		Actor:         actor,
		Reason:        e.ticket.Reason,
		RequestedAt:   e.ticket.RequestedAt,
	}
	c.mu.Unlock()
	defer c.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), c.commitTimeout)
	defer cancel()

	start := c.now()
	_, err := c.committer.CancelVendorOrder(ctx, input)
	c.metrics.ObserveCommit(c.now().Sub(start), err)

	c.mu.Lock()
	e.committing = false
	if err != nil {
		e.resolve(enums.CancellationStateRolledBack, enums.RollbackReasonRejected, c.now().UTC())
		e.ticket.Failure = failureMessage(err)
	} else {
		e.resolve(enums.CancellationStateConfirmed, "", c.now().UTC())
	}
	delete(c.byVendor, e.ticket.VendorOrderID)
	pending := len(c.byVendor)
	view := e.view()
	c.mu.Unlock()

	c.metrics.RecordOutcome(string(view.State), string(view.RollbackReason))
	c.metrics.SetPending(pending)

	logCtx := c.ticketContext(context.Background(), view)
	if err != nil {
		c.logg.Error(logCtx, "cancellation commit failed; rolled back", err)
		c.notify(logCtx, view)
		return
	}
	c.logg.Info(logCtx, "cancellation confirmed")
}

func (c *Coordinator) notify(ctx context.Context, ticket Ticket) {
	if c.notifier == nil {
		return
	}
	c.notifier.CancellationRolledBack(ctx, ticket)
}

func (c *Coordinator) ticketContext(ctx context.Context, ticket Ticket) context.Context {
	ctx = c.logg.WithTicketID(ctx, ticket.ID.String())
	return c.logg.WithFields(ctx, map[string]any{
		"order_id":        ticket.OrderID.String(),
		"vendor_order_id": ticket.VendorOrderID.String(),
		"state":           ticket.State,
	})
}

// failureMessage prefers the message of a typed error over its cause chain.
func failureMessage(err error) string {
	if typed := pkgerrors.As(err); typed != nil {
		return typed.Message()
	}
	return err.Error()
}
