package cancellation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/packfinderz-order-progress/pkg/logger"
)

// Notifier is told about every ticket the system rolled back on its own,
// so the requester can be shown an error.
type Notifier interface {
	CancellationRolledBack(ctx context.Context, ticket Ticket)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ticket Ticket)

func (f NotifierFunc) CancellationRolledBack(ctx context.Context, ticket Ticket) {
	f(ctx, ticket)
}

// LogNotifier writes rollbacks to the service log.
type LogNotifier struct {
	Logger *logger.Logger
}

func (n LogNotifier) CancellationRolledBack(ctx context.Context, ticket Ticket) {
	if n.Logger == nil {
		return
	}
	ctx = n.Logger.WithFields(ctx, map[string]any{
		"ticket_id":       ticket.ID.String(),
		"vendor_order_id": ticket.VendorOrderID.String(),
		"rollback_reason": ticket.RollbackReason,
		"failure":         ticket.Failure,
	})
	n.Logger.Warn(ctx, "cancellation rolled back")
}

type publisher interface {
	Publish(ctx context.Context, channel string, message any) (int64, error)
}

// PublishNotifier fans rollbacks out on a Redis channel so every API replica
// can push the error to the requester.
type PublishNotifier struct {
	Publisher publisher
	Channel   string
	Logger    *logger.Logger
}

func (n PublishNotifier) CancellationRolledBack(ctx context.Context, ticket Ticket) {
	if err := n.publish(ctx, ticket); err != nil && n.Logger != nil {
		n.Logger.Error(n.Logger.WithTicketID(ctx, ticket.ID.String()), "failed to publish cancellation rollback", err)
	}
}

func (n PublishNotifier) publish(ctx context.Context, ticket Ticket) error {
	if n.Publisher == nil {
		return fmt.Errorf("publisher required")
	}
	payload, err := json.Marshal(ticket)
	if err != nil {
		return err
	}
	_, err = n.Publisher.Publish(ctx, n.Channel, payload)
	return err
}

// Notifiers calls each notifier in turn.
type Notifiers []Notifier

func (ns Notifiers) CancellationRolledBack(ctx context.Context, ticket Ticket) {
	for _, n := range ns {
		if n != nil {
			n.CancellationRolledBack(ctx, ticket)
		}
	}
}
