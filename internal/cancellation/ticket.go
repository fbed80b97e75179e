package cancellation

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-order-progress/pkg/enums"
)

// Ticket is the record of one optimistic cancellation request.
type Ticket struct {
	ID             uuid.UUID               `json:"ticket_id"`
	OrderID        uuid.UUID               `json:"order_id"`
	VendorOrderID  uuid.UUID               `json:"vendor_order_id"`
	RequestedBy    uuid.UUID               `json:"requested_by"`
	CancelledBy    enums.CancelledBy       `json:"cancelled_by"`
	Reason         string                  `json:"reason,omitempty"`
	State          enums.CancellationState `json:"state"`
	RollbackReason enums.RollbackReason    `json:"rollback_reason,omitempty"`
	Failure        string                  `json:"failure,omitempty"`
	RequestedAt    time.Time               `json:"requested_at"`
	Deadline       time.Time               `json:"deadline"`
	ResolvedAt     *time.Time              `json:"resolved_at,omitempty"`
	UndoAvailable  bool                    `json:"undo_available"`
}

// entry is the coordinator-owned mutable state behind a Ticket.
type entry struct {
	ticket     Ticket
	timer      Stopper
	committing bool
	orderKey   string
}

func (e *entry) view() Ticket {
	out := e.ticket
	out.UndoAvailable = e.ticket.State == enums.CancellationStatePendingConfirmation && !e.committing
	if e.ticket.ResolvedAt != nil {
		resolved := *e.ticket.ResolvedAt
		out.ResolvedAt = &resolved
	}
	return out
}

func (e *entry) resolve(state enums.CancellationState, reason enums.RollbackReason, at time.Time) {
	e.ticket.State = state
	e.ticket.RollbackReason = reason
	e.ticket.ResolvedAt = &at
	e.timer = nil
}
