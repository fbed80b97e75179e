package enums

// CancellationState tracks an optimistic cancellation request.
type CancellationState string

const (
	CancellationStateIdle                CancellationState = "idle"
	CancellationStatePendingConfirmation CancellationState = "pending_confirmation"
	CancellationStateConfirmed           CancellationState = "confirmed"
	CancellationStateRolledBack          CancellationState = "rolled_back"
)

// IsTerminal reports whether the request has been resolved.
func (s CancellationState) IsTerminal() bool {
	return s == CancellationStateConfirmed || s == CancellationStateRolledBack
}

// RollbackReason explains why a cancellation was rolled back.
type RollbackReason string

const (
	RollbackReasonUndone   RollbackReason = "undone"
	RollbackReasonRejected RollbackReason = "rejected"
	RollbackReasonShutdown RollbackReason = "shutdown"
)
