package cancellations

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-order-progress/api/middleware"
	"github.com/angelmondragon/packfinderz-order-progress/api/responses"
	"github.com/angelmondragon/packfinderz-order-progress/api/validators"
	"github.com/angelmondragon/packfinderz-order-progress/internal/cancellation"
	internalorders "github.com/angelmondragon/packfinderz-order-progress/internal/orders"
	"github.com/angelmondragon/packfinderz-order-progress/internal/progress"
	pkgerrors "github.com/angelmondragon/packfinderz-order-progress/pkg/errors"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/logger"
)

const maxReasonLength = 500

// Coordinator is the part of the cancellation coordinator the API drives.
type Coordinator interface {
	Request(ctx context.Context, input cancellation.RequestInput) (cancellation.Ticket, error)
	Undo(ctx context.Context, ticketID, requester uuid.UUID) (cancellation.Ticket, error)
	Get(ticketID uuid.UUID) (cancellation.Ticket, bool)
}

type snapshotter interface {
	Snapshot(ctx context.Context, ref string, viewer internalorders.Viewer) (*progress.Order, error)
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// Request starts an optimistic cancellation and answers 202 with the ticket.
// The vendor order reads as cancelled right away; the write lands once the
// undo window closes.
func Request(orders snapshotter, coordinator Coordinator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if orders == nil || coordinator == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cancellation service unavailable"))
			return
		}
		viewer, err := middleware.RequireViewer(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderRef := strings.TrimSpace(chi.URLParam(r, "orderId"))
		vendorOrderRef := strings.TrimSpace(chi.URLParam(r, "vendorOrderId"))
		if orderRef == "" || vendorOrderRef == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order and vendor order ids are required"))
			return
		}

		var payload cancelRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, orderRef)
		}
		order, err := orders.Snapshot(ctx, orderRef, viewer)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		ticket, err := coordinator.Request(ctx, cancellation.RequestInput{
			Order:         *order,
			VendorOrderID: vendorOrderRef,
			Actor:         viewer,
			Reason:        validators.SanitizeString(payload.Reason, maxReasonLength),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, ticket)
	}
}

// Get returns a ticket to the user who requested it.
func Get(coordinator Coordinator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer, ticketID, ok := ticketRequest(w, r, coordinator, logg)
		if !ok {
			return
		}
		ticket, found := coordinator.Get(ticketID)
		if !found || ticket.RequestedBy != viewer.UserID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "cancellation not found"))
			return
		}
		responses.WriteSuccess(w, ticket)
	}
}

// Undo rolls a ticket back while its grace window is still open.
func Undo(coordinator Coordinator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer, ticketID, ok := ticketRequest(w, r, coordinator, logg)
		if !ok {
			return
		}
		ticket, err := coordinator.Undo(r.Context(), ticketID, viewer.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ticket)
	}
}

func ticketRequest(w http.ResponseWriter, r *http.Request, coordinator Coordinator, logg *logger.Logger) (internalorders.Viewer, uuid.UUID, bool) {
	if coordinator == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cancellation service unavailable"))
		return internalorders.Viewer{}, uuid.Nil, false
	}
	viewer, err := middleware.RequireViewer(r.Context())
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return internalorders.Viewer{}, uuid.Nil, false
	}
	ticketID, err := validators.PathUUID(r, "ticketId")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return internalorders.Viewer{}, uuid.Nil, false
	}
	return viewer, ticketID, true
}
