package cancellations

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-order-progress/api/middleware"
	"github.com/angelmondragon/packfinderz-order-progress/internal/cancellation"
	internalorders "github.com/angelmondragon/packfinderz-order-progress/internal/orders"
	"github.com/angelmondragon/packfinderz-order-progress/internal/progress"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-order-progress/pkg/errors"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/logger"
)

type stubSnapshotter struct {
	order *progress.Order
	err   error
}

func (s stubSnapshotter) Snapshot(context.Context, string, internalorders.Viewer) (*progress.Order, error) {
	return s.order, s.err
}

type stubCoordinator struct {
	requested []cancellation.RequestInput
	requestFn func(cancellation.RequestInput) (cancellation.Ticket, error)
	tickets   map[uuid.UUID]cancellation.Ticket
	undoErr   error
}

func (s *stubCoordinator) Request(_ context.Context, input cancellation.RequestInput) (cancellation.Ticket, error) {
	s.requested = append(s.requested, input)
	return s.requestFn(input)
}

func (s *stubCoordinator) Undo(_ context.Context, ticketID, requester uuid.UUID) (cancellation.Ticket, error) {
	if s.undoErr != nil {
		return cancellation.Ticket{}, s.undoErr
	}
	ticket := s.tickets[ticketID]
	ticket.State = enums.CancellationStateRolledBack
	ticket.RollbackReason = enums.RollbackReasonUndone
	return ticket, nil
}

func (s *stubCoordinator) Get(ticketID uuid.UUID) (cancellation.Ticket, bool) {
	ticket, ok := s.tickets[ticketID]
	return ticket, ok
}

var requester = internalorders.Viewer{UserID: uuid.MustParse("00000000-0000-0000-0000-0000000000c1"), Role: enums.ActorRoleCustomer}

func route(viewer internalorders.Viewer, method, pattern string, handler http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middleware.WithViewer(req.Context(), viewer)))
		})
	})
	r.Method(method, pattern, handler)
	return r
}

func pendingOrder() *progress.Order {
	return &progress.Order{
		ID:         "11111111-1111-1111-1111-111111111111",
		CustomerID: requester.UserID.String(),
		VendorOrders: []progress.VendorOrder{
			{ID: "22222222-2222-2222-2222-222222222222", Status: enums.OrderStatusPending},
		},
	}
}

const cancelPattern = "/orders/{orderId}/vendor-orders/{vendorOrderId}/cancel"

func TestRequestAnswersAccepted(t *testing.T) {
	ticketID := uuid.New()
	coordinator := &stubCoordinator{requestFn: func(input cancellation.RequestInput) (cancellation.Ticket, error) {
		return cancellation.Ticket{
			ID:            ticketID,
			State:         enums.CancellationStatePendingConfirmation,
			Deadline:      time.Date(2026, 3, 1, 9, 0, 5, 0, time.UTC),
			UndoAvailable: true,
		}, nil
	}}
	handler := route(requester, http.MethodPost, cancelPattern, Request(stubSnapshotter{order: pendingOrder()}, coordinator, logger.Nop()))

	req := httptest.NewRequest(http.MethodPost, "/orders/11111111-1111-1111-1111-111111111111/vendor-orders/22222222-2222-2222-2222-222222222222/cancel", strings.NewReader(`{"reason":"  ordered twice "}`))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	require.Equal(t, http.StatusAccepted, resp.Code)
	require.Len(t, coordinator.requested, 1)
	assert.Equal(t, "ordered twice", coordinator.requested[0].Reason)
	assert.Equal(t, "22222222-2222-2222-2222-222222222222", coordinator.requested[0].VendorOrderID)
	assert.Equal(t, requester.UserID, coordinator.requested[0].Actor.UserID)

	var envelope struct {
		Data cancellation.Ticket `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Equal(t, ticketID, envelope.Data.ID)
	assert.True(t, envelope.Data.UndoAvailable)
}

func TestRequestRejectsLongReason(t *testing.T) {
	coordinator := &stubCoordinator{}
	handler := route(requester, http.MethodPost, cancelPattern, Request(stubSnapshotter{order: pendingOrder()}, coordinator, logger.Nop()))

	body := `{"reason":"` + strings.Repeat("x", maxReasonLength+1) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/orders/o/vendor-orders/v/cancel", strings.NewReader(body))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Empty(t, coordinator.requested)
}

func TestRequestMapsCoordinatorErrors(t *testing.T) {
	coordinator := &stubCoordinator{requestFn: func(cancellation.RequestInput) (cancellation.Ticket, error) {
		return cancellation.Ticket{}, pkgerrors.New(pkgerrors.CodeStateConflict, "vendor order is shipped and can no longer be cancelled")
	}}
	handler := route(requester, http.MethodPost, cancelPattern, Request(stubSnapshotter{order: pendingOrder()}, coordinator, logger.Nop()))

	req := httptest.NewRequest(http.MethodPost, "/orders/o/vendor-orders/v/cancel", http.NoBody)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}

func TestGetHidesOtherUsersTickets(t *testing.T) {
	ticketID := uuid.New()
	coordinator := &stubCoordinator{tickets: map[uuid.UUID]cancellation.Ticket{
		ticketID: {ID: ticketID, RequestedBy: requester.UserID, State: enums.CancellationStateConfirmed},
	}}

	resp := httptest.NewRecorder()
	route(requester, http.MethodGet, "/cancellations/{ticketId}", Get(coordinator, logger.Nop())).
		ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/cancellations/"+ticketID.String(), nil))
	assert.Equal(t, http.StatusOK, resp.Code)

	stranger := internalorders.Viewer{UserID: uuid.New(), Role: enums.ActorRoleCustomer}
	resp = httptest.NewRecorder()
	route(stranger, http.MethodGet, "/cancellations/{ticketId}", Get(coordinator, logger.Nop())).
		ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/cancellations/"+ticketID.String(), nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = httptest.NewRecorder()
	route(requester, http.MethodGet, "/cancellations/{ticketId}", Get(coordinator, logger.Nop())).
		ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/cancellations/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestUndo(t *testing.T) {
	ticketID := uuid.New()
	coordinator := &stubCoordinator{tickets: map[uuid.UUID]cancellation.Ticket{
		ticketID: {ID: ticketID, RequestedBy: requester.UserID, State: enums.CancellationStatePendingConfirmation},
	}}

	resp := httptest.NewRecorder()
	route(requester, http.MethodPost, "/cancellations/{ticketId}/undo", Undo(coordinator, logger.Nop())).
		ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/cancellations/"+ticketID.String()+"/undo", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var envelope struct {
		Data cancellation.Ticket `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Equal(t, enums.CancellationStateRolledBack, envelope.Data.State)
	assert.Equal(t, enums.RollbackReasonUndone, envelope.Data.RollbackReason)

	coordinator.undoErr = pkgerrors.New(pkgerrors.CodeStateConflict, "cancellation already confirmed")
	resp = httptest.NewRecorder()
	route(requester, http.MethodPost, "/cancellations/{ticketId}/undo", Undo(coordinator, logger.Nop())).
		ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/cancellations/"+ticketID.String()+"/undo", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}
