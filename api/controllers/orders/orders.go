package orders

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/packfinderz-order-progress/api/middleware"
	"github.com/angelmondragon/packfinderz-order-progress/api/responses"
	"github.com/angelmondragon/packfinderz-order-progress/api/validators"
	internalorders "github.com/angelmondragon/packfinderz-order-progress/internal/orders"
	"github.com/angelmondragon/packfinderz-order-progress/internal/progress"
	pkgerrors "github.com/angelmondragon/packfinderz-order-progress/pkg/errors"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/logger"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/pagination"
)

// Overlayer applies in-flight cancellations to a stored snapshot.
type Overlayer interface {
	Overlay(order progress.Order) progress.Order
}

type timelineResponse struct {
	OrderID  string            `json:"order_id"`
	Entity   string            `json:"entity"`
	Timeline progress.Timeline `json:"timeline"`
}

// List returns the viewer's orders, newest first.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		viewer, err := middleware.RequireViewer(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		var filters internalorders.ListFilters
		if filters.DateFrom, err = validators.ParseQueryTime(r, "date_from", false); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filters.DateTo, err = validators.ParseQueryTime(r, "date_to", true); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.List(r.Context(), viewer, params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// Detail returns the progress display of one order, with cancellations that
// are still inside their undo window already applied.
func Detail(svc internalorders.Service, overlay Overlayer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		order, ok := loadOrder(w, r, svc, logg)
		if !ok {
			return
		}
		if overlay != nil {
			order = overlay.Overlay(order)
		}
		responses.WriteSuccess(w, progress.Project(order))
	}
}

// Timeline returns the effective timeline of the order, or of one of its
// vendor orders when ?entity= names it.
func Timeline(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		order, ok := loadOrder(w, r, svc, logg)
		if !ok {
			return
		}

		entityRef := strings.TrimSpace(r.URL.Query().Get("entity"))
		if entityRef == "" || entityRef == order.ID || entityRef == order.UNID {
			responses.WriteSuccess(w, timelineResponse{
				OrderID:  order.ID,
				Entity:   order.Key(),
				Timeline: progress.ExtractTimeline(order, nil),
			})
			return
		}

		vo, found := order.FindVendorOrder(entityRef)
		if !found {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "vendor order not found"))
			return
		}
		entity := vo.Entity()
		responses.WriteSuccess(w, timelineResponse{
			OrderID:  order.ID,
			Entity:   entity.Key,
			Timeline: progress.ExtractTimeline(order, &entity),
		})
	}
}

func loadOrder(w http.ResponseWriter, r *http.Request, svc internalorders.Service, logg *logger.Logger) (progress.Order, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
		return progress.Order{}, false
	}
	viewer, err := middleware.RequireViewer(r.Context())
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return progress.Order{}, false
	}
	ref := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if ref == "" {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order id is required"))
		return progress.Order{}, false
	}

	ctx := r.Context()
	if logg != nil {
		ctx = logg.WithOrderID(ctx, ref)
	}
	order, err := svc.Snapshot(ctx, ref, viewer)
	if err != nil {
		responses.WriteError(ctx, logg, w, err)
		return progress.Order{}, false
	}
	return *order, true
}
