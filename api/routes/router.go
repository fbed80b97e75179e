package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/packfinderz-order-progress/api/controllers"
	cancellationcontrollers "github.com/angelmondragon/packfinderz-order-progress/api/controllers/cancellations"
	ordercontrollers "github.com/angelmondragon/packfinderz-order-progress/api/controllers/orders"
	"github.com/angelmondragon/packfinderz-order-progress/api/middleware"
	"github.com/angelmondragon/packfinderz-order-progress/internal/orders"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/config"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/logger"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/metrics"
)

// CancellationCoordinator is what the API needs from the cancellation flow.
type CancellationCoordinator interface {
	cancellationcontrollers.Coordinator
	ordercontrollers.Overlayer
}

// RouterParams wires the API's collaborators.
type RouterParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            controllers.Pinger
	Redis         controllers.Pinger
	Orders        orders.Service
	Cancellations CancellationCoordinator
	HTTPMetrics   *metrics.HTTPMetrics
	Gatherer      prometheus.Gatherer
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(params.HTTPMetrics),
		middleware.CORS(cfg.CORS),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.DB, params.Redis))
	})

	gatherer := params.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(params.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(params.Orders, params.Cancellations, logg))
			r.Get("/{orderId}/timeline", ordercontrollers.Timeline(params.Orders, logg))
			r.Post("/{orderId}/vendor-orders/{vendorOrderId}/cancel", cancellationcontrollers.Request(params.Orders, params.Cancellations, logg))
		})

		r.Route("/cancellations", func(r chi.Router) {
			r.Get("/{ticketId}", cancellationcontrollers.Get(params.Cancellations, logg))
			r.Post("/{ticketId}/undo", cancellationcontrollers.Undo(params.Cancellations, logg))
		})
	})

	return r
}
