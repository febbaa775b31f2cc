package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loudlane/cabinet-backend/api/controllers"
	"github.com/loudlane/cabinet-backend/api/middleware"
	"github.com/loudlane/cabinet-backend/internal/backend"
	"github.com/loudlane/cabinet-backend/internal/fanout"
	"github.com/loudlane/cabinet-backend/pkg/config"
	"github.com/loudlane/cabinet-backend/pkg/db"
	"github.com/loudlane/cabinet-backend/pkg/logger"
	"github.com/loudlane/cabinet-backend/pkg/redis"
)

// NewRouter assembles the portal's HTTP surface: health and metrics in the
// open, the ticketing API behind bearer auth.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	data backend.DataService,
	reader controllers.SyncReader,
	mail *fanout.Fanout,
	registry *prometheus.Registry,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/tickets", func(r chi.Router) {
			r.Get("/", controllers.ListTickets(reader, logg))
			r.Post("/", controllers.CreateTicket(data, reader, mail, logg))
			r.Route("/{ticketID}", func(r chi.Router) {
				r.Get("/", controllers.GetTicket(reader, logg))
				r.Patch("/", controllers.UpdateTicket(data, reader, mail, logg))
				r.Get("/messages", controllers.ListMessages(reader, logg))
				r.Post("/messages", controllers.CreateMessage(data, reader, mail, logg))
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(reader, logg))
			r.Post("/read", controllers.MarkNotificationsRead(reader, logg))
		})
	})

	return r
}
