package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/cinema-reservations/internal/domain"
	"github.com/robertarktes/cinema-reservations/internal/idempotency"
	"github.com/robertarktes/cinema-reservations/internal/observability"
)

type RouterDeps struct {
	Auth    *Authenticator
	Limiter limiter
	Idemp   *idempotency.Idempotency
	Sweeper sweeper
}

func SetupRouter(h *Handlers, logger observability.Logger, deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	// Public reads behind the seat map and menu.
	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(deps.Limiter))
		r.Use(SweepMiddleware(deps.Sweeper))
		r.Get("/v1/showtimes/{id}/seats", h.SeatMap)
		r.Get("/v1/cinemas/{id}/stock", h.StockLevels)
		r.Get("/v1/showtimes/{id}/events", h.ShowtimeEvents)
		r.Get("/v1/cinemas/{id}/events", h.CinemaEvents)
	})

	r.With(
		JWTMiddleware(deps.Auth),
		RequireRole(domain.RolePaymentProvider),
		IdempotencyMiddleware(deps.Idemp),
	).Post("/v1/payments/callback", h.PaymentCallback)

	r.Group(func(r chi.Router) {
		r.Use(JWTMiddleware(deps.Auth))
		r.Use(RequireRole(domain.RoleCustomer, domain.RoleStaff))
		r.Use(RateLimitMiddleware(deps.Limiter))
		r.Use(SweepMiddleware(deps.Sweeper))

		r.Get("/v1/me/events", h.AccountEvents)

		r.Route("/v1/reservations", func(r chi.Router) {
			r.Post("/", h.CreateReservation)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetReservation)
				r.Get("/events", h.ReservationEvents)
				r.Put("/seats/{seatID}", h.SelectSeat)
				r.Delete("/seats/{seatID}", h.ReleaseSeat)
				r.Post("/items", h.AdjustCart)
				r.With(IdempotencyMiddleware(deps.Idemp)).Post("/checkout", h.Checkout)
				r.Post("/cancel", h.CancelReservation)
				r.Post("/complete", h.CompleteOrder)
			})
		})

		r.With(IdempotencyMiddleware(deps.Idemp)).Post("/v1/payments/{id}/wallet", h.PayWithWallet)
	})

	return r
}
