package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouterConfig struct {
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
}

func NewRouter(orders *OrdersHandler, auth *Authenticator, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.RequestSize(cfg.MaxRequestBodySize))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/order", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin)
			r.Post("/list", orders.ListOrders)
			r.Post("/status", orders.UpdateStatus)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireBuyer)
			r.Post("/place", orders.PlaceOrder)
			r.Post("/stripe", orders.PlaceStripeOrder)
			r.Post("/verifyStripe", orders.VerifyStripe)
			r.Post("/userorders", orders.UserOrders)
		})
	})

	return r
}
