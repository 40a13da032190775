package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/bingsu-order-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware магазина бинсу.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(chimw.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Route("/user", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/logout", h.Logout)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.Middleware)

				r.Get("/profile", h.Profile)
				r.Get("/orders", h.UserOrders)
			})
		})

		r.Post("/menu-codes/validate", h.ValidateMenuCode)
		r.Get("/stock/availability", h.StockAvailability)

		r.Route("/orders", func(r chi.Router) {
			r.With(h.authMiddleware.Optional).Post("/", h.CreateOrder)
			r.Get("/track/{code}", h.TrackOrder)
		})

		r.Route("/reviews", func(r chi.Router) {
			r.Get("/", h.ListReviews)
			r.Get("/average", h.AverageRating)
			r.Post("/", h.SubmitReview)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)
			r.Use(custommiddleware.RequireAdmin)

			r.Get("/stats", h.Stats)
			r.Get("/users", h.ListUsers)

			r.Route("/stock", func(r chi.Router) {
				r.Get("/", h.ListStock)
				r.Get("/low", h.ListLowStock)
				r.Put("/{category}/{name}", h.SetStock)
				r.Delete("/{category}/{name}", h.DeleteStock)
				r.Post("/{category}/{name}/increment", h.IncrementStock)
				r.Post("/{category}/{name}/restock", h.RestockStock)
			})

			r.Route("/menu-codes", func(r chi.Router) {
				r.Get("/", h.ListMenuCodes)
				r.Post("/", h.IssueMenuCode)
				r.Post("/cleanup", h.CleanupMenuCodes)
				r.Delete("/{code}", h.DeleteMenuCode)
			})

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", h.ListOrders)
				r.Get("/{id}", h.GetOrder)
				r.Patch("/{id}/status", h.UpdateOrderStatus)
				r.Patch("/{id}/payment", h.UpdatePayment)
			})

			r.Route("/reviews", func(r chi.Router) {
				r.Get("/", h.ListAllReviews)
				r.Patch("/{id}/visibility", h.SetReviewVisibility)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: http.StatusText(http.StatusNotFound)})
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: http.StatusText(http.StatusMethodNotAllowed)})
	})

	return r
}
