package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/surprisebox-shop/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware магазина сюрприз-боксов.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Route("/user", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.Middleware)

				r.Get("/orders", h.GetUserOrders)
			})
		})

		r.Route("/boxes", func(r chi.Router) {
			r.Post("/", h.CreateBox)
			r.Get("/", h.GetBoxes)
			r.Get("/{id}", h.GetBoxByID)
			r.Patch("/{id}", h.UpdateBox)
			r.Delete("/{id}", h.DeleteBox)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.CreateOrder)
			r.Get("/", h.GetOrders)
			r.Put("/{id}/status", h.UpdateOrderStatus)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
