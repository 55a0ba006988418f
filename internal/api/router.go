package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func RegisterRoutes(r chi.Router, h *Handlers) {
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Healthz)

	r.Route("/services", func(r chi.Router) {
		r.Post("/load", h.LoadServices)
		r.Get("/stats", h.LoadStats)
		r.Get("/{id}", h.GetService)
	})

	r.Post("/lifecycle", h.SetLifecycle)
	r.Put("/navigation", h.Navigate)
	r.Get("/identification", h.GetIdentification)
	r.Post("/identification/complete", h.CompleteIdentification)

	r.Post("/activations/{workflow}", h.StartActivation)
	r.Get("/activations/{workflow}", h.GetActivation)
	r.Get("/backoff/{kind}", h.GetBackoff)

	r.Post("/pin", h.SubmitPin)
	r.Post("/pin/start", h.StartPin)
	r.Post("/pin/verify", h.VerifyPin)
}
