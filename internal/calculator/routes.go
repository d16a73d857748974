package calculator

import "github.com/go-chi/chi/v5"

// RegisterRoutes mounts all calculator endpoints onto the given router
// under the /calculator prefix.
func RegisterRoutes(r chi.Router, h *Handler) {
	r.Route("/calculator", func(r chi.Router) {
		r.Get("/operations", h.ListOperations)
		r.Post("/evaluate", h.Evaluate)

		r.Post("/sessions", h.CreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Delete("/", h.DeleteSession)
			r.Post("/operand", h.SetOperand)
			r.Post("/operation", h.PerformOperation)
			r.Get("/program", h.GetProgram)
			r.Put("/program", h.SetProgram)
			r.Post("/undo", h.Undo)
		})
	})
}
