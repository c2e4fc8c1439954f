package api

import (
	"net/http"

	"github.com/dvloznov/finance-assistant/internal/api/handlers"
	"github.com/dvloznov/finance-assistant/internal/api/middleware"
	"github.com/dvloznov/finance-assistant/internal/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// NewRouter mounts the assistant endpoints. A nil limiter disables per-IP
// rate limiting.
func NewRouter(h *handlers.AssistantHandler, limiter *middleware.RateLimiter, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS)
	r.Use(telemetry.Tracing)

	r.Get("/health", handlers.Health)

	r.Route("/api/assistant", func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter.Middleware)
		}

		r.Post("/message", h.SendMessage)
		r.Post("/apply", h.ApplyProposals)

		r.Get("/conversations", h.ListConversations)
		r.Route("/conversations/{cid}", func(r chi.Router) {
			r.Get("/", h.GetConversation)
			r.Delete("/", h.DeleteConversation)
			r.Post("/clear", h.ClearConversation)

			r.Get("/proposals", h.ListPending)
			r.Get("/proposals/{pid}", h.GetProposal)
			r.Patch("/proposals/{pid}", h.UpdateProposal)
			r.Post("/proposals/{pid}/confirm", h.ConfirmProposal)
			r.Post("/proposals/{pid}/discard", h.DiscardProposal)
		})
	})

	return r
}
