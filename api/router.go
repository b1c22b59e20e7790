// Package api exposes the WhatsApp webhook and operational endpoints.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// NewRouter mounts the webhook handler and operational endpoints. metrics
// may be nil, in which case /metrics is not served.
func NewRouter(h *Handler, metrics http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/", healthHandler)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhook", h.Webhook)
		r.Post("/jobs/turn", h.Job)
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	log.Debug().Msg("health check invoked")
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Whatsapp Assistant is running!",
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
