package handler

import (
	"net/http"

	"github.com/capitalize-ai/meeting-agents/internal/model"
)

// ConnChecker reports event bus connectivity.
type ConnChecker interface {
	IsConnected() bool
}

// ProviderLister reports which speech providers can take a meeting.
type ProviderLister interface {
	AvailableProviders() []model.SpeechProvider
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	bus    ConnChecker
	speech ProviderLister
}

// NewHealthHandler creates a new health handler. bus may be nil when the
// event bus is disabled.
func NewHealthHandler(bus ConnChecker, speech ProviderLister) *HealthHandler {
	return &HealthHandler{bus: bus, speech: speech}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.bus != nil && !h.bus.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}

	providers := []model.SpeechProvider{}
	if h.speech != nil {
		providers = append(providers, h.speech.AvailableProviders()...)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ready",
		"speech_providers": providers,
	})
}
