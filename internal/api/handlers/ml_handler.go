package handlers

import (
	"net/http"

	"github.com/zatekoja/recursiadx/internal/domain/providers"
)

// MLHandler reports on the classification service
type MLHandler struct {
	gateway providers.MLGateway
}

// NewMLHandler creates a new ML handler
func NewMLHandler(gateway providers.MLGateway) *MLHandler {
	return &MLHandler{gateway: gateway}
}

// Health handles GET /api/ml/health. An unreachable service answers 503
// with the same body shape.
func (h *MLHandler) Health(w http.ResponseWriter, r *http.Request) {
	health, err := h.gateway.Health(r.Context())
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	if !health.Reachable {
		respondWithJSON(w, http.StatusServiceUnavailable, envelope{
			Success: false,
			Message: "ML service unavailable",
			Data:    health,
		})
		return
	}
	respondWithData(w, http.StatusOK, "", health)
}
