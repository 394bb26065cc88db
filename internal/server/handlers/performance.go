package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/watzon/maintrack/internal/database"
	"github.com/watzon/maintrack/internal/performance"
)

type PerformanceHandlers struct {
	store *performance.Store
}

func NewPerformanceHandlers(db *database.DB) *PerformanceHandlers {
	return &PerformanceHandlers{store: performance.NewStore(db)}
}

// List handles GET /api/operators/performance.
func (h *PerformanceHandlers) List(w http.ResponseWriter, r *http.Request) {
	status := performance.Status(r.URL.Query().Get("status"))
	switch status {
	case "", performance.StatusActive, performance.StatusWarning,
		performance.StatusCritical, performance.StatusInactive:
	default:
		BadRequest(w, "Unknown status filter")
		return
	}

	snaps, err := h.store.List(r.Context(), status)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list operator performance")
		InternalError(w, "Failed to list operator performance")
		return
	}
	if snaps == nil {
		snaps = []*performance.Snapshot{}
	}

	JSON(w, http.StatusOK, map[string]any{
		"operators": snaps,
		"count":     len(snaps),
	})
}

// Get handles GET /api/operators/{id}/performance.
func (h *PerformanceHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	snap, err := h.store.Get(r.Context(), id)
	if errors.Is(err, performance.ErrNotFound) {
		NotFound(w, "Operator not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("operator_id", id).Msg("Failed to get operator performance")
		InternalError(w, "Failed to get operator performance")
		return
	}

	JSON(w, http.StatusOK, snap)
}
