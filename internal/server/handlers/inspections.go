package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/watzon/maintrack/internal/clock"
	"github.com/watzon/maintrack/internal/database"
	"github.com/watzon/maintrack/internal/inspections"
)

const (
	defaultInstanceLimit = 50
	maxInstanceLimit     = 500
)

// InspectionHandlers serves templates, instances and results.
type InspectionHandlers struct {
	store *inspections.Store
	clock clock.Clock
}

func NewInspectionHandlers(db *database.DB, clk clock.Clock) *InspectionHandlers {
	return &InspectionHandlers{
		store: inspections.NewStore(db),
		clock: clk,
	}
}

// ListTemplates handles GET /api/templates.
func (h *InspectionHandlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.store.ListTemplates(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list templates")
		InternalError(w, "Failed to list templates")
		return
	}
	if templates == nil {
		templates = []*inspections.Template{}
	}

	JSON(w, http.StatusOK, map[string]any{
		"templates": templates,
		"count":     len(templates),
	})
}

// GetTemplate handles GET /api/templates/{id}.
func (h *InspectionHandlers) GetTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	tpl, err := h.store.GetTemplate(ctx, id)
	if errors.Is(err, inspections.ErrNotFound) {
		NotFound(w, "Template not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("Failed to get template")
		InternalError(w, "Failed to get template")
		return
	}

	if tpl.Tasks, err = h.store.ListTasks(ctx, id); err != nil {
		log.Error().Err(err).Str("id", id).Msg("Failed to list template tasks")
		InternalError(w, "Failed to get template")
		return
	}

	JSON(w, http.StatusOK, tpl)
}

// ListInstances handles GET /api/templates/{id}/instances.
func (h *InspectionHandlers) ListInstances(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	limit := defaultInstanceLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxInstanceLimit)
	}

	if _, err := h.store.GetTemplate(ctx, id); err != nil {
		if errors.Is(err, inspections.ErrNotFound) {
			NotFound(w, "Template not found")
			return
		}
		log.Error().Err(err).Str("id", id).Msg("Failed to get template")
		InternalError(w, "Failed to list instances")
		return
	}

	instances, err := h.store.ListInstancesByTemplate(ctx, id, limit)
	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("Failed to list instances")
		InternalError(w, "Failed to list instances")
		return
	}
	if instances == nil {
		instances = []*inspections.Instance{}
	}

	JSON(w, http.StatusOK, map[string]any{
		"instances": instances,
		"count":     len(instances),
	})
}

type InstanceDetail struct {
	*inspections.Instance
	Tasks   []inspections.Task   `json:"tasks"`
	Results []inspections.Result `json:"results"`
}

// GetInstance handles GET /api/instances/{id}.
func (h *InspectionHandlers) GetInstance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	inst, err := h.store.GetInstance(ctx, id)
	if errors.Is(err, inspections.ErrNotFound) {
		NotFound(w, "Instance not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("Failed to get instance")
		InternalError(w, "Failed to get instance")
		return
	}

	detail := InstanceDetail{Instance: inst, Tasks: []inspections.Task{}, Results: []inspections.Result{}}
	tasks, err := h.store.ListTasks(ctx, id)
	if err == nil && tasks != nil {
		detail.Tasks = tasks
	}
	if err == nil {
		var results []inspections.Result
		results, err = h.store.ListResults(ctx, id)
		if results != nil {
			detail.Results = results
		}
	}
	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("Failed to load instance detail")
		InternalError(w, "Failed to get instance")
		return
	}

	JSON(w, http.StatusOK, detail)
}

type RecordResultRequest struct {
	TaskID     string `json:"task_id"`
	Value      string `json:"value"`
	Passed     bool   `json:"passed"`
	RecordedBy string `json:"recorded_by"`
}

// RecordResult handles POST /api/instances/{id}/results.
func (h *InspectionHandlers) RecordResult(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req RecordResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "Invalid request body")
		return
	}
	if req.TaskID == "" || req.RecordedBy == "" {
		BadRequest(w, "task_id and recorded_by are required")
		return
	}

	result := &inspections.Result{
		InspectionID: id,
		TaskID:       req.TaskID,
		Value:        req.Value,
		Passed:       req.Passed,
		RecordedBy:   req.RecordedBy,
		RecordedAt:   h.clock.Now().UTC(),
	}

	err := h.store.RecordResult(r.Context(), result)
	switch {
	case errors.Is(err, inspections.ErrNotFound):
		NotFound(w, "Instance not found")
		return
	case errors.Is(err, inspections.ErrNotActive):
		Error(w, http.StatusConflict, "INSTANCE_CLOSED", "Instance is no longer active")
		return
	case errors.Is(err, inspections.ErrTaskMismatch):
		BadRequest(w, "Task does not belong to this instance")
		return
	case err != nil:
		log.Error().Err(err).Str("id", id).Msg("Failed to record result")
		InternalError(w, "Failed to record result")
		return
	}

	log.Info().
		Str("instance_id", id).
		Str("task_id", req.TaskID).
		Str("recorded_by", req.RecordedBy).
		Bool("passed", req.Passed).
		Msg("Result recorded")

	JSON(w, http.StatusCreated, result)
}
