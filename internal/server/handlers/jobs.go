package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/watzon/maintrack/internal/requestctx"
	"github.com/watzon/maintrack/internal/runner"
)

// JobHandlers exposes the job runner.
type JobHandlers struct {
	runner *runner.Runner
}

func NewJobHandlers(r *runner.Runner) *JobHandlers {
	return &JobHandlers{runner: r}
}

type JobInfo struct {
	Name    string         `json:"name"`
	Spec    string         `json:"spec"`
	LastRun *runner.JobRun `json:"last_run,omitempty"`
}

// List handles GET /api/jobs.
func (h *JobHandlers) List(w http.ResponseWriter, r *http.Request) {
	runs, err := h.runner.State().List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list job runs")
		InternalError(w, "Failed to list jobs")
		return
	}

	byName := make(map[string]*runner.JobRun, len(runs))
	for _, run := range runs {
		byName[run.Job] = run
	}

	jobs := make([]JobInfo, 0, len(h.runner.Jobs()))
	for _, name := range h.runner.Jobs() {
		jobs = append(jobs, JobInfo{
			Name:    name,
			Spec:    h.runner.Spec(name),
			LastRun: byName[name],
		})
	}

	JSON(w, http.StatusOK, map[string]any{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// Run handles POST /api/jobs/{job}/run.
func (h *JobHandlers) Run(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("job")
	ctx := requestctx.WithTrigger(r.Context(), requestctx.TriggerHTTP)

	summary, err := h.runner.Run(ctx, name)
	switch {
	case errors.Is(err, runner.ErrUnknownJob):
		NotFound(w, "Job not found")
		return
	case errors.Is(err, runner.ErrJobRunning):
		Error(w, http.StatusConflict, "JOB_RUNNING", "Job is already running")
		return
	case err != nil:
		Error(w, http.StatusInternalServerError, "JOB_FAILED", err.Error())
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"job":     name,
		"summary": summary,
	})
}
