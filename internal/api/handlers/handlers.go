package handlers

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-pipeline/internal/api/middleware"
	"github.com/dvloznov/statement-pipeline/internal/jobs"
	"github.com/dvloznov/statement-pipeline/internal/logger"
	"github.com/dvloznov/statement-pipeline/internal/objectstore"
	"github.com/dvloznov/statement-pipeline/internal/pipeline"
)

// Source is reported in every trigger response.
const Source = "GCS"

// Runner executes one trigger operation. *pipeline.Runner implements it.
type Runner interface {
	Run(ctx context.Context, op string, rng pipeline.Range) (pipeline.Report, error)
}

// Execute adapts r to a run handler: it runs run.Operation over the run's
// range and copies the outputs and per-document failures onto run.
func Execute(r Runner) jobs.RunHandler {
	return func(ctx context.Context, run *jobs.Run) error {
		rng, err := pipeline.ParseRange(run.Start, run.End)
		if err != nil {
			return err
		}
		rep, err := r.Run(ctx, string(run.Operation), rng)
		run.Files = rep.Files
		run.Failed = rep.FailedSources()
		return err
	}
}

// TriggersHandler serves the four pipeline triggers.
type TriggersHandler struct {
	exec      jobs.RunHandler
	runs      jobs.RunStore
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewTriggersHandler creates a triggers handler. publisher may be nil, which
// disables async=true.
func NewTriggersHandler(runner Runner, runs jobs.RunStore, publisher jobs.Publisher, log zerolog.Logger) *TriggersHandler {
	return &TriggersHandler{
		exec:      Execute(runner),
		runs:      runs,
		publisher: publisher,
		log:       log,
	}
}

// Trigger handles GET /{op}?start_date=...&end_date=...[&async=true]
func (h *TriggersHandler) Trigger(op jobs.Operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := logger.FromContext(ctx)

		query := r.URL.Query()
		start, end := query.Get("start_date"), query.Get("end_date")
		if _, err := pipeline.ParseRange(start, end); err != nil {
			writeRangeError(w, err)
			return
		}

		run := &jobs.Run{Operation: op, Start: start, End: end}

		if async, _ := strconv.ParseBool(query.Get("async")); async {
			if h.publisher == nil {
				middleware.WriteError(w, http.StatusBadRequest, "async runs are not enabled")
				return
			}
			if err := h.publisher.Publish(ctx, run); err != nil {
				log.Error().Err(err).Str("operation", string(op)).Msg("Failed to enqueue run")
				middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue run")
				return
			}
			// run now belongs to the queue workers
			middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
				"run_id": run.ID,
				"status": string(jobs.RunStatusPending),
			})
			return
		}

		now := time.Now().UTC()
		run.ID = uuid.NewString()
		run.Status = jobs.RunStatusRunning
		run.CreatedAt = now
		run.StartedAt = &now
		h.save(ctx, run)

		err := h.exec(ctx, run)

		completed := time.Now().UTC()
		run.CompletedAt = &completed
		if err != nil {
			run.Status = jobs.RunStatusFailed
			run.Error = err.Error()
		} else {
			run.Status = jobs.RunStatusCompleted
		}
		h.save(ctx, run)

		if err != nil {
			log.Error().Err(err).Str("run_id", run.ID).Str("operation", string(op)).Msg("Trigger failed")
			middleware.WriteJSON(w, http.StatusInternalServerError, map[string]string{
				"error":     err.Error(),
				"traceback": traceback(err),
			})
			return
		}

		files := run.Files
		if files == nil {
			files = []string{}
		}
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"source":          Source,
			"files_processed": files,
			"total_files":     len(files),
		})
	}
}

func (h *TriggersHandler) save(ctx context.Context, run *jobs.Run) {
	if h.runs == nil {
		return
	}
	if err := h.runs.SaveRun(ctx, run); err != nil {
		h.log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to save run")
	}
}

func writeRangeError(w http.ResponseWriter, err error) {
	switch {
	case stderrors.Is(err, pipeline.ErrMissingDates):
		middleware.WriteError(w, http.StatusBadRequest, "start_date and end_date are required")
	case stderrors.Is(err, objectstore.ErrInvalidRange):
		middleware.WriteError(w, http.StatusBadRequest, "start_date must not be after end_date")
	default:
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// traceback renders err with the stack recorded where it was first wrapped.
func traceback(err error) string {
	var st stackTracer
	if !stderrors.As(err, &st) {
		err = errors.WithStack(err)
	}
	return fmt.Sprintf("%+v", err)
}

// RunsHandler handles run-related endpoints.
type RunsHandler struct {
	store jobs.RunStore
	log   zerolog.Logger
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(store jobs.RunStore, log zerolog.Logger) *RunsHandler {
	return &RunsHandler{
		store: store,
		log:   log,
	}
}

// GetRun handles GET /runs/{id}
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := r.PathValue("id")

	run, err := h.store.GetRun(ctx, runID)
	if stderrors.Is(err, jobs.ErrRunNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Run not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("run_id", runID).Msg("Failed to get run")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, run)
}

// ListRuns handles GET /runs
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Parse query parameters
	query := r.URL.Query()
	filter := jobs.RunFilter{
		Operation: jobs.Operation(query.Get("operation")),
		Status:    jobs.RunStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	runs, err := h.store.ListRuns(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}
