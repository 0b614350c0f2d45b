package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-pipeline/internal/api"
	"github.com/dvloznov/statement-pipeline/internal/api/handlers"
	"github.com/dvloznov/statement-pipeline/internal/jobs"
	"github.com/dvloznov/statement-pipeline/internal/jobs/inmemory"
	"github.com/dvloznov/statement-pipeline/internal/pipeline"
)

const testKey = "secret"

type runnerFunc func(ctx context.Context, op string, rng pipeline.Range) (pipeline.Report, error)

func (f runnerFunc) Run(ctx context.Context, op string, rng pipeline.Range) (pipeline.Report, error) {
	return f(ctx, op, rng)
}

func okRunner(ctx context.Context, op string, rng pipeline.Range) (pipeline.Report, error) {
	return pipeline.Report{
		Operation: op,
		Files:     []string{"gs://b/" + op + "/" + rng.Start.String()},
		Items: []pipeline.ItemResult{
			{Source: "gs://b/in.pdf", Output: "gs://b/out"},
			{Source: "gs://b/bad.pdf", Err: errors.New("wrong password")},
		},
	}, nil
}

type server struct {
	handler http.Handler
	store   *inmemory.Store
}

func newServer(t *testing.T, runner handlers.Runner, publisher jobs.Publisher) server {
	t.Helper()
	store := inmemory.NewStore()
	log := zerolog.Nop()
	h := api.NewHandler(api.Options{
		APIKey:   testKey,
		Triggers: handlers.NewTriggersHandler(runner, store, publisher, log),
		Runs:     handlers.NewRunsHandler(store, log),
		Metrics:  http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("metrics")) }),
		Log:      log,
	})
	return server{handler: h, store: store}
}

func (s server) get(t *testing.T, target string, withKey bool) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if withKey {
		req.Header.Set("X-API-Key", testKey)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var body map[string]any
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestTriggerRequiresAPIKey(t *testing.T) {
	s := newServer(t, runnerFunc(okRunner), nil)

	rec, body := s.get(t, "/parse_document?start_date=2024-01-01&end_date=2024-01-31", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthorized: Invalid or missing API Key", body["message"])

	req := httptest.NewRequest(http.MethodGet, "/parse_document?start_date=2024-01-01&end_date=2024-01-31", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTriggerValidatesDates(t *testing.T) {
	s := newServer(t, runnerFunc(okRunner), nil)

	rec, body := s.get(t, "/remove_password?start_date=2024-01-01", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "start_date and end_date are required", body["error"])

	rec, _ = s.get(t, "/remove_password?start_date=2024-02-01&end_date=2024-01-01", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.get(t, "/remove_password?start_date=01/02/2024&end_date=2024-03-01", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerSuccess(t *testing.T) {
	s := newServer(t, runnerFunc(okRunner), nil)

	rec, body := s.get(t, "/structure_data?start_date=2024-01-01&end_date=2024-01-31", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "GCS", body["source"])
	assert.Equal(t, []any{"gs://b/structure_data/2024-01-01"}, body["files_processed"])
	assert.EqualValues(t, 1, body["total_files"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	runs, err := s.store.ListRuns(context.Background(), jobs.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, jobs.RunStatusCompleted, runs[0].Status)
	assert.Equal(t, jobs.OperationStructureData, runs[0].Operation)
	assert.Equal(t, map[string]string{"gs://b/bad.pdf": "wrong password"}, runs[0].Failed)
	assert.NotNil(t, runs[0].CompletedAt)
}

func TestTriggerEmptyResult(t *testing.T) {
	s := newServer(t, runnerFunc(func(ctx context.Context, op string, rng pipeline.Range) (pipeline.Report, error) {
		return pipeline.Report{Operation: op}, nil
	}), nil)

	rec, body := s.get(t, "/process_data?start_date=2024-01-01&end_date=2024-01-31", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, body["files_processed"])
	assert.EqualValues(t, 0, body["total_files"])
}

func TestTriggerFailure(t *testing.T) {
	s := newServer(t, runnerFunc(func(ctx context.Context, op string, rng pipeline.Range) (pipeline.Report, error) {
		return pipeline.Report{Operation: op}, pkgerrors.Wrap(errors.New("bucket unreachable"), "list raw/pdf")
	}), nil)

	rec, body := s.get(t, "/remove_password?start_date=2024-01-01&end_date=2024-01-31", true)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "list raw/pdf: bucket unreachable", body["error"])
	assert.Contains(t, body["traceback"], "bucket unreachable")
	assert.Contains(t, body["traceback"], "server_test.go")

	runs, err := s.store.ListRuns(context.Background(), jobs.RunFilter{Status: jobs.RunStatusFailed})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestTriggerAsync(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := runnerFunc(okRunner)
	store := inmemory.NewStore()
	queue := inmemory.NewQueue(4, 1, store)
	defer queue.Close()
	require.NoError(t, queue.Start(ctx, handlers.Execute(runner)))

	log := zerolog.Nop()
	h := api.NewHandler(api.Options{
		APIKey:   testKey,
		Triggers: handlers.NewTriggersHandler(runner, store, queue, log),
		Runs:     handlers.NewRunsHandler(store, log),
		Log:      log,
	})
	s := server{handler: h, store: store}

	rec, body := s.get(t, "/parse_document?start_date=2024-01-01&end_date=2024-01-31&async=true", true)
	require.Equal(t, http.StatusAccepted, rec.Code)
	id, _ := body["run_id"].(string)
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		run, err := store.GetRun(ctx, id)
		return err == nil && run.Status == jobs.RunStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	rec, body = s.get(t, "/runs/"+id, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"gs://b/parse_document/2024-01-01"}, body["files_processed"])
}

func TestTriggerAsyncDisabled(t *testing.T) {
	s := newServer(t, runnerFunc(okRunner), nil)

	rec, _ := s.get(t, "/parse_document?start_date=2024-01-01&end_date=2024-01-31&async=true", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOpenRoutes(t *testing.T) {
	s := newServer(t, runnerFunc(okRunner), nil)

	rec, body := s.get(t, "/health", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])

	rec, _ = s.get(t, "/metrics", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "metrics", rec.Body.String())
}

func TestRunRoutesRequireAPIKey(t *testing.T) {
	s := newServer(t, runnerFunc(okRunner), nil)

	rec, _ := s.get(t, "/runs", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = s.get(t, "/runs/missing", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body := s.get(t, "/runs", true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, body["count"])

	rec, _ = s.get(t, "/runs/missing", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
