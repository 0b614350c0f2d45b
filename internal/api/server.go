// Package api assembles the HTTP trigger surface.
package api

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-pipeline/internal/api/handlers"
	"github.com/dvloznov/statement-pipeline/internal/api/middleware"
	"github.com/dvloznov/statement-pipeline/internal/jobs"
)

// Options configures the router.
type Options struct {
	APIKey   string
	Triggers *handlers.TriggersHandler
	Runs     *handlers.RunsHandler
	// Metrics is served on /metrics when set.
	Metrics http.Handler
	Log     zerolog.Logger
}

// Triggers lists the operations exposed as GET /{operation}.
var Triggers = []jobs.Operation{
	jobs.OperationRemovePassword,
	jobs.OperationParseDocument,
	jobs.OperationStructureData,
	jobs.OperationProcessData,
}

// NewHandler returns the router wrapped in the middleware chain. Trigger
// routes and run lookups require the API key; health and metrics do not.
func NewHandler(opts Options) http.Handler {
	mux := http.NewServeMux()

	auth := middleware.APIKey(opts.APIKey)
	for _, op := range Triggers {
		mux.Handle("GET /"+string(op), auth(opts.Triggers.Trigger(op)))
	}

	mux.Handle("GET /runs", auth(http.HandlerFunc(opts.Runs.ListRuns)))
	mux.Handle("GET /runs/{id}", auth(http.HandlerFunc(opts.Runs.GetRun)))
	mux.HandleFunc("GET /health", handlers.Health)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	return middleware.Recovery(opts.Log)(
		middleware.RequestID(
			middleware.Logger(opts.Log)(
				middleware.CORS(mux),
			),
		),
	)
}
