// Package app builds the pipeline components from a Config. The API server
// and the CLI share it.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-pipeline/internal/config"
	"github.com/dvloznov/statement-pipeline/internal/datalake"
	"github.com/dvloznov/statement-pipeline/internal/extraction"
	"github.com/dvloznov/statement-pipeline/internal/logger"
	"github.com/dvloznov/statement-pipeline/internal/metrics"
	"github.com/dvloznov/statement-pipeline/internal/objectstore"
	"github.com/dvloznov/statement-pipeline/internal/pdfdoc"
	"github.com/dvloznov/statement-pipeline/internal/pipeline"
	"github.com/dvloznov/statement-pipeline/internal/tables"
	"github.com/dvloznov/statement-pipeline/internal/unlock"
	"github.com/dvloznov/statement-pipeline/internal/warehouse"
)

// App holds the wired components.
type App struct {
	Config  *config.Config
	Log     zerolog.Logger
	Stores  *objectstore.Provider
	Metrics *metrics.Metrics
	Runner  *pipeline.Runner

	// Warehouse is nil unless BigQuery is configured.
	Warehouse *warehouse.Warehouse
}

// OpenStores returns the object store provider described by cfg.
func OpenStores(cfg *config.Config) (*objectstore.Provider, error) {
	creds, err := cfg.CredentialsJSON()
	if err != nil {
		return nil, fmt.Errorf("service account: %w", err)
	}
	return objectstore.NewProvider(objectstore.Options{
		Backend:         cfg.Storage.Backend,
		FileRoot:        cfg.Storage.FileRoot,
		S3Endpoint:      cfg.Storage.S3Endpoint,
		S3Region:        cfg.Storage.S3Region,
		CredentialsJSON: creds,
	})
}

// New wires every component. Close releases them.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	stores, err := OpenStores(cfg)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Log: log, Stores: stores, Metrics: metrics.New()}

	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.Config

	textBackend, err := pdfdoc.NewTextExtractor(cfg.PDF.TextBackend)
	if err != nil {
		return err
	}

	completer, err := extraction.NewCompleter(ctx, extraction.CompleterConfig{
		Provider: cfg.Extraction.Provider,
		Model:    cfg.Extraction.Model,
		APIKey:   cfg.Extraction.APIKey,
		BaseURL:  cfg.Extraction.BaseURL,
		Timeout:  cfg.Extraction.Timeout,
	}, logger.Component(a.Log, "completer"))
	if err != nil {
		return err
	}
	schema, err := extraction.DefaultSchema()
	if err != nil {
		return err
	}
	sink, err := a.debugSink(ctx)
	if err != nil {
		return err
	}
	extractor := extraction.NewExtractor(completer, schema, logger.Component(a.Log, "extraction"),
		extraction.WithDebugSink(sink),
		extraction.WithTemperature(cfg.Extraction.Temperature),
	)

	unlocker := unlock.New(unlock.Config{
		Password:      cfg.PDF.Password,
		KeepLocalCopy: cfg.PDF.KeepLocalCopy,
		OutputDir:     cfg.PDF.OutputLocalPath,
	}, logger.Component(a.Log, "unlock"))

	deps := pipeline.Deps{
		Stores:       a.Stores,
		Bucket:       cfg.Storage.Bucket,
		SilverBucket: cfg.SilverBucket(),
		Prefixes:     cfg.Prefixes,
		Unlocker:     unlocker,
		Text:         pipeline.PDFText{Extractor: textBackend},
		Extractor:    extractor,
		Writer:       tables.YearWriter{},
		Metrics:      a.Metrics,
		Log:          a.Log,
	}

	if cfg.BigQuery.Enabled() {
		creds, err := cfg.CredentialsJSON()
		if err != nil {
			return err
		}
		wh, err := warehouse.New(ctx, warehouse.Config{
			ProjectID:       cfg.BigQuery.ProjectID,
			Dataset:         cfg.BigQuery.Dataset,
			CredentialsJSON: creds,
		}, logger.Component(a.Log, "warehouse"))
		if err != nil {
			return err
		}
		a.Warehouse = wh
		deps.Loader = wh
	}

	a.Runner = pipeline.NewRunner(deps)
	return nil
}

// debugSink writes invalid model output to the configured debug location:
// a bucket URI selects the object store, anything else a local directory.
func (a *App) debugSink(ctx context.Context) (extraction.DebugSink, error) {
	dir := a.Config.Extraction.DebugDir
	if !strings.Contains(dir, "://") {
		return extraction.DirSink{Dir: dir}, nil
	}
	bucket, prefix, err := objectstore.SplitURI(dir)
	if err != nil {
		return nil, err
	}
	store, err := a.Stores.Open(ctx, bucket)
	if err != nil {
		return nil, err
	}
	return extraction.StoreSink{Store: store, Prefix: prefix}, nil
}

// Lake returns the data-lake connector rooted at the configured root in the
// main bucket.
func (a *App) Lake(ctx context.Context) (*datalake.Connector, error) {
	return OpenLake(ctx, a.Config, a.Stores)
}

// OpenLake returns the data-lake connector for cfg.
func OpenLake(ctx context.Context, cfg *config.Config, stores objectstore.Opener) (*datalake.Connector, error) {
	store, err := stores.Open(ctx, cfg.Storage.Bucket)
	if err != nil {
		return nil, err
	}
	return datalake.NewConnector(store, cfg.DataLake.Root, cfg.DataLake.Layers), nil
}

// Close releases the clients opened by New.
func (a *App) Close() error {
	var firstErr error
	if a.Warehouse != nil {
		if err := a.Warehouse.Close(); err != nil {
			firstErr = err
		}
	}
	if err := a.Stores.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
