// Package warehouse loads unified tables into BigQuery and records trigger
// runs there.
package warehouse

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// UnifiedTablePrefix names the per-year destination tables.
const UnifiedTablePrefix = "unified_base_"

// Config configures a Warehouse.
type Config struct {
	ProjectID       string
	Dataset         string
	CredentialsJSON []byte
}

// Warehouse wraps a BigQuery client bound to one dataset.
type Warehouse struct {
	client  *bigquery.Client
	dataset string
	log     zerolog.Logger
}

// New creates the BigQuery client.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*Warehouse, error) {
	var opts []option.ClientOption
	if len(cfg.CredentialsJSON) > 0 {
		opts = append(opts, option.WithCredentialsJSON(cfg.CredentialsJSON))
	}
	client, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("warehouse.New: bigquery client: %w", err)
	}
	return NewWithClient(client, cfg.Dataset, log), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *bigquery.Client, dataset string, log zerolog.Logger) *Warehouse {
	return &Warehouse{client: client, dataset: dataset, log: log}
}

// Close releases the client.
func (w *Warehouse) Close() error {
	return w.client.Close()
}

// UnifiedTable returns the destination table name for year.
func UnifiedTable(year int) string {
	return fmt.Sprintf("%s%d", UnifiedTablePrefix, year)
}

// LoadUnified replaces {dataset}.unified_base_{year} with the Parquet file
// at uri, which must be a gs:// URI.
func (w *Warehouse) LoadUnified(ctx context.Context, uri string, year int) (string, error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", fmt.Errorf("LoadUnified: %s is not a gs:// URI", uri)
	}

	ref := bigquery.NewGCSReference(uri)
	ref.SourceFormat = bigquery.Parquet

	table := UnifiedTable(year)
	loader := w.client.Dataset(w.dataset).Table(table).LoaderFrom(ref)
	loader.WriteDisposition = bigquery.WriteTruncate
	loader.CreateDisposition = bigquery.CreateIfNeeded

	job, err := loader.Run(ctx)
	if err != nil {
		return "", fmt.Errorf("LoadUnified: starting load job: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return "", fmt.Errorf("LoadUnified: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return "", fmt.Errorf("LoadUnified: job error: %w", err)
	}

	dest := w.dataset + "." + table
	w.log.Info().Str("uri", uri).Str("table", dest).Msg("unified table loaded")
	return dest, nil
}
