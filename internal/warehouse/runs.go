package warehouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/statement-pipeline/internal/jobs"
)

const runsTable = "pipeline_runs"

const maxErrorLen = 2000

// RunRow is one finished trigger run.
type RunRow struct {
	RunID     string `bigquery:"run_id"`    // REQUIRED
	Operation string `bigquery:"operation"` // REQUIRED

	StartDate string `bigquery:"start_date"` // NULLABLE
	EndDate   string `bigquery:"end_date"`   // NULLABLE

	StartedTS  bigquery.NullTimestamp `bigquery:"started_ts"`  // NULLABLE
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"` // NULLABLE

	Status       string `bigquery:"status"`        // NULLABLE
	ErrorMessage string `bigquery:"error_message"` // NULLABLE

	FilesWritten int64 `bigquery:"files_written"`
	FilesFailed  int64 `bigquery:"files_failed"`
}

// NewRunRow converts a run. Long error messages are truncated.
func NewRunRow(run *jobs.Run) RunRow {
	row := RunRow{
		RunID:        run.ID,
		Operation:    string(run.Operation),
		StartDate:    run.Start,
		EndDate:      run.End,
		Status:       strings.ToUpper(string(run.Status)),
		ErrorMessage: run.Error,
		FilesWritten: int64(len(run.Files)),
		FilesFailed:  int64(len(run.Failed)),
	}
	if len(row.ErrorMessage) > maxErrorLen {
		row.ErrorMessage = row.ErrorMessage[:maxErrorLen]
	}
	if run.StartedAt != nil {
		row.StartedTS = bigquery.NullTimestamp{Timestamp: *run.StartedAt, Valid: true}
	}
	if run.CompletedAt != nil {
		row.FinishedTS = bigquery.NullTimestamp{Timestamp: *run.CompletedAt, Valid: true}
	}
	return row
}

// RecordRun inserts a finished run into {dataset}.pipeline_runs.
func (w *Warehouse) RecordRun(ctx context.Context, run *jobs.Run) error {
	row := NewRunRow(run)

	q := w.client.Query(fmt.Sprintf(`
		INSERT %s.%s (
			run_id,
			operation,
			start_date,
			end_date,
			started_ts,
			finished_ts,
			status,
			error_message,
			files_written,
			files_failed
		)
		VALUES (
			@run_id,
			@operation,
			@start_date,
			@end_date,
			@started_ts,
			@finished_ts,
			@status,
			@error_message,
			@files_written,
			@files_failed
		)
	`, w.dataset, runsTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: row.RunID},
		{Name: "operation", Value: row.Operation},
		{Name: "start_date", Value: row.StartDate},
		{Name: "end_date", Value: row.EndDate},
		{Name: "started_ts", Value: timestampParam(row.StartedTS)},
		{Name: "finished_ts", Value: timestampParam(row.FinishedTS)},
		{Name: "status", Value: row.Status},
		{Name: "error_message", Value: row.ErrorMessage},
		{Name: "files_written", Value: row.FilesWritten},
		{Name: "files_failed", Value: row.FilesFailed},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("RecordRun: running insert query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("RecordRun: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("RecordRun: job error: %w", err)
	}
	return nil
}

func timestampParam(ts bigquery.NullTimestamp) any {
	if !ts.Valid {
		return bigquery.NullTimestamp{}
	}
	return ts.Timestamp.In(time.UTC)
}
