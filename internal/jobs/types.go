// Package jobs tracks pipeline trigger runs.
package jobs

import (
	"context"
	"errors"
	"time"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// Operation names a pipeline trigger.
type Operation string

const (
	OperationRemovePassword Operation = "remove_password"
	OperationParseDocument  Operation = "parse_document"
	OperationStructureData  Operation = "structure_data"
	OperationProcessData    Operation = "process_data"
)

// Valid reports whether o is a known operation.
func (o Operation) Valid() bool {
	switch o {
	case OperationRemovePassword, OperationParseDocument, OperationStructureData, OperationProcessData:
		return true
	}
	return false
}

// RunStatus represents the current status of a run.
type RunStatus string

const (
	// RunStatusPending indicates the run is queued.
	RunStatusPending RunStatus = "pending"
	// RunStatusRunning indicates the run is being processed.
	RunStatusRunning RunStatus = "running"
	// RunStatusCompleted indicates the run finished; some documents may
	// still have failed.
	RunStatusCompleted RunStatus = "completed"
	// RunStatusFailed indicates the run was aborted.
	RunStatusFailed RunStatus = "failed"
)

// Run is one trigger invocation over a date range.
type Run struct {
	ID        string    `json:"run_id"`
	Operation Operation `json:"operation"`
	Status    RunStatus `json:"status"`

	// Start and End are the requested range as YYYY-MM-DD.
	Start string `json:"start_date"`
	End   string `json:"end_date"`

	// Files are the outputs written by the run.
	Files []string `json:"files_processed"`
	// Failed maps input URIs to their error message.
	Failed map[string]string `json:"failed,omitempty"`
	Error  string            `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a copy that shares no slices or maps with r.
func (r *Run) Clone() *Run {
	cp := *r
	cp.Files = append([]string(nil), r.Files...)
	if r.Failed != nil {
		cp.Failed = make(map[string]string, len(r.Failed))
		for k, v := range r.Failed {
			cp.Failed[k] = v
		}
	}
	return &cp
}

// Publisher enqueues runs for asynchronous processing.
type Publisher interface {
	Publish(ctx context.Context, run *Run) error
	Close() error
}

// Consumer processes queued runs.
type Consumer interface {
	// Start begins consuming runs; handler is called for each one.
	Start(ctx context.Context, handler RunHandler) error
	// Stop stops consuming and waits for in-flight runs.
	Stop(ctx context.Context) error
}

// RunHandler executes a run and fills its outputs. A returned error marks
// the run failed.
type RunHandler func(ctx context.Context, run *Run) error

// RunStore stores run state.
type RunStore interface {
	SaveRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)
}

// RunFilter defines filtering criteria for listing runs.
type RunFilter struct {
	Operation Operation
	Status    RunStatus
	Limit     int
	Offset    int
}
