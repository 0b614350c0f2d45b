package jobs

import (
	"context"

	"github.com/rs/zerolog"
)

// Recorder keeps a durable copy of finished runs.
type Recorder interface {
	RecordRun(ctx context.Context, run *Run) error
}

// RecordingStore is a RunStore that also hands every run reaching a final
// status to a Recorder. Recorder failures are logged and do not fail the
// save.
type RecordingStore struct {
	RunStore
	recorder Recorder
	log      zerolog.Logger
}

// NewRecordingStore wraps store.
func NewRecordingStore(store RunStore, recorder Recorder, log zerolog.Logger) *RecordingStore {
	return &RecordingStore{RunStore: store, recorder: recorder, log: log}
}

// SaveRun saves run and records it once it is completed or failed.
func (s *RecordingStore) SaveRun(ctx context.Context, run *Run) error {
	if err := s.RunStore.SaveRun(ctx, run); err != nil {
		return err
	}
	if run.Status != RunStatusCompleted && run.Status != RunStatusFailed {
		return nil
	}
	if err := s.recorder.RecordRun(ctx, run); err != nil {
		s.log.Error().Err(err).Str("run_id", run.ID).Msg("failed to record run")
	}
	return nil
}
