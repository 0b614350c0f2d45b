package inmemory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-pipeline/internal/jobs"
)

func TestStoreSaveGetList(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveRun(ctx, &jobs.Run{ID: "a", Operation: jobs.OperationParseDocument, Status: jobs.RunStatusCompleted, CreatedAt: base}))
	require.NoError(t, s.SaveRun(ctx, &jobs.Run{ID: "b", Operation: jobs.OperationStructureData, Status: jobs.RunStatusFailed, CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, s.SaveRun(ctx, &jobs.Run{ID: "c", Operation: jobs.OperationParseDocument, Status: jobs.RunStatusRunning, CreatedAt: base.Add(2 * time.Minute)}))

	assert.Error(t, s.SaveRun(ctx, &jobs.Run{}))

	got, err := s.GetRun(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, jobs.OperationStructureData, got.Operation)

	_, err = s.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, jobs.ErrRunNotFound)

	all, err := s.ListRuns(ctx, jobs.RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID)
	assert.Equal(t, "a", all[2].ID)

	parse, err := s.ListRuns(ctx, jobs.RunFilter{Operation: jobs.OperationParseDocument, Limit: 1})
	require.NoError(t, err)
	require.Len(t, parse, 1)
	assert.Equal(t, "c", parse[0].ID)

	none, err := s.ListRuns(ctx, jobs.RunFilter{Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	run := &jobs.Run{ID: "a", Files: []string{"x"}}
	require.NoError(t, s.SaveRun(ctx, run))

	run.Files[0] = "mutated"
	got, err := s.GetRun(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, got.Files)
}

func waitStatus(t *testing.T, s *Store, id string, want jobs.RunStatus) *jobs.Run {
	t.Helper()
	var run *jobs.Run
	require.Eventually(t, func() bool {
		r, err := s.GetRun(context.Background(), id)
		if err != nil {
			return false
		}
		run = r
		return r.Status == want
	}, 5*time.Second, 10*time.Millisecond)
	return run
}

func TestQueueProcessesRuns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(4, 2, store)
	require.NoError(t, q.Start(ctx, func(_ context.Context, run *jobs.Run) error {
		if run.Operation == jobs.OperationProcessData {
			return errors.New("listing failed")
		}
		run.Files = []string{"gs://b/out.json"}
		return nil
	}))

	ok := &jobs.Run{Operation: jobs.OperationParseDocument}
	bad := &jobs.Run{Operation: jobs.OperationProcessData}
	require.NoError(t, q.Publish(ctx, ok))
	require.NoError(t, q.Publish(ctx, bad))
	assert.NotEmpty(t, ok.ID)

	done := waitStatus(t, store, ok.ID, jobs.RunStatusCompleted)
	assert.Equal(t, []string{"gs://b/out.json"}, done.Files)
	assert.NotNil(t, done.CompletedAt)

	failed := waitStatus(t, store, bad.ID, jobs.RunStatusFailed)
	assert.Equal(t, "listing failed", failed.Error)

	require.NoError(t, q.Stop(ctx))
	assert.Error(t, q.Publish(ctx, &jobs.Run{}))
}

func TestQueueFailedRunIsNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(4, 1, store)
	defer q.Close()

	var mu sync.Mutex
	attempts := 0
	require.NoError(t, q.Start(ctx, func(_ context.Context, run *jobs.Run) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return errors.New("transient")
	}))

	run := &jobs.Run{Operation: jobs.OperationStructureData}
	require.NoError(t, q.Publish(ctx, run))

	failed := waitStatus(t, store, run.ID, jobs.RunStatusFailed)
	assert.Equal(t, "transient", failed.Error)

	require.NoError(t, q.Stop(ctx))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, attempts)
}
