package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/statement-pipeline/internal/jobs"
)

// Queue is an in-memory run publisher and consumer backed by a channel.
// It suits a single instance; queued runs are lost on restart.
type Queue struct {
	runChan   chan *jobs.Run
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.RunStore
	workers   int
	closed    bool
}

// NewQueue creates a queue. bufferSize runs can wait before Publish blocks.
func NewQueue(bufferSize, workers int, store jobs.RunStore) *Queue {
	if workers <= 0 {
		workers = 1
	}
	return &Queue{
		runChan:   make(chan *jobs.Run, bufferSize),
		closeChan: make(chan struct{}),
		store:     store,
		workers:   workers,
	}
}

// Publish saves run as pending and enqueues it.
func (q *Queue) Publish(ctx context.Context, run *jobs.Run) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = jobs.RunStatusPending
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	if q.store != nil {
		if err := q.store.SaveRun(ctx, run); err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}
	}

	select {
	case q.runChan <- run:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return fmt.Errorf("queue is closed")
	}
}

// Start launches the workers.
func (q *Queue) Start(ctx context.Context, handler jobs.RunHandler) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return fmt.Errorf("queue is closed")
	}

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.RunHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case run := <-q.runChan:
			if run == nil {
				return
			}
			q.process(ctx, run, handler)
		}
	}
}

func (q *Queue) process(ctx context.Context, run *jobs.Run, handler jobs.RunHandler) {
	started := time.Now().UTC()
	run.Status = jobs.RunStatusRunning
	run.StartedAt = &started
	q.save(ctx, run)

	err := handler(ctx, run)

	completed := time.Now().UTC()
	run.CompletedAt = &completed

	if err != nil {
		run.Error = err.Error()
		run.Status = jobs.RunStatusFailed
	} else {
		run.Status = jobs.RunStatusCompleted
		run.Error = ""
	}
	q.save(ctx, run)
}

func (q *Queue) save(ctx context.Context, run *jobs.Run) {
	if q.store != nil {
		_ = q.store.SaveRun(ctx, run)
	}
}

// Stop closes the queue and waits for in-flight runs.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements jobs.Publisher.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var (
	_ jobs.Publisher = (*Queue)(nil)
	_ jobs.Consumer  = (*Queue)(nil)
)
