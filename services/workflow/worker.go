package workflow

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Worker executes scheduled runs on a fixed-size pool. Activities of
// different runs may execute concurrently; within one run the body is
// strictly sequential.
type Worker struct {
	executor *Executor
	logger   *zap.Logger
	jobs     chan string
	wg       sync.WaitGroup
}

func NewWorker(executor *Executor, queueSize int, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Worker{
		executor: executor,
		logger:   logger.Named("worker"),
		jobs:     make(chan string, queueSize),
	}
}

// Start launches n workers that drain the queue until Stop is called or the
// context is cancelled.
func (w *Worker) Start(ctx context.Context, n int) {
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		w.wg.Add(1)
		go func(id int) {
			defer w.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case runID, ok := <-w.jobs:
					if !ok {
						return
					}
					if err := w.executor.Execute(ctx, runID); err != nil {
						w.logger.Error("workflow execution failed",
							zap.Int("worker_id", id),
							zap.String("workflow_id", runID),
							zap.Error(err),
						)
					}
				}
			}
		}(i)
	}
}

// Submit enqueues a run for execution.
func (w *Worker) Submit(runID string) {
	w.jobs <- runID
}

// Stop closes the queue and waits for in-flight runs to finish.
func (w *Worker) Stop() {
	close(w.jobs)
	w.wg.Wait()
}
