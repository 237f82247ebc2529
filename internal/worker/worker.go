// Package worker implements the dispatch loop (spec component C5): poll
// the queue, resolve the task name against the handler registry, run the
// handler, and route the outcome back through task_done/task_failed.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/RUBclim/vpf-730/internal/config"
	"github.com/RUBclim/vpf-730/internal/queue"
	"github.com/RUBclim/vpf-730/internal/registry"
	"github.com/RUBclim/vpf-730/internal/vpferr"
)

// DefaultPollInterval matches the original daemon's 100ms idle-queue sleep.
const DefaultPollInterval = 100 * time.Millisecond

// Worker polls q for eligible messages and dispatches them through reg.
// Its running flag, not ctx alone, gates the poll loop: Stop and Abort
// clear the flag so a task already in flight is allowed to finish. Only a
// cancellation of the ctx passed to Run asks an in-flight handler to
// return early; the Worker does not cancel that ctx itself.
type Worker struct {
	queue        *queue.Queue
	registry     *registry.Registry
	cfg          *config.Config
	log          *slog.Logger
	pollInterval time.Duration

	mu      sync.Mutex
	running bool

	done chan struct{}
}

// New builds a Worker. log defaults to slog.Default() if nil.
func New(q *queue.Queue, reg *registry.Registry, cfg *config.Config, log *slog.Logger, pollInterval time.Duration) *Worker {
	if log == nil {
		log = slog.Default()
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Worker{
		queue:        q,
		registry:     reg,
		cfg:          cfg,
		log:          log,
		pollInterval: pollInterval,
		done:         make(chan struct{}),
	}
}

// Run blocks, polling and dispatching until ctx is cancelled or Stop/Abort
// is called. It returns once the loop has exited.
func (w *Worker) Run(ctx context.Context) {
	w.mu.Lock()
	w.running = true
	w.mu.Unlock()

	defer close(w.done)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil || !w.isRunning() {
			return
		}

		empty, err := w.queue.Empty(ctx)
		if err != nil {
			w.log.Error("worker: qsize check failed", "error", err)
			select {
			case <-ticker.C:
				continue
			case <-ctx.Done():
				return
			}
		}

		if empty {
			select {
			case <-ticker.C:
				continue
			case <-ctx.Done():
				return
			}
		}

		w.dispatchNext(ctx)
	}
}

func (w *Worker) dispatchNext(ctx context.Context) {
	msg, err := w.queue.Get(ctx, queue.RouteQueue)
	if err != nil {
		w.log.Error("worker: fetch failed", "error", err)
		return
	}
	if msg == nil {
		// Another consumer won the race between Empty and Get; nothing to
		// do this tick.
		return
	}

	handler, ok := w.registry.Lookup(msg.Task)
	if !ok {
		w.log.Error("worker: no handler registered", "task", msg.Task, "id", msg.ID)
		if ferr := w.queue.TaskFailed(ctx, *msg); ferr != nil {
			w.log.Error("worker: task_failed bookkeeping failed", "id", msg.ID, "error", ferr)
		}
		return
	}

	if err := handler(ctx, *msg, w.cfg); err != nil {
		herr := &vpferr.HandlerError{Task: msg.Task, Err: err}
		w.log.Warn("worker: task failed", "task", msg.Task, "id", msg.ID, "retries", msg.Retries, "error", herr)
		if ferr := w.queue.TaskFailed(ctx, *msg); ferr != nil {
			w.log.Error("worker: task_failed bookkeeping failed", "id", msg.ID, "error", ferr)
		}
		return
	}

	if err := w.queue.TaskDone(ctx, *msg); err != nil {
		w.log.Error("worker: task_done bookkeeping failed", "id", msg.ID, "error", err)
		return
	}
	w.log.Debug("worker: task dispatched", "task", msg.Task, "id", msg.ID)
}

func (w *Worker) isRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Stop clears the running flag without cancelling the caller's context,
// letting Run drain its current dispatch before returning. Callers that
// want queue-drain semantics should call FinishAndJoin instead, which
// blocks until the queue is empty before calling Stop.
func (w *Worker) Stop() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
}

// FinishAndJoin blocks until the queue is empty, then stops the worker and
// waits for Run to return. It mirrors the original daemon's first-Ctrl-C
// behavior: let in-flight and already-enqueued work finish, then exit.
func (w *Worker) FinishAndJoin(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		empty, err := w.queue.Empty(ctx)
		if err != nil {
			w.log.Error("worker: qsize check failed during drain", "error", err)
		}
		if empty {
			break
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			w.Stop()
			<-w.done
			return
		}
	}

	w.Stop()
	<-w.done
}

// Abort stops the worker immediately without waiting for the queue to
// drain, mirroring the original daemon's second-Ctrl-C behavior: the
// in-flight task is allowed to return from its current handler call, but
// no further messages are dispatched.
func (w *Worker) Abort() {
	w.Stop()
	<-w.done
}
