// Package queue implements the durable FIFO task queue (spec component
// C3): enqueue, lease-on-fetch, acknowledgement, failure/retry
// accounting, dead-letter routing, requeue, and pruning, persisted
// through the storage adapter in internal/storage/sqlite.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/RUBclim/vpf-730/internal/metrics"
	"github.com/RUBclim/vpf-730/internal/storage/sqlite"
	"github.com/RUBclim/vpf-730/internal/types"
)

// Route selects which of the two structurally identical tables an
// operation targets.
type Route string

const (
	RouteQueue      Route = sqlite.TableQueue
	RouteDeadletter Route = sqlite.TableDeadletter
)

const (
	// DefaultMaxRetries is the retry budget before a message is routed to
	// the deadletter table.
	DefaultMaxRetries = 5
	// DefaultKeepMsg is the prune retention: how many acknowledged rows
	// survive a prune run.
	DefaultKeepMsg = 10_000
	// DefaultPruneInterval is how many successful puts on the queue route
	// occur between automatic prune runs.
	DefaultPruneInterval = 1_000
)

// Queue is the durable FIFO queue and its dead-letter twin. All mutation
// happens through its methods; in-memory Message values returned by Get
// are read-only snapshots.
type Queue struct {
	store *sqlite.Store

	maxRetries    int
	keepMsg       int
	pruneInterval int

	mu         sync.Mutex
	putCounter int
}

// Option configures a Queue at construction.
type Option func(*Queue)

// WithMaxRetries overrides DefaultMaxRetries.
func WithMaxRetries(n int) Option { return func(q *Queue) { q.maxRetries = n } }

// WithKeepMsg overrides DefaultKeepMsg.
func WithKeepMsg(n int) Option { return func(q *Queue) { q.keepMsg = n } }

// WithPruneInterval overrides DefaultPruneInterval.
func WithPruneInterval(n int) Option { return func(q *Queue) { q.pruneInterval = n } }

// New opens dbPath (bootstrapping both tables) and returns a Queue.
func New(dbPath string, opts ...Option) (*Queue, error) {
	store, err := sqlite.Open(dbPath)
	if err != nil {
		return nil, err
	}

	q := &Queue{
		store:         store,
		maxRetries:    DefaultMaxRetries,
		keepMsg:       DefaultKeepMsg,
		pruneInterval: DefaultPruneInterval,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Close releases the underlying storage handle.
func (q *Queue) Close() error { return q.store.Close() }

func nowMillis() int64 { return time.Now().UTC().UnixMilli() }

// Put inserts msg into route, stamping enqueued (and, for a brand new
// message, first_enqueued) at the current time. On the queue route only,
// it increments the put counter; the counter is checked and, if it has
// reached pruneInterval, acted on in TaskDone, not here (see spec.md
// §4.3: put only increments, task_done is what trips the prune).
func (q *Queue) Put(ctx context.Context, msg types.Message, route Route) (types.Message, error) {
	now := nowMillis()

	// A fresh put's first_enqueued is "now". A message re-entering queue
	// via deadletter requeue, or entering deadletter via task_failed,
	// carries its original first_enqueued forward — see requeue/fail below,
	// which call putPreservingFirstEnqueued directly.
	if err := q.store.InsertRow(ctx, string(route), msg, now, now); err != nil {
		return msg, err
	}

	if route == RouteQueue {
		q.incrementPutCounter()
	}
	return msg, nil
}

func (q *Queue) putPreservingFirstEnqueued(ctx context.Context, msg types.Message, route Route, firstEnqueued int64) error {
	now := nowMillis()
	if err := q.store.InsertRow(ctx, string(route), msg, now, firstEnqueued); err != nil {
		return err
	}
	if route == RouteQueue {
		q.incrementPutCounter()
	}
	return nil
}

func (q *Queue) incrementPutCounter() {
	q.mu.Lock()
	q.putCounter++
	q.mu.Unlock()
}

// pruneDue reports whether the put counter has reached pruneInterval,
// resetting it if so.
func (q *Queue) pruneDue() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	due := q.putCounter >= q.pruneInterval
	if due {
		q.putCounter = 0
	}
	return due
}

// Get leases and returns the oldest eligible message on route, or nil if
// none is eligible. On RouteQueue, eligibility additionally requires
// eta IS NULL OR eta <= now, and the row is leased (fetched stamped). On
// RouteDeadletter, no eta predicate applies and no lease is taken —
// dead-letter rows are drained by DeadletterRequeue, not dispatched.
func (q *Queue) Get(ctx context.Context, route Route) (*types.Message, error) {
	withETA := route == RouteQueue
	lease := route == RouteQueue

	row, err := q.store.FetchEligible(ctx, string(route), nowMillis(), withETA, lease)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}

	msg, err := types.FromRow(*row)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// TaskDone acknowledges msg on the queue route, then runs prune if the
// put counter has reached pruneInterval (spec.md §4.3: put increments
// the counter, task_done is what checks it and trips _prune).
func (q *Queue) TaskDone(ctx context.Context, msg types.Message) error {
	if err := q.store.MarkAcked(ctx, sqlite.TableQueue, idHexOf(msg), nowMillis()); err != nil {
		return err
	}

	if q.pruneDue() {
		// Storage errors during an automatic prune are not fatal to the
		// task_done that triggered it; they're swallowed here the way
		// §4.3 describes prune as a best-effort maintenance step. Callers
		// that need prune errors surfaced use Prune directly.
		_ = q.Prune(ctx, RouteQueue)
	}
	return nil
}

// TaskFailed applies the retry/dead-letter policy: a message whose
// retries already reached maxRetries is deleted from queue and re-put on
// deadletter (preserving its retries count and original first_enqueued);
// otherwise its retries are incremented and its lease released so it's
// eligible again on the next fetch.
func (q *Queue) TaskFailed(ctx context.Context, msg types.Message) error {
	id := idHexOf(msg)

	if msg.Retries >= q.maxRetries {
		firstEnqueued, err := q.store.FirstEnqueued(ctx, sqlite.TableQueue, id)
		if err != nil {
			return err
		}
		if err := q.store.DeleteRow(ctx, sqlite.TableQueue, id); err != nil {
			return err
		}
		if err := q.putPreservingFirstEnqueued(ctx, msg, RouteDeadletter, firstEnqueued); err != nil {
			return err
		}
		metrics.Deadlettered.Add(ctx, 1)
		return nil
	}

	metrics.Retries.Add(ctx, 1)
	return q.store.SetRetriesAndRelease(ctx, sqlite.TableQueue, id, msg.Retries+1)
}

// DeadletterRequeue drains every dead-letter message back onto the queue
// with retries reset to 0, preserving each message's original
// first_enqueued.
func (q *Queue) DeadletterRequeue(ctx context.Context) error {
	for {
		empty, err := q.DeadletterEmpty(ctx)
		if err != nil {
			return err
		}
		if empty {
			return nil
		}

		msg, err := q.Get(ctx, RouteDeadletter)
		if err != nil {
			return err
		}
		if msg == nil {
			return nil
		}

		id := idHexOf(*msg)
		firstEnqueued, err := q.store.FirstEnqueued(ctx, sqlite.TableDeadletter, id)
		if err != nil {
			return err
		}

		msg.Retries = 0
		if err := q.putPreservingFirstEnqueued(ctx, *msg, RouteQueue, firstEnqueued); err != nil {
			return err
		}
		if err := q.store.DeleteRow(ctx, sqlite.TableDeadletter, id); err != nil {
			return err
		}
	}
}

// QSize returns the number of eligible (leasable) rows on the queue.
func (q *Queue) QSize(ctx context.Context) (int, error) {
	return q.store.CountEligible(ctx, sqlite.TableQueue, nowMillis(), true)
}

// DeadletterQSize returns the number of rows on the deadletter table.
func (q *Queue) DeadletterQSize(ctx context.Context) (int, error) {
	return q.store.CountEligible(ctx, sqlite.TableDeadletter, nowMillis(), false)
}

// Empty reports whether QSize is zero.
func (q *Queue) Empty(ctx context.Context) (bool, error) {
	n, err := q.QSize(ctx)
	return n == 0, err
}

// DeadletterEmpty reports whether DeadletterQSize is zero.
func (q *Queue) DeadletterEmpty(ctx context.Context) (bool, error) {
	n, err := q.DeadletterQSize(ctx)
	return n == 0, err
}

// Prune deletes acknowledged rows on route beyond the keepMsg retention
// and compacts the store. It is invoked automatically by TaskDone every
// pruneInterval puts, and can also be called directly; the queue CLI
// subcommand does not expose it.
func (q *Queue) Prune(ctx context.Context, route Route) error {
	if err := q.store.PruneDone(ctx, string(route), q.keepMsg); err != nil {
		return err
	}
	metrics.Pruned.Add(ctx, 1)
	return nil
}

func idHexOf(msg types.Message) string {
	fields, err := msg.Serialize()
	if err != nil {
		return ""
	}
	return fields["id"].(string)
}
