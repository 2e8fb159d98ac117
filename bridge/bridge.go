// Package bridge gives synchronous callers serialized access to a single
// long-lived executor. Chain operations submitted from any goroutine run one
// at a time, in submission order, on the executor goroutine that owns the
// client's network session; the calling goroutine blocks until its operation
// completes.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/r-near/near-harness/pkg/logger"
)

// ErrClosed is returned by Do after the bridge has been explicitly closed.
var ErrClosed = errors.New("bridge is closed")

// Op is a chain operation executed on the bridge's executor goroutine.
type Op func(ctx context.Context) error

// Bridge owns one executor goroutine and its lifetime. A Bridge must be
// closed before it is discarded; Close is idempotent.
type Bridge struct {
	lggr logger.Logger

	mu     sync.Mutex
	w      *worker
	closed bool
}

// New creates a Bridge with a running executor.
func New(lggr logger.Logger) *Bridge {
	return &Bridge{
		lggr: lggr,
		w:    newWorker(),
	}
}

// Do runs op on the executor and blocks until it completes, returning the
// operation's error. If the executor is found dead at submission time (a
// prior operation panicked), a fresh executor is started and the submission
// is retried exactly once; operation errors themselves are never retried.
//
// If ctx expires while the operation is in flight, Do returns ctx.Err() and
// the operation keeps running to completion on the executor.
func (b *Bridge) Do(ctx context.Context, op Op) error {
	t := task{ctx: ctx, op: op, result: make(chan error, 1)}

	for attempt := 0; ; attempt++ {
		w, err := b.acquireWorker()
		if err != nil {
			return err
		}

		if serr := w.submit(t); serr != nil {
			if errors.Is(serr, errWorkerDead) && attempt == 0 {
				continue
			}
			if errors.Is(serr, errWorkerDead) {
				return fmt.Errorf("executor unavailable after restart: %w", ErrClosed)
			}

			return serr
		}

		select {
		case err := <-t.result:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Call runs op on b's executor and returns its value synchronously.
func Call[T any](ctx context.Context, b *Bridge, op func(ctx context.Context) (T, error)) (T, error) {
	var out T

	err := b.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v

		return nil
	})

	return out, err
}

// Close stops the executor and releases its resources. Safe to call more
// than once.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	b.w.shutdown()
}

// acquireWorker returns the live executor, replacing it when a previous
// operation killed it. Closed-ness is a structural flag, never inferred from
// error text.
func (b *Bridge) acquireWorker() (*worker, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	if b.w.dead() {
		b.lggr.Warnw("Executor is gone, starting a new one")
		b.w = newWorker()
	}

	return b.w, nil
}

type task struct {
	ctx    context.Context //nolint:containedctx // carried with the op to the executor goroutine
	op     Op
	result chan error
}

// worker is one executor goroutine. It processes tasks strictly in the order
// it receives them.
type worker struct {
	ops  chan task
	stop chan struct{}
	done chan struct{}

	stopOnce sync.Once
}

func newWorker() *worker {
	w := &worker{
		ops:  make(chan task),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go w.run()

	return w
}

func (w *worker) run() {
	defer close(w.done)

	for {
		select {
		case <-w.stop:
			return
		case t := <-w.ops:
			err, panicked := execute(t)
			t.result <- err
			if panicked {
				// The executor's state is suspect after a panic; die and
				// let the bridge start a fresh one on the next submission.
				return
			}
		}
	}
}

func execute(t task) (err error, panicked bool) {
	panicked = true
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("operation panicked: %v", r)
		}
	}()

	err = t.op(t.ctx)
	panicked = false

	return err, panicked
}

var errWorkerDead = errors.New("executor has exited")

// submit hands t to the executor. It fails with errWorkerDead when the
// executor is gone, or with the context error when t's context expires
// before hand-off.
func (w *worker) submit(t task) error {
	select {
	case w.ops <- t:
		return nil
	case <-w.done:
		return errWorkerDead
	case <-t.ctx.Done():
		return t.ctx.Err()
	}
}

func (w *worker) dead() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

func (w *worker) shutdown() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
}
