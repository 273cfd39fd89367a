package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/sirupsen/logrus"
)

// ErrPoolClosed is returned by Submit after the pool has been shut down.
var ErrPoolClosed = errors.New("worker pool shut down")

// withOptionalTimeout derives a context bounded by timeout, or a plain cancelable
// context when timeout is not positive.
func withOptionalTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(parent, timeout)
	}
	return context.WithCancel(parent)
}

// SafeGo runs fn in a goroutine with panic recovery, an optional timeout and error
// logging. A timeout <= 0 means fn is bounded only by parentCtx.
//
//	async.SafeGo(ctx, logger, 0, "permission resolution", func(ctx context.Context) error {
//	    return resolve(ctx)
//	})
func SafeGo(parentCtx context.Context, logger logrus.FieldLogger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	go func() {
		ctx, cancel := withOptionalTimeout(parentCtx, timeout)
		defer cancel()
		defer observability.RecoverPanic(logger, taskName)

		if err := fn(ctx); err != nil {
			logger.WithError(err).WithField("task", taskName).Warn("background task failed")
		}
	}()
}

// WorkerPool runs submitted tasks on a fixed number of goroutines.
type WorkerPool struct {
	taskName string
	timeout  time.Duration
	logger   logrus.FieldLogger

	workCh chan func(context.Context) error
	doneCh chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool

	errMu sync.Mutex
	errs  []error
}

// NewWorkerPool starts a pool of workers. Each task gets its own timeout when timeout > 0.
//
//	pool := async.NewWorkerPool(ctx, logger, 4, "resolve", 10*time.Second)
//	defer pool.Shutdown(5 * time.Second)
func NewWorkerPool(ctx context.Context, logger logrus.FieldLogger, workers int, taskName string, timeout time.Duration) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(ctx)

	pool := &WorkerPool{
		taskName: taskName,
		timeout:  timeout,
		logger:   logger,
		workCh:   make(chan func(context.Context) error, workers*2),
		doneCh:   make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			pool.worker(id)
		}(i)
	}
	go func() {
		wg.Wait()
		close(pool.doneCh)
	}()

	return pool
}

// Submit queues a task. It blocks while the queue is full.
func (p *WorkerPool) Submit(fn func(context.Context) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.workCh <- fn:
		return nil
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// Wait stops accepting tasks and blocks until every queued task has run.
func (p *WorkerPool) Wait() []error {
	p.close()
	<-p.doneCh
	return p.Errors()
}

// Shutdown stops accepting tasks and waits up to timeout for workers to drain.
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	p.close()
	defer p.cancel()

	select {
	case <-p.doneCh:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("worker pool shutdown timed out after %v", timeout)
	}
}

// Errors returns the errors collected so far.
func (p *WorkerPool) Errors() []error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	out := make([]error, len(p.errs))
	copy(out, p.errs)
	return out
}

func (p *WorkerPool) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.workCh)
	}
}

func (p *WorkerPool) record(err error) {
	p.errMu.Lock()
	p.errs = append(p.errs, err)
	p.errMu.Unlock()
}

func (p *WorkerPool) worker(id int) {
	for fn := range p.workCh {
		if p.ctx.Err() != nil {
			p.record(p.ctx.Err())
			continue
		}
		p.run(id, fn)
	}
}

func (p *WorkerPool) run(id int, fn func(context.Context) error) {
	ctx, cancel := withOptionalTimeout(p.ctx, p.timeout)
	defer cancel()
	defer func() {
		if err := observability.MustRecover(recover()); err != nil {
			p.logger.WithError(err).WithFields(logrus.Fields{"task": p.taskName, "worker": id}).Error("worker task panicked")
			p.record(err)
		}
	}()

	if err := fn(ctx); err != nil {
		p.record(err)
	}
}

// Batch applies fn to every item with a bounded number of workers and returns all errors.
func Batch[T any](ctx context.Context, logger logrus.FieldLogger, items []T, workers int, taskName string, timeout time.Duration,
	fn func(context.Context, T) error) []error {

	pool := NewWorkerPool(ctx, logger, workers, taskName, timeout)
	for _, item := range items {
		item := item
		if err := pool.Submit(func(ctx context.Context) error {
			return fn(ctx, item)
		}); err != nil {
			pool.Wait()
			return append(pool.Errors(), err)
		}
	}
	errs := pool.Wait()
	pool.cancel()
	return errs
}

// Map is Batch for functions that produce a value. Results keep the order of items;
// a failed item leaves the zero value and contributes its error.
func Map[T, R any](ctx context.Context, logger logrus.FieldLogger, items []T, workers int, taskName string, timeout time.Duration,
	fn func(context.Context, T) (R, error)) ([]R, []error) {

	results := make([]R, len(items))
	indexes := make([]int, len(items))
	for i := range indexes {
		indexes[i] = i
	}

	errs := Batch(ctx, logger, indexes, workers, taskName, timeout, func(ctx context.Context, i int) error {
		r, err := fn(ctx, items[i])
		if err != nil {
			return err
		}
		results[i] = r
		return nil
	})
	return results, errs
}
