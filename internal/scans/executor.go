package scans

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/imageguard-labs/imageguard-backend/pkg/logger"
)

// Executor detaches scan orchestration from the creating request. Every
// dispatched run owns a recover boundary: a panic is converted into the
// failure callback so a scan can always be finalized.
type Executor struct {
	timeout time.Duration
	logg    *logger.Logger
	wg      sync.WaitGroup
}

// NewExecutor builds an executor whose runs are bounded by timeout.
func NewExecutor(timeout time.Duration, logg *logger.Logger) *Executor {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Executor{timeout: timeout, logg: logg}
}

// Dispatch runs fn on its own goroutine with a fresh bounded context. When
// fn returns an error or panics, fail is invoked with a context that is
// still alive so status finalization can be persisted.
func (e *Executor) Dispatch(run func(ctx context.Context) error, fail func(ctx context.Context, cause error)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()

		err := e.guarded(ctx, run)
		if err == nil {
			return
		}

		// Finalization gets its own deadline in case the run burned the
		// dispatch timeout.
		finalCtx, finalCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer finalCancel()
		fail(finalCtx, err)
	}()
}

func (e *Executor) guarded(ctx context.Context, run func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logg.Error(e.logg.WithField(ctx, "stack", string(debug.Stack())), "scan run panicked", fmt.Errorf("%v", r))
			err = fmt.Errorf("scan run panicked: %v", r)
		}
	}()
	return run(ctx)
}

// Wait blocks until all dispatched runs have finished. Used on shutdown.
func (e *Executor) Wait() {
	e.wg.Wait()
}
