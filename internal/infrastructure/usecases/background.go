package usecases

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sophialabs/mimicry/internal/infrastructure/ports"
)

// Background runs fire-and-forget side effects. Each task gets its own
// timeout and panic boundary; failures are logged and never propagate.
type Background struct {
	logger  ports.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewBackground creates a runner. A non-positive timeout means five seconds.
func NewBackground(logger ports.Logger, timeout time.Duration) *Background {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Background{logger: logger, timeout: timeout}
}

// Go runs fn on a detached goroutine.
func (b *Background) Go(task string, fn func(ctx context.Context) error) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("background task panicked", "task", task, "error", fmt.Sprint(r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			b.logger.Warn("background task failed", "task", task, "error", err)
		}
	}()
}

// Wait blocks until every started task has finished.
func (b *Background) Wait() {
	b.wg.Wait()
}
