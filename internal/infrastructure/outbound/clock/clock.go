package clock

import (
	"context"
	"time"

	"github.com/sophialabs/mimicry/internal/infrastructure/ports"
)

var _ ports.Clock = System{}

// System implements ports.Clock on the wall clock. Times are reported in UTC
// so audit entries and template timestamps do not depend on the host zone.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

// SleepContext waits for d unless ctx ends first. A non-positive d only
// reports the context state.
func (System) SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
