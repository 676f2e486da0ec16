package ports

import (
	"context"
	"time"

	"github.com/sophialabs/mimicry/internal/domain/match"
	"github.com/sophialabs/mimicry/internal/domain/proxy"
)

// Clock provides the current time (for testing).
type Clock interface {
	Now() time.Time
	// SleepContext blocks for d or until ctx is cancelled. Returns ctx.Err() if cancelled.
	SleepContext(ctx context.Context, d time.Duration) error
}

// Logger provides structured logging.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}

// RateLimiter checks whether a request is allowed under rate limits.
type RateLimiter interface {
	// Allow checks if a request identified by key is within the rate limit.
	// rate is tokens per second, burst is the max burst size.
	Allow(ctx context.Context, key string, rate float64, burst int) bool
}

// Forwarder sends a request to a real upstream. The boolean is false when
// the upstream produced no response for any reason.
type Forwarder interface {
	Forward(ctx context.Context, rc *match.RequestContext, route *proxy.Route) (*proxy.Response, bool)
}

// Recorder stores a proxied exchange for later replay.
type Recorder interface {
	Record(ctx context.Context, ex proxy.Exchange) error
}

// Metrics receives request pipeline observations.
type Metrics interface {
	ObserveRequest(outcome string, d time.Duration)
	FaultInjected(faultType string)
	ProxyResult(result string)
	ScenarioTransition(scenarioID string)
}
