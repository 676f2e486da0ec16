package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/sophialabs/mimicry/internal/domain/audit"
	"github.com/sophialabs/mimicry/internal/domain/match"
	"github.com/sophialabs/mimicry/internal/domain/proxy"
	"github.com/sophialabs/mimicry/internal/infrastructure/ports"
)

var _ ports.Logger = (*NoopLogger)(nil)

// NoopLogger discards all log output.
type NoopLogger struct{}

func (l *NoopLogger) Info(string, ...any)  {}
func (l *NoopLogger) Warn(string, ...any)  {}
func (l *NoopLogger) Error(string, ...any) {}
func (l *NoopLogger) Debug(string, ...any) {}

var _ ports.Clock = (*FixedClock)(nil)

// FixedClock returns a fixed time and never sleeps. Requested sleeps are
// recorded in Slept. The time only moves through Advance.
type FixedClock struct {
	T time.Time

	mu    sync.Mutex
	Slept []time.Duration
}

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.T
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.T = c.T.Add(d)
	c.mu.Unlock()
}

func (c *FixedClock) SleepContext(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.Slept = append(c.Slept, d)
	c.mu.Unlock()
	return ctx.Err()
}

// Sleeps returns a copy of the recorded sleeps.
func (c *FixedClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.Slept...)
}

var _ ports.RateLimiter = (*StubRateLimiter)(nil)

// StubRateLimiter returns a configurable Allow result.
type StubRateLimiter struct {
	AllowAll bool
}

func (r *StubRateLimiter) Allow(context.Context, string, float64, int) bool {
	return r.AllowAll
}

var _ match.BodyRenderer = (*StubBodyRenderer)(nil)

// StubBodyRenderer returns a configurable render result.
type StubBodyRenderer struct {
	Result []byte
	Err    error
}

func (r *StubBodyRenderer) Render(match.RenderContext) ([]byte, error) {
	return r.Result, r.Err
}

var _ ports.Forwarder = (*StubForwarder)(nil)

// StubForwarder answers every Forward call with Response; a nil Response
// means the upstream is unavailable.
type StubForwarder struct {
	Response *proxy.Response

	mu    sync.Mutex
	Calls []*proxy.Route
}

func (f *StubForwarder) Forward(_ context.Context, _ *match.RequestContext, route *proxy.Route) (*proxy.Response, bool) {
	f.mu.Lock()
	f.Calls = append(f.Calls, route)
	f.mu.Unlock()
	return f.Response, f.Response != nil
}

// CallCount returns how many times Forward was called.
func (f *StubForwarder) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

var _ ports.Recorder = (*MemoryRecorder)(nil)

// MemoryRecorder keeps recorded exchanges in memory.
type MemoryRecorder struct {
	mu        sync.Mutex
	Exchanges []proxy.Exchange
	Err       error
}

func (r *MemoryRecorder) Record(_ context.Context, ex proxy.Exchange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Exchanges = append(r.Exchanges, ex)
	return r.Err
}

// Recorded returns a copy of the recorded exchanges.
func (r *MemoryRecorder) Recorded() []proxy.Exchange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]proxy.Exchange(nil), r.Exchanges...)
}

var _ ports.Metrics = (*NoopMetrics)(nil)

// NoopMetrics discards all observations.
type NoopMetrics struct{}

func (NoopMetrics) ObserveRequest(string, time.Duration) {}
func (NoopMetrics) FaultInjected(string)                 {}
func (NoopMetrics) ProxyResult(string)                   {}
func (NoopMetrics) ScenarioTransition(string)            {}

var _ audit.Sink = (*MemorySink)(nil)

// MemorySink keeps appended audit entries in memory. Err, when set, is
// returned after the entry is stored.
type MemorySink struct {
	mu      sync.Mutex
	entries []audit.Entry
	Err     error
}

func (s *MemorySink) Append(_ context.Context, e audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return s.Err
}

// Entries returns a copy of the appended entries.
func (s *MemorySink) Entries() []audit.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Entry(nil), s.entries...)
}
