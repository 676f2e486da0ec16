package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/sophialabs/mimicry/internal/domain/match"
	"github.com/sophialabs/mimicry/internal/domain/proxy"
	"github.com/sophialabs/mimicry/internal/infrastructure/ports"
)

var _ ports.Forwarder = (*Forwarder)(nil)

const defaultTimeout = 30 * time.Second

var errThrottled = errors.New("upstream rate limit exceeded")

// Config tunes the circuit breakers shared by all targets.
type Config struct {
	// BreakerFailures is the number of consecutive failures that opens a
	// target's circuit. Zero disables breaking.
	BreakerFailures int
	BreakerCooldown time.Duration
	// MaxBodyBytes caps the upstream body read. Zero means 10 MiB.
	MaxBodyBytes int64
}

// Forwarder sends unmatched requests to real upstreams.
type Forwarder struct {
	client  *http.Client
	limiter ports.RateLimiter
	logger  ports.Logger
	cfg     Config

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*proxy.Response]
}

// NewForwarder creates a Forwarder. A nil client gets a default transport;
// redirects are never followed either way.
func NewForwarder(client *http.Client, limiter ports.RateLimiter, logger ports.Logger, cfg Config) *Forwarder {
	if client == nil {
		client = &http.Client{}
	}
	c := *client
	c.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	return &Forwarder{
		client:   &c,
		limiter:  limiter,
		logger:   logger,
		cfg:      cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker[*proxy.Response]),
	}
}

// Forward relays rc to the route's target. Any failure, including a
// throttled or open circuit, is reported as false and logged.
func (f *Forwarder) Forward(ctx context.Context, rc *match.RequestContext, route *proxy.Route) (*proxy.Response, bool) {
	t := route.Target
	target := BuildURL(t.TargetBaseURL, t.StripPathPrefix, rc.Path, rc.QueryString)

	if rl := t.RateLimit; rl != nil && f.limiter != nil {
		if !f.limiter.Allow(ctx, breakerKey(t), rl.Rate, rl.Burst) {
			f.logger.Warn("proxy request throttled", "proxy", t.ID, "url", target, "error", errThrottled)
			return nil, false
		}
	}

	call := func() (*proxy.Response, error) { return f.do(ctx, rc, route, target) }
	var (
		resp *proxy.Response
		err  error
	)
	if cb := f.breaker(t); cb != nil {
		resp, err = cb.Execute(call)
	} else {
		resp, err = call()
	}
	if err != nil {
		f.logger.Warn("proxy request failed", "proxy", t.ID, "url", target, "error", err)
		return nil, false
	}
	return resp, true
}

func (f *Forwarder) do(ctx context.Context, rc *match.RequestContext, route *proxy.Route, target string) (*proxy.Response, error) {
	timeout := defaultTimeout
	if route.Target.TimeoutMs > 0 {
		timeout = time.Duration(route.Target.TimeoutMs) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if len(rc.Body) > 0 {
		body = bytes.NewReader(rc.Body)
	}
	req, err := http.NewRequestWithContext(ctx, rc.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	if route.Target.ForwardHeaders {
		for k, v := range rc.Headers {
			if proxy.IsHopByHop(k) || strings.EqualFold(k, "Host") || strings.EqualFold(k, "Content-Length") {
				continue
			}
			req.Header.Set(k, v)
		}
	}
	for k, v := range route.Headers {
		if !proxy.IsHopByHop(k) {
			req.Header.Set(k, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read upstream body: %w", err)
	}

	headers := make(http.Header, len(resp.Header))
	for k, vs := range resp.Header {
		if !proxy.IsHopByHop(k) {
			headers[k] = append([]string(nil), vs...)
		}
	}
	return &proxy.Response{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       data,
		TargetURL:  target,
	}, nil
}

func (f *Forwarder) breaker(t *proxy.Target) *gobreaker.CircuitBreaker[*proxy.Response] {
	if f.cfg.BreakerFailures <= 0 {
		return nil
	}
	key := breakerKey(t)

	f.mu.Lock()
	defer f.mu.Unlock()
	if cb, ok := f.breakers[key]; ok {
		return cb
	}
	threshold := uint32(f.cfg.BreakerFailures)
	cb := gobreaker.NewCircuitBreaker[*proxy.Response](gobreaker.Settings{
		Name:        key,
		MaxRequests: 1,
		Timeout:     f.cfg.BreakerCooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		// A client that hung up says nothing about the upstream.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			f.logger.Warn("proxy circuit state changed", "target", name, "from", from.String(), "to", to.String())
		},
	})
	f.breakers[key] = cb
	return cb
}

// BreakerState reports the circuit state of a target, "closed" when it
// has never been called or breaking is disabled.
func (f *Forwarder) BreakerState(t *proxy.Target) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cb, ok := f.breakers[breakerKey(t)]; ok {
		return cb.State().String()
	}
	return gobreaker.StateClosed.String()
}

func breakerKey(t *proxy.Target) string {
	return t.ID + "|" + t.TargetBaseURL
}

// BuildURL joins base and path after removing prefix from the front of path
// (case-insensitive), then appends the raw query.
func BuildURL(base, prefix, path, rawQuery string) string {
	if prefix = strings.TrimRight(prefix, "/"); prefix != "" &&
		len(path) >= len(prefix) && strings.EqualFold(path[:len(prefix)], prefix) {
		rest := path[len(prefix):]
		if rest == "" || rest[0] == '/' {
			path = rest
		}
	}
	if path != "" && path[0] != '/' {
		path = "/" + path
	}
	u := strings.TrimRight(base, "/") + path
	if rawQuery = strings.TrimPrefix(rawQuery, "?"); rawQuery != "" {
		u += "?" + rawQuery
	}
	return u
}
