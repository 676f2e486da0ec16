package services

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/sophialabs/mimicry/internal/domain/proxy"
	"github.com/sophialabs/mimicry/internal/infrastructure/ports"
)

type proxySnapshot struct {
	byService map[string]*proxy.Route
	global    *proxy.Route
	all       []*proxy.Route
}

// ProxyCache holds the active proxy targets by service name plus the global
// proxy configuration, swapped atomically on reload.
type ProxyCache struct {
	services proxy.ServiceRepository
	config   proxy.ConfigRepository
	logger   ports.Logger

	snap atomic.Pointer[proxySnapshot]
}

// NewProxyCache creates an empty ProxyCache.
func NewProxyCache(services proxy.ServiceRepository, config proxy.ConfigRepository, logger ports.Logger) *ProxyCache {
	c := &ProxyCache{services: services, config: config, logger: logger}
	c.snap.Store(&proxySnapshot{byService: map[string]*proxy.Route{}})
	return c
}

// LoadAll rebuilds the snapshot from the repositories.
func (c *ProxyCache) LoadAll(ctx context.Context) error {
	targets, err := c.services.GetAllActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to load service proxies: %w", err)
	}
	global, err := c.config.GetActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to load proxy config: %w", err)
	}

	next := &proxySnapshot{byService: make(map[string]*proxy.Route, len(targets))}
	for _, t := range targets {
		key := strings.ToLower(t.ServiceName)
		if _, dup := next.byService[key]; dup {
			c.logger.Warn("duplicate service proxy ignored", "service", t.ServiceName, "proxy", t.ID)
			continue
		}
		r := c.route(t)
		next.byService[key] = r
		next.all = append(next.all, r)
	}
	if global != nil {
		next.global = c.route(global)
		next.all = append(next.all, next.global)
	}

	c.snap.Store(next)
	c.logger.Info("proxy cache loaded", "service_proxies", len(next.byService), "global", global != nil)
	return nil
}

func (c *ProxyCache) route(t *proxy.Target) *proxy.Route {
	cp := *t
	headers, err := ParseHeaderBlob(t.AdditionalHeaders)
	if err != nil {
		c.logger.Warn("proxy additional headers ignored", "proxy", t.ID, "error", err)
	}
	return &proxy.Route{Target: &cp, Headers: headers}
}

// Lookup returns the fallback route for a service: its own proxy when that
// is eligible, otherwise the global configuration when eligible.
func (c *ProxyCache) Lookup(serviceName string) (*proxy.Route, bool) {
	s := c.snap.Load()
	if r, ok := s.byService[strings.ToLower(serviceName)]; ok && r.Target.Eligible() {
		return r, true
	}
	if s.global != nil && s.global.Target.Eligible() {
		return s.global, true
	}
	return nil, false
}

// Routes returns every cached route, the global one last.
func (c *ProxyCache) Routes() []*proxy.Route {
	return c.snap.Load().all
}
