package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sophialabs/mimicry/internal/domain/endpoint"
	"github.com/sophialabs/mimicry/internal/domain/match"
	"github.com/sophialabs/mimicry/internal/infrastructure/ports"
)

var _ match.EndpointSource = (*RuleCache)(nil)

// ruleEntry keeps the stored endpoint next to its compiled form so that
// rules can be recompiled without refetching the endpoint.
type ruleEntry struct {
	stored endpoint.Endpoint
	cached *match.CachedEndpoint
}

// ruleSnapshot is immutable once published.
type ruleSnapshot struct {
	ordered []*ruleEntry
	byID    map[string]*ruleEntry
	list    []*match.CachedEndpoint
}

// RuleCache holds the active endpoints and rules. Readers load the current
// snapshot without locking; writers build a replacement and swap it in.
type RuleCache struct {
	endpoints endpoint.Repository
	rules     endpoint.RuleRepository
	compiler  *Compiler
	logger    ports.Logger

	snap    atomic.Pointer[ruleSnapshot]
	writeMu sync.Mutex
}

// NewRuleCache creates an empty RuleCache.
func NewRuleCache(endpoints endpoint.Repository, rules endpoint.RuleRepository, compiler *Compiler, logger ports.Logger) *RuleCache {
	c := &RuleCache{endpoints: endpoints, rules: rules, compiler: compiler, logger: logger}
	c.snap.Store(newRuleSnapshot(nil, logger))
	return c
}

// Endpoints returns the cached endpoints in ascending creation order.
func (c *RuleCache) Endpoints() []*match.CachedEndpoint {
	return c.snap.Load().list
}

// Endpoint returns one cached endpoint.
func (c *RuleCache) Endpoint(id string) (*match.CachedEndpoint, bool) {
	e, ok := c.snap.Load().byID[id]
	if !ok {
		return nil, false
	}
	return e.cached, true
}

// Protocol returns the protocol of a cached endpoint, REST if unknown.
func (c *RuleCache) Protocol(id string) endpoint.Protocol {
	if e, ok := c.snap.Load().byID[id]; ok {
		return e.cached.Protocol
	}
	return endpoint.ProtocolREST
}

// LoadAll rebuilds the whole snapshot from the repositories.
func (c *RuleCache) LoadAll(ctx context.Context) error {
	eps, err := c.endpoints.GetAllActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to load endpoints: %w", err)
	}

	entries := make([]*ruleEntry, 0, len(eps))
	for _, ep := range eps {
		e, err := c.build(ctx, ep)
		if err != nil {
			return err
		}
		entries = append(entries, e)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	next := newRuleSnapshot(entries, c.logger)
	c.snap.Store(next)
	c.logger.Info("rule cache loaded", "endpoints", len(next.list))
	return nil
}

// ReloadEndpoint refreshes one endpoint and its rules. An endpoint that no
// longer exists or is inactive is removed.
func (c *RuleCache) ReloadEndpoint(ctx context.Context, id string) error {
	ep, err := c.endpoints.GetByID(ctx, id)
	if errors.Is(err, endpoint.ErrNotFound) || (err == nil && !ep.IsActive) {
		c.RemoveEndpoint(id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load endpoint %q: %w", id, err)
	}

	e, err := c.build(ctx, ep)
	if err != nil {
		return err
	}
	c.replace(e, false)
	return nil
}

// ReloadRulesForEndpoint refreshes the rules of an already cached endpoint.
func (c *RuleCache) ReloadRulesForEndpoint(ctx context.Context, id string) error {
	cur, ok := c.snap.Load().byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", endpoint.ErrNotFound, id)
	}
	stored := cur.stored

	e, err := c.build(ctx, &stored)
	if err != nil {
		return err
	}
	if !c.replace(e, true) {
		return fmt.Errorf("%w: %s", endpoint.ErrNotFound, id)
	}
	return nil
}

// RemoveEndpoint drops one endpoint from the snapshot. It reports whether
// the endpoint was cached.
func (c *RuleCache) RemoveEndpoint(id string) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	cur := c.snap.Load()
	if _, ok := cur.byID[id]; !ok {
		return false
	}
	entries := make([]*ruleEntry, 0, len(cur.ordered))
	for _, e := range cur.ordered {
		if e.stored.ID != id {
			entries = append(entries, e)
		}
	}
	c.snap.Store(newRuleSnapshot(entries, c.logger))
	return true
}

// replace swaps in e for the entry with the same ID, appending it when
// absent unless onlyIfCached is set.
func (c *RuleCache) replace(e *ruleEntry, onlyIfCached bool) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	cur := c.snap.Load()
	entries := make([]*ruleEntry, 0, len(cur.ordered)+1)
	replaced := false
	for _, old := range cur.ordered {
		if old.stored.ID == e.stored.ID {
			entries = append(entries, e)
			replaced = true
			continue
		}
		entries = append(entries, old)
	}
	if !replaced {
		if onlyIfCached {
			return false
		}
		entries = append(entries, e)
	}
	c.snap.Store(newRuleSnapshot(entries, c.logger))
	return true
}

func (c *RuleCache) build(ctx context.Context, ep *endpoint.Endpoint) (*ruleEntry, error) {
	rules, err := c.rules.GetByEndpointID(ctx, ep.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules for endpoint %q: %w", ep.ID, err)
	}
	cached, warnings := c.compiler.CompileEndpoint(ep, rules)
	for _, w := range warnings {
		c.logger.Warn("endpoint compiled with warnings", "endpoint", ep.ID, "error", w)
	}
	return &ruleEntry{stored: *ep, cached: cached}, nil
}

// newRuleSnapshot orders entries by creation time, keeping the given order
// for ties, and keeps only the first endpoint per method and path template.
func newRuleSnapshot(entries []*ruleEntry, logger ports.Logger) *ruleSnapshot {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].stored.CreatedAt.Before(entries[j].stored.CreatedAt)
	})

	s := &ruleSnapshot{byID: make(map[string]*ruleEntry, len(entries))}
	routes := make(map[string]string, len(entries))
	for _, e := range entries {
		if _, dup := s.byID[e.stored.ID]; dup {
			logger.Warn("duplicate endpoint id dropped", "endpoint", e.stored.ID)
			continue
		}
		key := routeKey(e.cached.HTTPMethod, e.cached.Path)
		if owner, taken := routes[key]; taken {
			logger.Warn("endpoint dropped: method and path already served",
				"endpoint", e.stored.ID, "served_by", owner, "route", key)
			continue
		}
		routes[key] = e.stored.ID
		s.ordered = append(s.ordered, e)
		s.byID[e.stored.ID] = e
		s.list = append(s.list, e.cached)
	}
	return s
}

// routeKey normalizes a method and path template so that templates that
// differ only in case, slashes or parameter names collide.
func routeKey(method, template string) string {
	segs := strings.Split(strings.Trim(template, "/"), "/")
	for i, seg := range segs {
		if len(seg) > 2 && seg[0] == '{' && seg[len(seg)-1] == '}' {
			segs[i] = "{}"
		} else {
			segs[i] = strings.ToLower(seg)
		}
	}
	return strings.ToUpper(method) + " /" + strings.Join(segs, "/")
}
