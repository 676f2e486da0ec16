package filesystem

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/sophialabs/mimicry/internal/domain/endpoint"
	"github.com/sophialabs/mimicry/internal/domain/proxy"
	"github.com/sophialabs/mimicry/internal/domain/scenario"
)

var (
	_ endpoint.Repository     = (*YAMLRepository)(nil)
	_ endpoint.RuleRepository = (*YAMLRepository)(nil)
	_ proxy.ConfigRepository  = (*YAMLRepository)(nil)
	_ proxy.ServiceRepository = proxyView{}
	_ scenario.Repository     = scenarioView{}
)

// StateFileName holds persisted scenario states inside the root. It is not
// a YAML file, so writing it never triggers a reload.
const StateFileName = ".mimicry-state.json"

// catalog is everything one walk of the root produced.
type catalog struct {
	endpoints []*endpoint.Endpoint
	byID      map[string]*endpoint.Endpoint
	rules     map[string][]*endpoint.Rule
	proxies   []*proxy.Target
	global    *proxy.Target
	scenarios []*scenario.Scenario
}

// YAMLRepository reads endpoint, proxy and scenario definitions from the
// YAML files below a root directory.
//
// Full reads (GetAllActive, GetByID) walk the tree again; rule and global
// proxy lookups are answered from the most recent walk, so a cache rebuild
// sees one consistent set of files.
type YAMLRepository struct {
	root     string
	resolver *IncludeResolver
	states   *StateFile

	mu   sync.Mutex
	last *catalog
}

// NewYAMLRepository creates a repository rooted at dir.
func NewYAMLRepository(dir string) (*YAMLRepository, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root directory: %w", err)
	}
	return &YAMLRepository{
		root:     root,
		resolver: NewIncludeResolver(root),
		states:   NewStateFile(filepath.Join(root, StateFileName)),
	}, nil
}

// Root returns the absolute root directory.
func (r *YAMLRepository) Root() string { return r.root }

// GetAllActive returns the active endpoints in file order.
func (r *YAMLRepository) GetAllActive(ctx context.Context) ([]*endpoint.Endpoint, error) {
	c, err := r.scan(ctx)
	if err != nil {
		return nil, err
	}
	var out []*endpoint.Endpoint
	for _, e := range c.endpoints {
		if e.IsActive {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// GetByID returns one endpoint, active or not.
func (r *YAMLRepository) GetByID(ctx context.Context, id string) (*endpoint.Endpoint, error) {
	c, err := r.scan(ctx)
	if err != nil {
		return nil, err
	}
	e, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", endpoint.ErrNotFound, id)
	}
	cp := *e
	return &cp, nil
}

// GetByEndpointID returns every rule of an endpoint, active or not.
func (r *YAMLRepository) GetByEndpointID(ctx context.Context, endpointID string) ([]*endpoint.Rule, error) {
	c, err := r.current(ctx)
	if err != nil {
		return nil, err
	}
	rules := c.rules[endpointID]
	out := make([]*endpoint.Rule, 0, len(rules))
	for _, rl := range rules {
		cp := *rl
		out = append(out, &cp)
	}
	return out, nil
}

// GetActive returns the global proxy configuration when one is declared
// and active.
func (r *YAMLRepository) GetActive(ctx context.Context) (*proxy.Target, error) {
	c, err := r.current(ctx)
	if err != nil {
		return nil, err
	}
	if c.global == nil || !c.global.IsActive {
		return nil, nil
	}
	cp := *c.global
	return &cp, nil
}

// Proxies exposes the per-service proxies as a proxy.ServiceRepository.
func (r *YAMLRepository) Proxies() proxy.ServiceRepository { return proxyView{r} }

// Scenarios exposes scenarios and their persisted state as a
// scenario.Repository.
func (r *YAMLRepository) Scenarios() scenario.Repository { return scenarioView{r} }

type proxyView struct{ r *YAMLRepository }

func (v proxyView) GetAllActive(ctx context.Context) ([]*proxy.Target, error) {
	c, err := v.r.scan(ctx)
	if err != nil {
		return nil, err
	}
	var out []*proxy.Target
	for _, t := range c.proxies {
		if t.IsActive {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

type scenarioView struct{ r *YAMLRepository }

func (v scenarioView) GetAllActive(ctx context.Context) ([]*scenario.Scenario, error) {
	c, err := v.r.scan(ctx)
	if err != nil {
		return nil, err
	}
	stored, err := v.r.states.Snapshot()
	if err != nil {
		return nil, err
	}
	var out []*scenario.Scenario
	for _, s := range c.scenarios {
		if !s.IsActive {
			continue
		}
		cp := *s
		if st, ok := stored[s.ID]; ok {
			cp.CurrentState = st.State
			cp.StateVersion = st.Version
		}
		out = append(out, &cp)
	}
	return out, nil
}

func (v scenarioView) UpdateCurrentState(_ context.Context, id, state string, version uint64) error {
	return v.r.states.Put(id, state, version)
}

func (r *YAMLRepository) current(ctx context.Context) (*catalog, error) {
	r.mu.Lock()
	c := r.last
	r.mu.Unlock()
	if c != nil {
		return c, nil
	}
	return r.scan(ctx)
}

// scan walks the root in lexical order. One broken file fails the whole
// scan so a half-edited tree never replaces a working one.
func (r *YAMLRepository) scan(ctx context.Context) (*catalog, error) {
	c := &catalog{
		byID:  make(map[string]*endpoint.Endpoint),
		rules: make(map[string][]*endpoint.Rule),
	}
	var globalFrom string

	err := filepath.WalkDir(r.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !isYAMLFile(path) || strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		doc, err := r.readFile(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := c.add(doc); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if doc.ProxyConfig != nil {
			if globalFrom != "" {
				return fmt.Errorf("%s: proxy_config already declared in %s", path, globalFrom)
			}
			globalFrom = path
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions: %w", err)
	}

	r.mu.Lock()
	r.last = c
	r.mu.Unlock()
	return c, nil
}

func (r *YAMLRepository) readFile(path string) (*yamlDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := r.resolver.Resolve(&node, filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("failed to resolve includes: %w", err)
	}
	var doc yamlDocument
	if len(node.Content) == 0 {
		return &doc, nil
	}
	if err := node.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode definitions: %w", err)
	}
	return &doc, nil
}

func (c *catalog) add(doc *yamlDocument) error {
	for i := range doc.Endpoints {
		ye := &doc.Endpoints[i]
		if ye.ID == "" {
			return fmt.Errorf("endpoint #%d has no id", i+1)
		}
		if _, dup := c.byID[ye.ID]; dup {
			return fmt.Errorf("endpoint id %q declared twice", ye.ID)
		}
		ep := toEndpoint(ye)
		c.endpoints = append(c.endpoints, ep)
		c.byID[ep.ID] = ep
		c.rules[ep.ID] = toRules(ye)
	}
	for i := range doc.Proxies {
		yp := &doc.Proxies[i]
		if yp.Service == "" {
			return fmt.Errorf("proxy #%d has no service", i+1)
		}
		c.proxies = append(c.proxies, toTarget(yp, fmt.Sprintf("%s-proxy", yp.Service)))
	}
	if doc.ProxyConfig != nil {
		c.global = toTarget(doc.ProxyConfig, "global")
		c.global.ServiceName = ""
	}
	for i := range doc.Scenarios {
		ys := &doc.Scenarios[i]
		if ys.ID == "" {
			return fmt.Errorf("scenario #%d has no id", i+1)
		}
		c.scenarios = append(c.scenarios, toScenario(ys))
	}
	return nil
}

func toEndpoint(ye *yamlEndpoint) *endpoint.Endpoint {
	method := strings.ToUpper(strings.TrimSpace(ye.Method))
	if method == "" {
		method = "GET"
	}
	ep := &endpoint.Endpoint{
		ID:          ye.ID,
		ServiceName: ye.Service,
		Path:        ye.Path,
		HTTPMethod:  method,
		Protocol:    endpoint.ParseProtocol(ye.Protocol),
		IsActive:    boolOr(ye.Active, true),
		CreatedAt:   ye.CreatedAt,
	}
	if d := ye.DefaultResponse; d != nil {
		ep.DefaultStatusCode = d.Status
		ep.DefaultResponse = d.Body
		if ep.DefaultStatusCode == 0 {
			ep.DefaultStatusCode = 200
		}
	}
	return ep
}

func toRules(ye *yamlEndpoint) []*endpoint.Rule {
	rules := make([]*endpoint.Rule, 0, len(ye.Rules))
	for i := range ye.Rules {
		yr := &ye.Rules[i]
		r := &endpoint.Rule{
			ID:                        yr.ID,
			EndpointID:                ye.ID,
			Priority:                  yr.Priority,
			MatchConditions:           string(yr.Conditions),
			LogicMode:                 yr.Logic,
			ResponseStatusCode:        yr.Response.Status,
			ResponseBody:              yr.Response.Body,
			ResponseHeaders:           string(yr.Response.Headers),
			IsTemplate:                yr.Response.Template,
			IsResponseHeadersTemplate: yr.Response.HeadersTemplate,
			DelayMs:                   yr.DelayMs,
			IsActive:                  boolOr(yr.Active, true),
			CreatedAt:                 yr.CreatedAt,
		}
		if r.ID == "" {
			r.ID = fmt.Sprintf("%s-rule-%d", ye.ID, i+1)
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = ye.CreatedAt
		}
		if yr.Fault != nil {
			r.FaultType = yr.Fault.Type
			r.FaultConfig = string(yr.Fault.Config)
		}
		rules = append(rules, r)
	}
	return rules
}

func toTarget(yp *yamlProxy, defaultID string) *proxy.Target {
	t := &proxy.Target{
		ID:                yp.ID,
		ServiceName:       yp.Service,
		TargetBaseURL:     yp.TargetURL,
		IsActive:          boolOr(yp.Active, true),
		IsRecording:       yp.Recording,
		ForwardHeaders:    yp.ForwardHeaders,
		AdditionalHeaders: string(yp.AdditionalHeaders),
		TimeoutMs:         yp.TimeoutMs,
		StripPathPrefix:   yp.StripPathPrefix,
		FallbackEnabled:   boolOr(yp.FallbackEnabled, true),
	}
	if t.ID == "" {
		t.ID = defaultID
	}
	if yp.RateLimit != nil {
		t.RateLimit = &proxy.RateLimit{Rate: yp.RateLimit.Rate, Burst: yp.RateLimit.Burst}
	}
	return t
}

func toScenario(ys *yamlScenario) *scenario.Scenario {
	s := &scenario.Scenario{
		ID:           ys.ID,
		Name:         ys.Name,
		InitialState: ys.InitialState,
		IsActive:     boolOr(ys.Active, true),
	}
	if s.Name == "" {
		s.Name = s.ID
	}
	for i := range ys.Steps {
		st := &ys.Steps[i]
		s.Steps = append(s.Steps, &scenario.Step{
			ID:                        st.ID,
			ScenarioID:                ys.ID,
			StateName:                 st.State,
			EndpointID:                st.Endpoint,
			Priority:                  st.Priority,
			MatchConditions:           string(st.Conditions),
			LogicMode:                 st.Logic,
			ResponseStatusCode:        st.Response.Status,
			ResponseBody:              st.Response.Body,
			ResponseHeaders:           string(st.Response.Headers),
			IsTemplate:                st.Response.Template,
			IsResponseHeadersTemplate: st.Response.HeadersTemplate,
			NextState:                 st.NextState,
		})
	}
	return s
}
