package match

import "strings"

// EndpointSource provides the current endpoint snapshot in scan order.
type EndpointSource interface {
	Endpoints() []*CachedEndpoint
}

// Result is the outcome of matching a request. Rule is nil for the
// default response case.
type Result struct {
	Endpoint          *CachedEndpoint
	Rule              *CachedRule
	IsDefaultResponse bool
	PathParams        PathParams
}

// Engine routes requests to endpoints and rules.
type Engine struct {
	source EndpointSource
}

// NewEngine creates a new Engine reading from source.
func NewEngine(source EndpointSource) *Engine {
	return &Engine{source: source}
}

// FindEndpoint returns the first active endpoint whose method and path
// template match the request.
func (e *Engine) FindEndpoint(rc *RequestContext) (*CachedEndpoint, PathParams, bool) {
	for _, ep := range e.source.Endpoints() {
		if params, ok := routes(ep, rc); ok {
			return ep, params, true
		}
	}
	return nil, nil, false
}

// FindMatch scans endpoints in snapshot order and returns the first rule
// match, or the default response of the first routed endpoint that has one.
func (e *Engine) FindMatch(rc *RequestContext) (*Result, bool) {
	for _, ep := range e.source.Endpoints() {
		params, ok := routes(ep, rc)
		if !ok {
			continue
		}
		if res, ok := MatchEndpoint(ep, rc, params); ok {
			return res, true
		}
		// Endpoints are unique per method and path, so a further hit
		// only happens if a snapshot was built from inconsistent data.
	}
	return nil, false
}

// MatchEndpoint evaluates the rules of a single, already routed endpoint.
func MatchEndpoint(ep *CachedEndpoint, rc *RequestContext, params PathParams) (*Result, bool) {
	for _, r := range ep.Rules {
		if r.Predicate(rc, params) {
			return &Result{Endpoint: ep, Rule: r, PathParams: params}, true
		}
	}
	if ep.Default != nil {
		return &Result{Endpoint: ep, IsDefaultResponse: true, PathParams: params}, true
	}
	return nil, false
}

func routes(ep *CachedEndpoint, rc *RequestContext) (PathParams, bool) {
	if !ep.IsActive || !strings.EqualFold(ep.HTTPMethod, rc.Method) {
		return nil, false
	}
	params := ExtractPathParams(ep.Path, rc.Path)
	if params == nil {
		return nil, false
	}
	return params, true
}
