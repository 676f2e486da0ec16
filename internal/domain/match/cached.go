package match

import (
	"time"

	"github.com/sophialabs/mimicry/internal/domain/endpoint"
	"github.com/sophialabs/mimicry/internal/domain/fault"
)

// BodyRenderer renders a response body dynamically. Nil means static body.
type BodyRenderer interface {
	Render(ctx RenderContext) ([]byte, error)
}

// RenderContext provides request data for dynamic rendering.
type RenderContext struct {
	Method     string
	Path       string
	Headers    map[string]string
	Query      map[string]string
	PathParams map[string]string
	Body       []byte
	Now        string // ISO-8601 timestamp
}

// CompiledResponse is a resolved response ready to serve.
type CompiledResponse struct {
	Status  int
	Headers map[string]string
	// HeaderRenderers holds a renderer per header name for templated headers.
	HeaderRenderers map[string]BodyRenderer
	Body            []byte       // used when Renderer is nil
	Renderer        BodyRenderer // non-nil for dynamic bodies
}

// CachedRule is an immutable snapshot of a rule, its conditions already
// compiled into a predicate.
type CachedRule struct {
	ID         string
	EndpointID string
	Priority   int
	Conditions []MatchCondition
	Logic      LogicMode
	Predicate  Predicate
	Response   CompiledResponse
	DelayMs    int
	Fault      fault.Spec
	CreatedAt  time.Time
}

// CachedEndpoint is an immutable snapshot of an endpoint with its active
// rules in ascending priority order.
type CachedEndpoint struct {
	ID          string
	ServiceName string
	Path        string
	HTTPMethod  string
	Protocol    endpoint.Protocol
	IsActive    bool
	// Default is nil when the endpoint declares no default response.
	Default   *CompiledResponse
	Rules     []*CachedRule
	CreatedAt time.Time
}
