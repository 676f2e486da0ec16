package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/sophialabs/mimicry/internal/domain/endpoint"
	"github.com/sophialabs/mimicry/internal/domain/fault"
	"github.com/sophialabs/mimicry/internal/domain/match"
	"github.com/sophialabs/mimicry/internal/domain/scenario"
)

// TemplateRegistry compiles template sources into body renderers by engine name.
type TemplateRegistry interface {
	Compile(engine, name, source string) (match.BodyRenderer, error)
}

// Compiler turns stored endpoints, rules and scenarios into immutable
// snapshot values with compiled predicates and responses.
//
// Problems that only degrade a response (bad headers blob, template that
// does not compile, bad fault config) are reported as warnings and the
// value is still produced. A rule or step whose conditions cannot be
// parsed is left out, since it could never match correctly.
type Compiler struct {
	registry  TemplateRegistry
	engine    string
	extractor match.FieldExtractor
	evaluator match.OperatorEvaluator
}

// NewCompiler creates a Compiler. engine names the template engine used for
// templated bodies and headers; registry may be nil to serve templates verbatim.
func NewCompiler(registry TemplateRegistry, engine string, x match.FieldExtractor, ev match.OperatorEvaluator) *Compiler {
	return &Compiler{registry: registry, engine: engine, extractor: x, evaluator: ev}
}

// CompileEndpoint builds the cached form of an endpoint and its active rules.
func (c *Compiler) CompileEndpoint(ep *endpoint.Endpoint, rules []*endpoint.Rule) (*match.CachedEndpoint, []error) {
	var warnings []error
	warn := func(err error) { warnings = append(warnings, err) }

	ce := &match.CachedEndpoint{
		ID:          ep.ID,
		ServiceName: ep.ServiceName,
		Path:        ep.Path,
		HTTPMethod:  strings.ToUpper(ep.HTTPMethod),
		Protocol:    ep.Protocol,
		IsActive:    ep.IsActive,
		CreatedAt:   ep.CreatedAt,
	}

	if ep.HasDefaultResponse() {
		def := c.compileResponse("endpoint "+ep.ID, responseSource{
			status: ep.DefaultStatusCode,
			body:   ep.DefaultResponse,
		}, warn)
		ce.Default = &def
	}

	for _, r := range rules {
		if !r.IsActive {
			continue
		}
		cr, err := c.compileRule(r, ep.Protocol, warn)
		if err != nil {
			warn(err)
			continue
		}
		ce.Rules = append(ce.Rules, cr)
	}
	sort.SliceStable(ce.Rules, func(i, j int) bool {
		return ce.Rules[i].Priority < ce.Rules[j].Priority
	})

	return ce, warnings
}

func (c *Compiler) compileRule(r *endpoint.Rule, protocol endpoint.Protocol, warn func(error)) (*match.CachedRule, error) {
	conds, err := ParseConditions(r.MatchConditions)
	if err != nil {
		return nil, fmt.Errorf("rule %q excluded: match conditions: %w", r.ID, err)
	}
	logic := match.ParseLogicMode(r.LogicMode)

	ft, known := fault.ParseType(r.FaultType)
	if !known {
		warn(fmt.Errorf("rule %q: unknown fault type %q, no fault injected", r.ID, r.FaultType))
	}
	fc, err := fault.ParseConfig(r.FaultConfig)
	if err != nil {
		warn(fmt.Errorf("rule %q: fault config ignored: %w", r.ID, err))
	}

	return &match.CachedRule{
		ID:         r.ID,
		EndpointID: r.EndpointID,
		Priority:   r.Priority,
		Conditions: conds,
		Logic:      logic,
		Predicate:  match.CompileConditions(conds, logic, protocol, c.extractor, c.evaluator),
		Response: c.compileResponse("rule "+r.ID, responseSource{
			status:          r.ResponseStatusCode,
			body:            r.ResponseBody,
			headers:         r.ResponseHeaders,
			template:        r.IsTemplate,
			headersTemplate: r.IsResponseHeadersTemplate,
		}, warn),
		DelayMs:   max(r.DelayMs, 0),
		Fault:     fault.Spec{Type: ft, Config: fc},
		CreatedAt: r.CreatedAt,
	}, nil
}

// CompileScenario builds a scenario definition. protocolOf resolves the
// protocol of a step's endpoint, which decides how body fields are read.
func (c *Compiler) CompileScenario(s *scenario.Scenario, protocolOf func(endpointID string) endpoint.Protocol) (*scenario.Definition, []error) {
	var warnings []error
	warn := func(err error) { warnings = append(warnings, err) }

	def := &scenario.Definition{
		ID:            s.ID,
		Name:          s.Name,
		InitialState:  s.InitialState,
		StoredState:   s.CurrentState,
		StoredVersion: s.StateVersion,
		IsActive:      s.IsActive,
	}

	for i, st := range s.Steps {
		name := st.ID
		if name == "" {
			name = fmt.Sprintf("%s#%d", s.ID, i)
		}
		conds, err := ParseConditions(st.MatchConditions)
		if err != nil {
			warn(fmt.Errorf("scenario %q step %q excluded: match conditions: %w", s.ID, name, err))
			continue
		}
		logic := match.ParseLogicMode(st.LogicMode)
		def.Steps = append(def.Steps, &scenario.CompiledStep{
			ID:         name,
			ScenarioID: s.ID,
			StateName:  st.StateName,
			EndpointID: st.EndpointID,
			Priority:   st.Priority,
			Predicate:  match.CompileConditions(conds, logic, protocolOf(st.EndpointID), c.extractor, c.evaluator),
			Response: c.compileResponse("scenario "+s.ID+" step "+name, responseSource{
				status:          st.ResponseStatusCode,
				body:            st.ResponseBody,
				headers:         st.ResponseHeaders,
				template:        st.IsTemplate,
				headersTemplate: st.IsResponseHeadersTemplate,
			}, warn),
			NextState: st.NextState,
		})
	}
	sort.SliceStable(def.Steps, func(i, j int) bool {
		return def.Steps[i].Priority < def.Steps[j].Priority
	})

	return def, warnings
}

type responseSource struct {
	status          int
	body            string
	headers         string
	template        bool
	headersTemplate bool
}

func (c *Compiler) compileResponse(owner string, src responseSource, warn func(error)) match.CompiledResponse {
	resp := match.CompiledResponse{Status: src.status, Body: []byte(src.body)}
	if resp.Status == 0 {
		resp.Status = 200
	}

	headers, err := ParseHeaderBlob(src.headers)
	if err != nil {
		warn(fmt.Errorf("%s: response headers ignored: %w", owner, err))
	}
	resp.Headers = headers

	if src.template {
		if r, err := c.compileTemplate(owner+" body", src.body); err != nil {
			warn(fmt.Errorf("%s: body served verbatim: %w", owner, err))
		} else {
			resp.Renderer = r
		}
	}

	if src.headersTemplate && len(headers) > 0 {
		resp.HeaderRenderers = make(map[string]match.BodyRenderer, len(headers))
		for name, value := range headers {
			r, err := c.compileTemplate(owner+" header "+name, value)
			if err != nil {
				warn(fmt.Errorf("%s: header %q served verbatim: %w", owner, name, err))
				continue
			}
			resp.HeaderRenderers[name] = r
		}
	}

	return resp
}

func (c *Compiler) compileTemplate(name, source string) (match.BodyRenderer, error) {
	if c.registry == nil {
		return nil, fmt.Errorf("no template registry configured")
	}
	return c.registry.Compile(c.engine, name, source)
}

type rawCondition struct {
	SourceType string          `json:"sourceType"`
	FieldPath  string          `json:"fieldPath"`
	Operator   string          `json:"operator"`
	Value      json.RawMessage `json:"value"`
}

// ParseConditions decodes a MatchConditions blob: a JSON array of
// {sourceType, fieldPath, operator, value} objects. Non-string values are
// kept as their JSON text. An empty blob is no conditions.
func ParseConditions(raw string) ([]match.MatchCondition, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var items []rawCondition
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, err
	}

	conds := make([]match.MatchCondition, 0, len(items))
	for _, it := range items {
		conds = append(conds, match.MatchCondition{
			SourceType: match.ParseSourceType(strings.TrimSpace(it.SourceType)),
			FieldPath:  strings.TrimSpace(it.FieldPath),
			Operator:   match.ParseOperator(strings.TrimSpace(it.Operator)),
			Value:      rawValue(it.Value),
		})
	}
	return conds, nil
}

func rawValue(v json.RawMessage) string {
	v = bytes.TrimSpace(v)
	if len(v) == 0 || string(v) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err != nil {
		return string(v)
	}
	return buf.String()
}

// ParseHeaderBlob decodes a ResponseHeaders or AdditionalHeaders blob, a
// JSON object of header values. Non-string values are kept as JSON text.
func ParseHeaderBlob(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, err
	}
	headers := make(map[string]string, len(obj))
	for k, v := range obj {
		headers[k] = rawValue(v)
	}
	return headers, nil
}
