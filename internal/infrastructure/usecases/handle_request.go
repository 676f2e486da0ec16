package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sophialabs/mimicry/internal/domain/audit"
	"github.com/sophialabs/mimicry/internal/domain/endpoint"
	"github.com/sophialabs/mimicry/internal/domain/fault"
	"github.com/sophialabs/mimicry/internal/domain/match"
	"github.com/sophialabs/mimicry/internal/domain/proxy"
	"github.com/sophialabs/mimicry/internal/domain/scenario"
	"github.com/sophialabs/mimicry/internal/infrastructure/ports"
	"github.com/sophialabs/mimicry/internal/infrastructure/services"
)

// Outcome names the terminal state a request reached.
type Outcome string

const (
	OutcomeScenario Outcome = "scenario"
	OutcomeRule     Outcome = "rule"
	OutcomeDefault  Outcome = "default"
	OutcomeProxied  Outcome = "proxied"
	OutcomeNotFound Outcome = "not_found"
)

// Reply is the response to write. Reset asks the transport to drop the
// connection instead.
type Reply struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Reset      bool
}

// HandleRequestResult is the outcome of the pipeline for one request.
// Entry is prefilled for auditing; the transport completes the timing.
type HandleRequestResult struct {
	Outcome Outcome
	Reply   Reply
	Entry   audit.Entry
}

// ProxyLookup resolves the fallback route of a service.
type ProxyLookup interface {
	Lookup(serviceName string) (*proxy.Route, bool)
}

// PipelineDeps are the collaborators of HandleRequestUseCase. Recorder may
// be nil.
type PipelineDeps struct {
	Matcher   *match.Engine
	Scenarios *scenario.Engine
	States    scenario.Repository
	Proxies   ProxyLookup
	Forwarder ports.Forwarder
	Recorder  ports.Recorder
	Tasks     *Background
	Clock     ports.Clock
	Logger    ports.Logger
	Metrics   ports.Metrics
	// RandN overrides the random source of RandomDelay faults.
	RandN func(n int64) int64
}

// HandleRequestUseCase is the request pipeline: scenario, rule, default
// or proxied response, else 404.
type HandleRequestUseCase struct {
	d PipelineDeps
}

// NewHandleRequestUseCase creates the pipeline.
func NewHandleRequestUseCase(d PipelineDeps) *HandleRequestUseCase {
	return &HandleRequestUseCase{d: d}
}

// Execute runs rc through the pipeline. Fault and rule delays are waited
// out here; a cancelled ctx cuts them short.
func (uc *HandleRequestUseCase) Execute(ctx context.Context, rc *match.RequestContext) HandleRequestResult {
	start := uc.d.Clock.Now()
	res := HandleRequestResult{Entry: newEntry(rc, start)}

	if ep, params, ok := uc.d.Matcher.FindEndpoint(rc); ok {
		if sr, ok := uc.d.Scenarios.TryMatch(rc, ep.ID, params); ok {
			uc.serveScenario(ctx, &res, rc, ep, params, sr)
			return uc.finish(res, start)
		}
	}

	m, ok := uc.d.Matcher.FindMatch(rc)
	switch {
	case !ok:
		uc.d.Logger.Debug("no matching endpoint", "method", rc.Method, "path", rc.Path)
		res.Outcome = OutcomeNotFound
		res.Reply = notFound(rc)
	case !m.IsDefaultResponse:
		uc.serveRule(ctx, &res, rc, m)
	default:
		uc.serveDefault(ctx, &res, rc, m)
	}
	return uc.finish(res, start)
}

func (uc *HandleRequestUseCase) serveScenario(ctx context.Context, res *HandleRequestResult, rc *match.RequestContext,
	ep *match.CachedEndpoint, params match.PathParams, sr *scenario.StepResult) {
	res.Outcome = OutcomeScenario
	res.Entry.EndpointID = ep.ID
	res.Entry.ScenarioID = sr.ScenarioID
	if t := sr.Transition; t != nil {
		uc.d.Metrics.ScenarioTransition(t.ScenarioID)
		uc.d.Logger.Info("scenario advanced", "scenario", t.ScenarioID, "from", t.From, "to", t.To)
		persistTransition(ctx, uc.d.States, uc.d.Logger, t)
	}
	res.Reply = uc.reply(&sr.Step.Response, rc, params, ep.Protocol)
}

func (uc *HandleRequestUseCase) serveRule(ctx context.Context, res *HandleRequestResult, rc *match.RequestContext, m *match.Result) {
	rule := m.Rule
	res.Outcome = OutcomeRule
	res.Entry.EndpointID = m.Endpoint.ID
	res.Entry.RuleID = rule.ID

	plan := rule.Fault.Plan(rule.Response.Status, uc.d.RandN)
	if plan.Type != fault.None {
		res.Entry.FaultTypeApplied = string(plan.Type)
		uc.d.Metrics.FaultInjected(string(plan.Type))
	}
	uc.wait(ctx, plan.Delay, rule.ID)
	if plan.Action == fault.Reset {
		res.Reply = Reply{Reset: true}
		return
	}
	uc.wait(ctx, time.Duration(rule.DelayMs)*time.Millisecond, rule.ID)

	if plan.Action == fault.Empty {
		res.Reply = Reply{StatusCode: plan.StatusCode, Header: http.Header{}}
		return
	}
	reply, err := uc.render(&rule.Response, rc, m.PathParams, m.Endpoint.Protocol)
	if err != nil {
		res.Reply = uc.renderFailure(rc, err)
		return
	}
	reply.StatusCode = plan.StatusCode
	if plan.Action == fault.Malformed {
		if plan.Body != nil {
			reply.Body = plan.Body
		} else {
			reply.Body = fault.Malform(reply.Body)
		}
	}
	res.Reply = reply
}

func (uc *HandleRequestUseCase) serveDefault(ctx context.Context, res *HandleRequestResult, rc *match.RequestContext, m *match.Result) {
	ep := m.Endpoint
	res.Entry.EndpointID = ep.ID

	if route, ok := uc.d.Proxies.Lookup(ep.ServiceName); ok {
		if up, ok := uc.d.Forwarder.Forward(ctx, rc, route); ok {
			uc.d.Metrics.ProxyResult("success")
			res.Outcome = OutcomeProxied
			res.Entry.IsProxied = true
			res.Entry.ProxyTargetURL = up.TargetURL
			res.Reply = Reply{StatusCode: up.StatusCode, Header: up.Headers.Clone(), Body: up.Body}
			if route.Target.IsRecording {
				uc.record(rc, ep, up)
			}
			return
		}
		uc.d.Metrics.ProxyResult("failure")
		uc.d.Logger.Info("proxy fallback unavailable, serving default response",
			"endpoint", ep.ID, "proxy", route.Target.ID)
	}

	res.Outcome = OutcomeDefault
	res.Reply = uc.reply(ep.Default, rc, m.PathParams, ep.Protocol)
}

func (uc *HandleRequestUseCase) record(rc *match.RequestContext, ep *match.CachedEndpoint, up *proxy.Response) {
	if uc.d.Recorder == nil {
		return
	}
	ex := proxy.Exchange{
		ServiceName: ep.ServiceName,
		Method:      rc.Method,
		Path:        rc.Path,
		QueryString: rc.QueryString,
		Response:    up,
	}
	uc.d.Tasks.Go("record", func(ctx context.Context) error {
		return uc.d.Recorder.Record(ctx, ex)
	})
}

func (uc *HandleRequestUseCase) wait(ctx context.Context, d time.Duration, ruleID string) {
	if d <= 0 {
		return
	}
	if err := uc.d.Clock.SleepContext(ctx, d); err != nil {
		uc.d.Logger.Debug("delay cut short", "rule", ruleID, "error", err)
	}
}

// reply renders resp, turning a template failure into a 500.
func (uc *HandleRequestUseCase) reply(resp *match.CompiledResponse, rc *match.RequestContext, params match.PathParams, protocol endpoint.Protocol) Reply {
	r, err := uc.render(resp, rc, params, protocol)
	if err != nil {
		return uc.renderFailure(rc, err)
	}
	return r
}

func (uc *HandleRequestUseCase) render(resp *match.CompiledResponse, rc *match.RequestContext, params match.PathParams, protocol endpoint.Protocol) (Reply, error) {
	rctx := match.RenderContext{
		Method:     rc.Method,
		Path:       rc.Path,
		Headers:    rc.Headers,
		Query:      rc.Query,
		PathParams: params,
		Body:       rc.Body,
		Now:        uc.d.Clock.Now().Format(time.RFC3339),
	}

	h := make(http.Header, len(resp.Headers))
	for k, v := range resp.Headers {
		if r, ok := resp.HeaderRenderers[k]; ok {
			out, err := r.Render(rctx)
			if err != nil {
				return Reply{}, fmt.Errorf("header %s: %w", k, err)
			}
			v = string(out)
		}
		h.Set(k, v)
	}

	body := resp.Body
	if resp.Renderer != nil {
		out, err := resp.Renderer.Render(rctx)
		if err != nil {
			return Reply{}, fmt.Errorf("body: %w", err)
		}
		body = out
	}
	if len(body) > 0 && h.Get("Content-Type") == "" {
		h.Set("Content-Type", services.InferContentType("", protocol, body))
	}
	return Reply{StatusCode: resp.Status, Header: h, Body: body}, nil
}

func (uc *HandleRequestUseCase) renderFailure(rc *match.RequestContext, err error) Reply {
	uc.d.Logger.Error("template render failed", "method", rc.Method, "path", rc.Path, "error", err)
	h := http.Header{}
	h.Set("Content-Type", "text/plain; charset=utf-8")
	return Reply{StatusCode: http.StatusInternalServerError, Header: h, Body: []byte("template render error")}
}

func (uc *HandleRequestUseCase) finish(res HandleRequestResult, start time.Time) HandleRequestResult {
	res.Entry.Outcome = string(res.Outcome)
	res.Entry.IsMatched = res.Outcome != OutcomeNotFound
	res.Entry.ResponseStatusCode = res.Reply.StatusCode
	res.Entry.ResponseBody = string(res.Reply.Body)
	uc.d.Metrics.ObserveRequest(string(res.Outcome), uc.d.Clock.Now().Sub(start))
	return res
}

type notFoundBody struct {
	Error  string `json:"error"`
	Path   string `json:"path"`
	Method string `json:"method"`
}

func notFound(rc *match.RequestContext) Reply {
	body, _ := json.Marshal(notFoundBody{Error: "No matching endpoint found", Path: rc.Path, Method: rc.Method})
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	return Reply{StatusCode: http.StatusNotFound, Header: h, Body: body}
}

func newEntry(rc *match.RequestContext, now time.Time) audit.Entry {
	headers, _ := json.Marshal(rc.Headers)
	return audit.Entry{
		Timestamp:   now,
		Method:      rc.Method,
		Path:        rc.Path,
		QueryString: rc.QueryString,
		Headers:     string(headers),
		Body:        string(rc.Body),
	}
}
