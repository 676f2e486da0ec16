package audit

import (
	"context"
	"errors"
	"time"
)

// Entry is one audit log record of a handled request.
type Entry struct {
	ID                 string    `json:"id"`
	EndpointID         string    `json:"endpointId,omitempty"`
	RuleID             string    `json:"ruleId,omitempty"`
	ScenarioID         string    `json:"scenarioId,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
	Method             string    `json:"method"`
	Path               string    `json:"path"`
	QueryString        string    `json:"queryString,omitempty"`
	Headers            string    `json:"headers"`
	Body               string    `json:"body,omitempty"`
	ResponseStatusCode int       `json:"responseStatusCode"`
	ResponseBody       string    `json:"responseBody,omitempty"`
	ResponseTimeMs     int64     `json:"responseTimeMs"`
	IsMatched          bool      `json:"isMatched"`
	FaultTypeApplied   string    `json:"faultTypeApplied,omitempty"`
	IsProxied          bool      `json:"isProxied"`
	ProxyTargetURL     string    `json:"proxyTargetUrl,omitempty"`
	Outcome            string    `json:"outcome"`
}

// Sink accepts audit entries. Implementations must be safe for concurrent use.
type Sink interface {
	Append(ctx context.Context, e Entry) error
}

// MultiSink fans an entry out to every sink, collecting their errors.
type MultiSink []Sink

func (m MultiSink) Append(ctx context.Context, e Entry) error {
	var errs []error
	for _, s := range m {
		if err := s.Append(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
