package endpoint

import (
	"strings"
	"time"
)

// Protocol identifies how request bodies of an endpoint are interpreted.
type Protocol string

const (
	ProtocolREST Protocol = "REST"
	ProtocolSOAP Protocol = "SOAP"
)

// ParseProtocol normalizes a stored protocol name. Unknown names are
// returned upper-cased so that the protocol handler factory can reject them.
func ParseProtocol(s string) Protocol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ProtocolREST
	}
	return Protocol(s)
}

// Endpoint is a registered (path template, method, protocol) triple as the
// storage layer hands it out.
type Endpoint struct {
	ID          string
	ServiceName string
	Path        string
	HTTPMethod  string
	Protocol    Protocol
	IsActive    bool

	// DefaultStatusCode is zero when the endpoint declares no default status.
	DefaultStatusCode int
	DefaultResponse   string

	CreatedAt time.Time
}

// HasDefaultResponse reports whether the endpoint declares a default
// response. A declared status with an empty body counts.
func (e *Endpoint) HasDefaultResponse() bool {
	return e.DefaultStatusCode != 0 || e.DefaultResponse != ""
}

// Rule is a prioritized conditional response attached to an endpoint.
// MatchConditions, ResponseHeaders and FaultConfig are raw JSON documents.
type Rule struct {
	ID         string
	EndpointID string
	Priority   int

	MatchConditions string
	LogicMode       string

	ResponseStatusCode        int
	ResponseBody              string
	ResponseHeaders           string
	IsTemplate                bool
	IsResponseHeadersTemplate bool

	DelayMs     int
	FaultType   string
	FaultConfig string

	IsActive  bool
	CreatedAt time.Time
}
