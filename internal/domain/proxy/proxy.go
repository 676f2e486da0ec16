package proxy

import (
	"context"
	"net/http"
)

// RateLimit caps the request rate sent to an upstream.
type RateLimit struct {
	Rate  float64
	Burst int
}

// Target is a real upstream used as fallback. ServiceProxy entries carry a
// ServiceName; the global ProxyConfig leaves it empty.
type Target struct {
	ID             string
	ServiceName    string
	TargetBaseURL  string
	IsActive       bool
	IsRecording    bool
	ForwardHeaders bool
	// AdditionalHeaders is a raw JSON object of header name to value.
	AdditionalHeaders string
	TimeoutMs         int
	StripPathPrefix   string
	FallbackEnabled   bool
	RateLimit         *RateLimit
}

// Eligible reports whether the target may serve as a fallback.
func (t *Target) Eligible() bool {
	return t != nil && t.IsActive && t.FallbackEnabled && t.TargetBaseURL != ""
}

// Route is a target with its additional headers decoded.
type Route struct {
	Target  *Target
	Headers map[string]string
}

// Response is what an upstream answered.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	TargetURL  string
}

// Exchange is a completed proxied request handed to recording.
type Exchange struct {
	ServiceName string
	Method      string
	Path        string
	QueryString string
	Response    *Response
}

// ServiceRepository is the read port for per-service proxies.
type ServiceRepository interface {
	GetAllActive(ctx context.Context) ([]*Target, error)
}

// ConfigRepository is the read port for the global proxy configuration.
// GetActive returns nil without error when none is configured.
type ConfigRepository interface {
	GetActive(ctx context.Context) (*Target, error)
}

var hopByHop = map[string]bool{
	"Connection":          true,
	"Proxy-Connection":    true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// IsHopByHop reports whether a header applies to a single connection only.
func IsHopByHop(name string) bool {
	return hopByHop[http.CanonicalHeaderKey(name)]
}
