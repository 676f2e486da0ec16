package fault

import (
	"encoding/json"
	"math/rand/v2"
	"strings"
	"time"
)

// Type names an injected fault behavior.
type Type string

const (
	None              Type = "None"
	FixedDelay        Type = "FixedDelay"
	RandomDelay       Type = "RandomDelay"
	Timeout           Type = "Timeout"
	ConnectionReset   Type = "ConnectionReset"
	EmptyResponse     Type = "EmptyResponse"
	MalformedResponse Type = "MalformedResponse"
)

var knownTypes = []Type{None, FixedDelay, RandomDelay, Timeout, ConnectionReset, EmptyResponse, MalformedResponse}

// ParseType resolves a stored fault name case-insensitively.
// Empty and unknown names resolve to None.
func ParseType(s string) (Type, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return None, true
	}
	for _, t := range knownTypes {
		if strings.EqualFold(s, string(t)) {
			return t, true
		}
	}
	return None, false
}

const (
	defaultFixedDelay   = time.Second
	defaultRandomMax    = time.Second
	defaultTimeoutDelay = 2 * time.Minute
)

// Config is the per-rule fault configuration blob.
type Config struct {
	DelayMs    int    `json:"delayMs"`
	MinDelayMs int    `json:"minDelayMs"`
	MaxDelayMs int    `json:"maxDelayMs"`
	TimeoutMs  int    `json:"timeoutMs"`
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// ParseConfig decodes a fault configuration blob. An empty blob is the zero config.
func ParseConfig(raw string) (Config, error) {
	var cfg Config
	if strings.TrimSpace(raw) == "" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Spec binds a fault type to its configuration.
type Spec struct {
	Type   Type
	Config Config
}

// Active reports whether s injects anything.
func (s Spec) Active() bool {
	return s.Type != "" && s.Type != None
}

// Action tells the renderer what to do after the plan's delay elapsed.
type Action int

const (
	// Proceed renders the response normally.
	Proceed Action = iota
	// Reset aborts the connection without a response.
	Reset
	// Empty writes the status code with no body.
	Empty
	// Malformed writes a corrupted body.
	Malformed
)

// Plan is a resolved fault ready to execute for one request.
type Plan struct {
	Type       Type
	Delay      time.Duration
	Action     Action
	StatusCode int
	Body       []byte
}

// Plan resolves s for one request. status is the rule's configured
// status code. randN returns a value in [0, n); nil uses math/rand.
func (s Spec) Plan(status int, randN func(n int64) int64) Plan {
	if randN == nil {
		randN = rand.Int64N
	}
	p := Plan{Type: s.Type, Action: Proceed, StatusCode: status}
	if !s.Active() {
		p.Type = None
		return p
	}

	cfg := s.Config
	if cfg.StatusCode != 0 {
		p.StatusCode = cfg.StatusCode
	}

	switch s.Type {
	case FixedDelay:
		p.Delay = millis(cfg.DelayMs, defaultFixedDelay)
	case RandomDelay:
		lo := time.Duration(max(cfg.MinDelayMs, 0)) * time.Millisecond
		hi := millis(cfg.MaxDelayMs, defaultRandomMax)
		if hi < lo {
			hi = lo
		}
		p.Delay = lo
		if span := int64(hi - lo); span > 0 {
			p.Delay += time.Duration(randN(span + 1))
		}
	case Timeout:
		p.Delay = millis(cfg.TimeoutMs, defaultTimeoutDelay)
	case ConnectionReset:
		p.Action = Reset
	case EmptyResponse:
		p.Action = Empty
	case MalformedResponse:
		p.Action = Malformed
		if cfg.Body != "" {
			p.Body = []byte(cfg.Body)
		}
	}
	return p
}

func millis(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

// Malform returns a corrupted rendition of body: the first half of it, or a
// broken JSON fragment when body is too short to truncate meaningfully.
func Malform(body []byte) []byte {
	if len(body) < 2 {
		return []byte(`{"error": "malformed`)
	}
	out := make([]byte, len(body)/2)
	copy(out, body)
	return out
}
