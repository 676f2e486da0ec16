package filesystem

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// yamlDocument is the top level of every definition file. Any key may be
// omitted.
type yamlDocument struct {
	Endpoints   []yamlEndpoint `yaml:"endpoints,omitempty"`
	Proxies     []yamlProxy    `yaml:"proxies,omitempty"`
	ProxyConfig *yamlProxy     `yaml:"proxy_config,omitempty"`
	Scenarios   []yamlScenario `yaml:"scenarios,omitempty"`
}

type yamlEndpoint struct {
	ID              string        `yaml:"id"`
	Service         string        `yaml:"service"`
	Path            string        `yaml:"path"`
	Method          string        `yaml:"method"`
	Protocol        string        `yaml:"protocol,omitempty"`
	Active          *bool         `yaml:"active,omitempty"`
	CreatedAt       time.Time     `yaml:"created_at,omitempty"`
	DefaultResponse *yamlResponse `yaml:"default_response,omitempty"`
	Rules           []yamlRule    `yaml:"rules,omitempty"`
}

type yamlRule struct {
	ID         string         `yaml:"id"`
	Priority   int            `yaml:"priority"`
	Logic      string         `yaml:"logic,omitempty"`
	Active     *bool          `yaml:"active,omitempty"`
	CreatedAt  time.Time      `yaml:"created_at,omitempty"`
	Conditions yamlConditions `yaml:"conditions,omitempty"`
	Response   yamlResponse   `yaml:"response"`
	DelayMs    int            `yaml:"delay_ms,omitempty"`
	Fault      *yamlFault     `yaml:"fault,omitempty"`
}

type yamlResponse struct {
	Status          int      `yaml:"status,omitempty"`
	Headers         jsonBlob `yaml:"headers,omitempty"`
	Body            string   `yaml:"body,omitempty"`
	Template        bool     `yaml:"template,omitempty"`
	HeadersTemplate bool     `yaml:"headers_template,omitempty"`
}

type yamlFault struct {
	Type   string   `yaml:"type"`
	Config jsonBlob `yaml:"config,omitempty"`
}

type yamlProxy struct {
	ID                string         `yaml:"id"`
	Service           string         `yaml:"service,omitempty"`
	TargetURL         string         `yaml:"target_url"`
	Active            *bool          `yaml:"active,omitempty"`
	Recording         bool           `yaml:"recording,omitempty"`
	ForwardHeaders    bool           `yaml:"forward_headers,omitempty"`
	AdditionalHeaders jsonBlob       `yaml:"additional_headers,omitempty"`
	TimeoutMs         int            `yaml:"timeout_ms,omitempty"`
	StripPathPrefix   string         `yaml:"strip_path_prefix,omitempty"`
	FallbackEnabled   *bool          `yaml:"fallback_enabled,omitempty"`
	RateLimit         *yamlRateLimit `yaml:"rate_limit,omitempty"`
}

type yamlRateLimit struct {
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

type yamlScenario struct {
	ID           string     `yaml:"id"`
	Name         string     `yaml:"name"`
	InitialState string     `yaml:"initial_state"`
	Active       *bool      `yaml:"active,omitempty"`
	Steps        []yamlStep `yaml:"steps"`
}

type yamlStep struct {
	ID         string         `yaml:"id,omitempty"`
	State      string         `yaml:"state"`
	Endpoint   string         `yaml:"endpoint"`
	Priority   int            `yaml:"priority"`
	Logic      string         `yaml:"logic,omitempty"`
	Conditions yamlConditions `yaml:"conditions,omitempty"`
	Response   yamlResponse   `yaml:"response"`
	NextState  string         `yaml:"next_state,omitempty"`
}

type yamlCondition struct {
	Source   string `yaml:"source" json:"sourceType"`
	Field    string `yaml:"field" json:"fieldPath"`
	Operator string `yaml:"operator" json:"operator"`
	Value    any    `yaml:"value" json:"value"`
}

// jsonBlob accepts either a raw JSON string or structured YAML, which is
// re-encoded as JSON. The result is the opaque blob stored entities carry.
type jsonBlob string

func (b *jsonBlob) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag != "!!null" {
		*b = jsonBlob(node.Value)
		return nil
	}
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	if v == nil {
		*b = ""
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*b = jsonBlob(data)
	return nil
}

// yamlConditions accepts a list of conditions or a raw JSON string.
type yamlConditions string

func (c *yamlConditions) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		var b jsonBlob
		if err := b.UnmarshalYAML(node); err != nil {
			return err
		}
		*c = yamlConditions(b)
		return nil
	}
	var items []yamlCondition
	if err := node.Decode(&items); err != nil {
		return err
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*c = yamlConditions(data)
	return nil
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// MarshalYAML writes JSON objects back as YAML mappings.
func (b jsonBlob) MarshalYAML() (any, error) {
	var v map[string]any
	if err := json.Unmarshal([]byte(b), &v); err == nil {
		return v, nil
	}
	return string(b), nil
}
