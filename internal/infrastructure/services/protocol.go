package services

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"slices"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/antchfx/xpath"
	"github.com/shopspring/decimal"

	"github.com/sophialabs/mimicry/internal/domain/endpoint"
	"github.com/sophialabs/mimicry/internal/domain/fault"
	"github.com/sophialabs/mimicry/internal/domain/match"
)

// ErrUnsupportedProtocol is returned by NewProtocolHandler for protocols
// outside the fixed REST/SOAP set.
var ErrUnsupportedProtocol = errors.New("unsupported protocol")

// Schema describes what a protocol supports, for authoring tools.
type Schema struct {
	Protocol          endpoint.Protocol             `json:"protocol"`
	SourceTypes       []match.SourceType            `json:"sourceTypes"`
	Operators         []match.Operator              `json:"operators"`
	ExampleFieldPaths map[match.SourceType][]string `json:"exampleFieldPaths"`
	Notes             []string                      `json:"notes,omitempty"`
}

// ProtocolHandler validates endpoints and rules for one protocol. The
// returned messages are advisory; request matching never validates.
type ProtocolHandler interface {
	Protocol() endpoint.Protocol
	ValidateEndpoint(ep *endpoint.Endpoint) []string
	ValidateRule(r *endpoint.Rule, ep *endpoint.Endpoint) []string
	GetSchema() Schema
}

// NewProtocolHandler returns the handler for p.
func NewProtocolHandler(p endpoint.Protocol) (ProtocolHandler, error) {
	switch p {
	case endpoint.ProtocolREST:
		return RESTHandler{}, nil
	case endpoint.ProtocolSOAP:
		return SOAPHandler{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProtocol, p)
	}
}

var (
	_ ProtocolHandler = RESTHandler{}
	_ ProtocolHandler = SOAPHandler{}
)

// RESTHandler validates JSON endpoints; body field paths are JSONPath
// expressions rooted at "$.".
type RESTHandler struct{}

func (RESTHandler) Protocol() endpoint.Protocol { return endpoint.ProtocolREST }

func (RESTHandler) ValidateEndpoint(ep *endpoint.Endpoint) []string {
	return validateEndpointCommon(ep)
}

func (RESTHandler) ValidateRule(r *endpoint.Rule, ep *endpoint.Endpoint) []string {
	return validateRuleCommon(r, ep, func(fieldPath string) string {
		if !strings.HasPrefix(fieldPath, "$.") {
			return "must be a JSON path starting with \"$.\""
		}
		if _, err := jsonpath.New(fieldPath); err != nil {
			return "invalid JSON path: " + err.Error()
		}
		return ""
	})
}

func (RESTHandler) GetSchema() Schema {
	return Schema{
		Protocol:    endpoint.ProtocolREST,
		SourceTypes: match.SourceTypes(),
		Operators:   match.Operators(),
		ExampleFieldPaths: map[match.SourceType][]string{
			match.SourceBody:   {"$.customer.id", "$.items[0].sku", "$.total"},
			match.SourceHeader: {"Authorization", "X-Tier"},
			match.SourceQuery:  {"page", "status"},
			match.SourcePath:   {"{id}", "id"},
		},
	}
}

// SOAPHandler validates XML endpoints; they accept POST only and body
// field paths are XPath expressions.
type SOAPHandler struct{}

func (SOAPHandler) Protocol() endpoint.Protocol { return endpoint.ProtocolSOAP }

func (SOAPHandler) ValidateEndpoint(ep *endpoint.Endpoint) []string {
	errs := validateEndpointCommon(ep)
	if !strings.EqualFold(ep.HTTPMethod, http.MethodPost) {
		errs = append(errs, fmt.Sprintf("SOAP endpoints must use POST, got %q", ep.HTTPMethod))
	}
	return errs
}

func (SOAPHandler) ValidateRule(r *endpoint.Rule, ep *endpoint.Endpoint) []string {
	return validateRuleCommon(r, ep, func(fieldPath string) string {
		if !strings.HasPrefix(fieldPath, "/") && !strings.Contains(fieldPath, "local-name()") {
			return "must be an XPath expression starting with \"/\" or using local-name()"
		}
		if _, err := xpath.Compile(fieldPath); err != nil {
			return "invalid XPath: " + err.Error()
		}
		return ""
	})
}

func (SOAPHandler) GetSchema() Schema {
	return Schema{
		Protocol:    endpoint.ProtocolSOAP,
		SourceTypes: match.SourceTypes(),
		Operators:   match.Operators(),
		ExampleFieldPaths: map[match.SourceType][]string{
			match.SourceBody: {
				"//*[local-name()='GetOrder']/*[local-name()='OrderId']",
				"/Envelope/Body/GetOrder/OrderId",
			},
			match.SourceHeader: {"SOAPAction", "Content-Type"},
			match.SourceQuery:  {"wsdl"},
			match.SourcePath:   {"{service}"},
		},
		Notes: []string{"SOAP endpoints accept POST only"},
	}
}

var httpMethods = map[string]bool{
	http.MethodGet: true, http.MethodHead: true, http.MethodPost: true,
	http.MethodPut: true, http.MethodPatch: true, http.MethodDelete: true,
	http.MethodOptions: true, http.MethodTrace: true, http.MethodConnect: true,
}

func validateEndpointCommon(ep *endpoint.Endpoint) []string {
	var errs []string
	if !strings.HasPrefix(ep.Path, "/") {
		errs = append(errs, fmt.Sprintf("path %q must start with \"/\"", ep.Path))
	}
	if !httpMethods[strings.ToUpper(ep.HTTPMethod)] {
		errs = append(errs, fmt.Sprintf("unknown HTTP method %q", ep.HTTPMethod))
	}
	seen := map[string]bool{}
	for _, seg := range strings.Split(strings.Trim(ep.Path, "/"), "/") {
		opening, closing := strings.Count(seg, "{"), strings.Count(seg, "}")
		if opening == 0 && closing == 0 {
			continue
		}
		if opening != 1 || closing != 1 || !strings.HasPrefix(seg, "{") || !strings.HasSuffix(seg, "}") || len(seg) < 3 {
			errs = append(errs, fmt.Sprintf("malformed path parameter segment %q", seg))
			continue
		}
		name := strings.ToLower(seg[1 : len(seg)-1])
		if seen[name] {
			errs = append(errs, fmt.Sprintf("duplicate path parameter %q", seg))
		}
		seen[name] = true
	}
	if ep.DefaultStatusCode != 0 && !validStatus(ep.DefaultStatusCode) {
		errs = append(errs, fmt.Sprintf("invalid default status code %d", ep.DefaultStatusCode))
	}
	return errs
}

func validateRuleCommon(r *endpoint.Rule, ep *endpoint.Endpoint, checkBodyPath func(string) string) []string {
	var errs []string
	if r.EndpointID != ep.ID {
		errs = append(errs, fmt.Sprintf("rule belongs to endpoint %q, not %q", r.EndpointID, ep.ID))
	}
	if r.ResponseStatusCode != 0 && !validStatus(r.ResponseStatusCode) {
		errs = append(errs, fmt.Sprintf("invalid response status code %d", r.ResponseStatusCode))
	}
	if r.DelayMs < 0 {
		errs = append(errs, "delayMs must not be negative")
	}
	if _, err := ParseHeaderBlob(r.ResponseHeaders); err != nil {
		errs = append(errs, "response headers: "+err.Error())
	}
	if _, known := fault.ParseType(r.FaultType); !known {
		errs = append(errs, fmt.Sprintf("unknown fault type %q", r.FaultType))
	}
	if _, err := fault.ParseConfig(r.FaultConfig); err != nil {
		errs = append(errs, "fault config: "+err.Error())
	}

	conds, err := ParseConditions(r.MatchConditions)
	if err != nil {
		return append(errs, "match conditions: "+err.Error())
	}
	params := pathParamNames(ep.Path)
	for i, c := range conds {
		for _, msg := range validateCondition(c, params, checkBodyPath) {
			errs = append(errs, fmt.Sprintf("condition %d: %s", i, msg))
		}
	}
	return errs
}

func validateCondition(c match.MatchCondition, params map[string]bool, checkBodyPath func(string) string) []string {
	var errs []string
	if !slices.Contains(match.SourceTypes(), c.SourceType) {
		errs = append(errs, fmt.Sprintf("unknown source type %q", c.SourceType))
	}
	if !slices.Contains(match.Operators(), c.Operator) {
		errs = append(errs, fmt.Sprintf("unknown operator %q", c.Operator))
	}

	switch c.SourceType {
	case match.SourceBody:
		if msg := checkBodyPath(c.FieldPath); msg != "" {
			errs = append(errs, "field path "+msg)
		}
	case match.SourceHeader, match.SourceQuery:
		if strings.TrimSpace(c.FieldPath) == "" {
			errs = append(errs, "field path is required")
		}
	case match.SourcePath:
		name := strings.ToLower(strings.Trim(c.FieldPath, "{}"))
		if !params[name] {
			errs = append(errs, fmt.Sprintf("path parameter %q is not declared by the endpoint", c.FieldPath))
		}
	}

	switch c.Operator {
	case match.OpRegex:
		if _, err := regexp.Compile(c.Value); err != nil {
			errs = append(errs, "invalid regex: "+err.Error())
		}
	case match.OpGreater, match.OpLess:
		if _, err := decimal.NewFromString(strings.TrimSpace(c.Value)); err != nil {
			errs = append(errs, fmt.Sprintf("expected value %q is not a number", c.Value))
		}
	case match.OpJSONSchema:
		if _, err := CompileSchema(c.Value); err != nil {
			errs = append(errs, "invalid JSON schema: "+err.Error())
		}
	}
	return errs
}

func pathParamNames(template string) map[string]bool {
	names := map[string]bool{}
	for _, seg := range strings.Split(strings.Trim(template, "/"), "/") {
		if len(seg) > 2 && strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			names[strings.ToLower(seg[1:len(seg)-1])] = true
		}
	}
	return names
}

func validStatus(code int) bool {
	return code >= 100 && code <= 599
}
