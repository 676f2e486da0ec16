package services

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/sophialabs/mimicry/internal/domain/endpoint"
	"github.com/sophialabs/mimicry/internal/domain/match"
)

var _ match.FieldExtractor = (*FieldExtractor)(nil)

// FieldExtractor resolves condition values from a request. Body values are
// read with JSONPath for REST endpoints and XPath for SOAP endpoints.
// Failures to parse or evaluate yield an absent value.
type FieldExtractor struct {
	xpaths *compileCache
}

// NewFieldExtractor creates a FieldExtractor caching up to cacheSize
// compiled XPath expressions.
func NewFieldExtractor(cacheSize int) *FieldExtractor {
	return &FieldExtractor{xpaths: newCompileCache(cacheSize)}
}

// Extract returns the value of fieldPath from the given source.
func (x *FieldExtractor) Extract(source match.SourceType, fieldPath string, rc *match.RequestContext, protocol endpoint.Protocol, params match.PathParams) (string, bool) {
	switch source {
	case match.SourceHeader:
		return rc.Header(fieldPath)
	case match.SourceQuery:
		return rc.QueryParam(fieldPath)
	case match.SourcePath:
		name := strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(fieldPath), "{"), "}")
		return params.Get(name)
	case match.SourceBody:
		if protocol == endpoint.ProtocolSOAP {
			return x.extractXML(rc.Body, fieldPath)
		}
		return extractJSON(rc.Body, fieldPath)
	default:
		// Metadata is reserved.
		return "", false
	}
}

func extractJSON(body []byte, fieldPath string) (string, bool) {
	if len(bytes.TrimSpace(body)) == 0 {
		return "", false
	}
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return "", false
	}
	result, err := jsonpath.Get(normalizeJSONPath(fieldPath), data)
	if err != nil {
		return "", false
	}
	return stringifyJSON(result)
}

// normalizeJSONPath roots bare selectors such as "order.id" at "$.".
func normalizeJSONPath(p string) string {
	p = strings.TrimSpace(p)
	switch {
	case strings.HasPrefix(p, "$"):
		return p
	case strings.HasPrefix(p, "."), strings.HasPrefix(p, "["):
		return "$" + p
	default:
		return "$." + p
	}
}

func stringifyJSON(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	case []any:
		if len(t) == 0 {
			return "", false
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", false
	}
	return string(b), true
}

func (x *FieldExtractor) extractXML(body []byte, fieldPath string) (value string, ok bool) {
	expr, err := x.compileXPath(fieldPath)
	if err != nil {
		return "", false
	}
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return "", false
	}

	defer func() {
		if recover() != nil {
			value, ok = "", false
		}
	}()

	switch v := expr.Evaluate(xmlquery.CreateXPathNavigator(doc)).(type) {
	case *xpath.NodeIterator:
		if !v.MoveNext() {
			return "", false
		}
		return v.Current().Value(), true
	case string:
		return v, true
	case float64:
		if math.IsNaN(v) {
			return "", false
		}
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}

func (x *FieldExtractor) compileXPath(expr string) (*xpath.Expr, error) {
	v, err := x.xpaths.get(expr, func() (any, error) {
		return xpath.Compile(expr)
	})
	if err != nil {
		return nil, err
	}
	return v.(*xpath.Expr), nil
}
