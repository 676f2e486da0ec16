package services

import (
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/shopspring/decimal"

	"github.com/sophialabs/mimicry/internal/domain/match"
)

var _ match.OperatorEvaluator = (*OperatorEvaluator)(nil)

// OperatorEvaluator implements the condition operators. It never fails:
// bad patterns, bad schemas and unparsable numbers evaluate to false.
type OperatorEvaluator struct {
	regexes *compileCache
	schemas *compileCache
}

// NewOperatorEvaluator creates an evaluator caching up to cacheSize
// compiled regexes and schemas each.
func NewOperatorEvaluator(cacheSize int) *OperatorEvaluator {
	return &OperatorEvaluator{
		regexes: newCompileCache(cacheSize),
		schemas: newCompileCache(cacheSize),
	}
}

// Evaluate compares actual, which is absent when present is false, with expected.
func (e *OperatorEvaluator) Evaluate(op match.Operator, actual string, present bool, expected string) bool {
	switch op {
	case match.OpEquals:
		return present && strings.EqualFold(actual, expected)
	case match.OpNotEquals:
		return !(present && strings.EqualFold(actual, expected))
	case match.OpContains:
		return present && strings.Contains(strings.ToLower(actual), strings.ToLower(expected))
	case match.OpStartsWith:
		return present && strings.HasPrefix(strings.ToLower(actual), strings.ToLower(expected))
	case match.OpEndsWith:
		return present && strings.HasSuffix(strings.ToLower(actual), strings.ToLower(expected))
	case match.OpRegex:
		if !present {
			return false
		}
		re, err := e.regex(expected)
		return err == nil && re.MatchString(actual)
	case match.OpGreater:
		return present && compareDecimal(actual, expected) == 1
	case match.OpLess:
		return present && compareDecimal(actual, expected) == -1
	case match.OpExists:
		return present
	case match.OpNotExists:
		return !present
	case match.OpIsEmpty:
		return !present || actual == ""
	case match.OpJSONSchema:
		return present && e.validates(actual, expected)
	default:
		return false
	}
}

const noCompare = -2

// compareDecimal returns -1, 0 or 1, or noCompare if either side is not a number.
func compareDecimal(a, b string) int {
	x, err := decimal.NewFromString(strings.TrimSpace(a))
	if err != nil {
		return noCompare
	}
	y, err := decimal.NewFromString(strings.TrimSpace(b))
	if err != nil {
		return noCompare
	}
	return x.Cmp(y)
}

func (e *OperatorEvaluator) regex(pattern string) (*regexp.Regexp, error) {
	v, err := e.regexes.get(pattern, func() (any, error) {
		return regexp.Compile(pattern)
	})
	if err != nil {
		return nil, err
	}
	return v.(*regexp.Regexp), nil
}

func (e *OperatorEvaluator) validates(instance, schemaText string) bool {
	v, err := e.schemas.get(schemaText, func() (any, error) {
		return CompileSchema(schemaText)
	})
	if err != nil {
		return false
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(instance))
	if err != nil {
		return false
	}
	return v.(*jsonschema.Schema).Validate(doc) == nil
}

// CompileSchema compiles a standalone JSON Schema document.
func CompileSchema(schemaText string) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaText))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("condition.json", doc); err != nil {
		return nil, err
	}
	return c.Compile("condition.json")
}
