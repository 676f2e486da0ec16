package match

import (
	"strings"

	"github.com/sophialabs/mimicry/internal/domain/endpoint"
)

// SourceType names where a condition reads its actual value from.
type SourceType string

const (
	SourceBody     SourceType = "Body"
	SourceHeader   SourceType = "Header"
	SourceQuery    SourceType = "Query"
	SourcePath     SourceType = "Path"
	SourceMetadata SourceType = "Metadata"
)

// Operator names a comparison between an actual and an expected value.
type Operator string

const (
	OpEquals     Operator = "Equals"
	OpNotEquals  Operator = "NotEquals"
	OpContains   Operator = "Contains"
	OpStartsWith Operator = "StartsWith"
	OpEndsWith   Operator = "EndsWith"
	OpRegex      Operator = "Regex"
	OpGreater    Operator = "GreaterThan"
	OpLess       Operator = "LessThan"
	OpExists     Operator = "Exists"
	OpNotExists  Operator = "NotExists"
	OpIsEmpty    Operator = "IsEmpty"
	OpJSONSchema Operator = "JsonSchema"
)

// LogicMode combines the conditions of a rule or step.
type LogicMode string

const (
	LogicAnd LogicMode = "AND"
	LogicOr  LogicMode = "OR"
)

var (
	sourceTypes = []SourceType{SourceBody, SourceHeader, SourceQuery, SourcePath, SourceMetadata}
	operators   = []Operator{
		OpEquals, OpNotEquals, OpContains, OpStartsWith, OpEndsWith, OpRegex,
		OpGreater, OpLess, OpExists, OpNotExists, OpIsEmpty, OpJSONSchema,
	}
)

// SourceTypes lists every supported source type.
func SourceTypes() []SourceType { return append([]SourceType(nil), sourceTypes...) }

// Operators lists every supported operator.
func Operators() []Operator { return append([]Operator(nil), operators...) }

// ParseSourceType resolves a stored source name case-insensitively.
// Unknown names are returned unchanged and never yield a value.
func ParseSourceType(s string) SourceType {
	for _, st := range sourceTypes {
		if strings.EqualFold(s, string(st)) {
			return st
		}
	}
	return SourceType(s)
}

// ParseOperator resolves a stored operator name case-insensitively.
// Unknown names are returned unchanged and always evaluate to false.
func ParseOperator(s string) Operator {
	for _, op := range operators {
		if strings.EqualFold(s, string(op)) {
			return op
		}
	}
	return Operator(s)
}

// ParseLogicMode resolves a stored logic mode; anything but OR is AND.
func ParseLogicMode(s string) LogicMode {
	if strings.EqualFold(strings.TrimSpace(s), string(LogicOr)) {
		return LogicOr
	}
	return LogicAnd
}

// MatchCondition is a (source, field path, operator, expected value) tuple.
type MatchCondition struct {
	SourceType SourceType `json:"sourceType"`
	FieldPath  string     `json:"fieldPath"`
	Operator   Operator   `json:"operator"`
	Value      string     `json:"value"`
}

// FieldExtractor resolves the actual value of a condition. The boolean is
// false when the value is absent, which is distinct from an empty value.
type FieldExtractor interface {
	Extract(source SourceType, fieldPath string, rc *RequestContext, protocol endpoint.Protocol, params PathParams) (string, bool)
}

// OperatorEvaluator compares an optional actual value against an expected one.
type OperatorEvaluator interface {
	Evaluate(op Operator, actual string, present bool, expected string) bool
}

// CompileConditions builds the predicate for a list of conditions combined
// with logic. No conditions yield an unconditional match.
func CompileConditions(conds []MatchCondition, logic LogicMode, protocol endpoint.Protocol, x FieldExtractor, ev OperatorEvaluator) Predicate {
	if len(conds) == 0 {
		return Always()
	}

	preds := make([]Predicate, 0, len(conds))
	for _, c := range conds {
		preds = append(preds, conditionPredicate(c, protocol, x, ev))
	}

	if logic == LogicOr {
		return Or(preds...)
	}
	return And(preds...)
}

func conditionPredicate(c MatchCondition, protocol endpoint.Protocol, x FieldExtractor, ev OperatorEvaluator) Predicate {
	return func(rc *RequestContext, params PathParams) bool {
		actual, present := x.Extract(c.SourceType, c.FieldPath, rc, protocol, params)
		return ev.Evaluate(c.Operator, actual, present, c.Value)
	}
}
