package match_test

import (
	"strings"

	"github.com/sophialabs/mimicry/internal/domain/endpoint"
	"github.com/sophialabs/mimicry/internal/domain/match"
)

// headerExtractor resolves Header and Path sources only.
type headerExtractor struct{}

func (headerExtractor) Extract(src match.SourceType, field string, rc *match.RequestContext, _ endpoint.Protocol, params match.PathParams) (string, bool) {
	switch src {
	case match.SourceHeader:
		return rc.Header(field)
	case match.SourcePath:
		return params.Get(field)
	}
	return "", false
}

// simpleEvaluator supports the operators the tests in this package use.
type simpleEvaluator struct{}

func (simpleEvaluator) Evaluate(op match.Operator, actual string, present bool, expected string) bool {
	switch op {
	case match.OpEquals:
		return present && strings.EqualFold(actual, expected)
	case match.OpExists:
		return present
	case match.OpNotExists:
		return !present
	}
	return false
}

func headerCond(name, op, value string) match.MatchCondition {
	return match.MatchCondition{SourceType: match.SourceHeader, FieldPath: name, Operator: match.Operator(op), Value: value}
}

func compile(logic match.LogicMode, conds ...match.MatchCondition) match.Predicate {
	return match.CompileConditions(conds, logic, endpoint.ProtocolREST, headerExtractor{}, simpleEvaluator{})
}
