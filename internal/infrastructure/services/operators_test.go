package services_test

import (
	"testing"

	"github.com/sophialabs/mimicry/internal/domain/match"
	"github.com/sophialabs/mimicry/internal/infrastructure/services"
)

const absent = "\x00absent"

func TestOperatorEvaluator(t *testing.T) {
	ev := services.NewOperatorEvaluator(16)
	schema := `{"type":"object","required":["id"],"properties":{"id":{"type":"integer"}}}`

	tests := []struct {
		op       match.Operator
		actual   string
		expected string
		want     bool
	}{
		{match.OpEquals, "VIP", "vip", true},
		{match.OpEquals, "vip", "gold", false},
		{match.OpEquals, absent, "", false},
		{match.OpNotEquals, "vip", "gold", true},
		{match.OpNotEquals, "Vip", "vip", false},
		{match.OpNotEquals, absent, "vip", true},

		{match.OpContains, "Hello World", "o w", true},
		{match.OpContains, absent, "", false},
		{match.OpStartsWith, "Bearer abc", "bearer ", true},
		{match.OpStartsWith, "abc", "b", false},
		{match.OpEndsWith, "report.PDF", ".pdf", true},
		{match.OpEndsWith, absent, "x", false},

		{match.OpRegex, "order-123", `^order-\d+$`, true},
		{match.OpRegex, "ORDER-123", `^order-\d+$`, false},
		{match.OpRegex, "anything", `([unclosed`, false},
		{match.OpRegex, absent, `.*`, false},

		{match.OpGreater, "10.5", "10.25", true},
		{match.OpGreater, "10", "10", false},
		{match.OpGreater, " 100 ", "99", true},
		{match.OpGreater, "abc", "1", false},
		{match.OpGreater, "1", "abc", false},
		{match.OpLess, "0.1", "0.2", true},
		{match.OpLess, "abc", "1", false},
		{match.OpLess, "-5", "-4", true},
		{match.OpLess, absent, "1", false},

		{match.OpExists, "", "", true},
		{match.OpExists, absent, "", false},
		{match.OpNotExists, absent, "", true},
		{match.OpNotExists, "x", "", false},
		{match.OpIsEmpty, "", "", true},
		{match.OpIsEmpty, absent, "", true},
		{match.OpIsEmpty, " ", "", false},

		{match.OpJSONSchema, `{"id": 7}`, schema, true},
		{match.OpJSONSchema, `{"id": "seven"}`, schema, false},
		{match.OpJSONSchema, `{}`, schema, false},
		{match.OpJSONSchema, `not json`, schema, false},
		{match.OpJSONSchema, `{"id": 7}`, `{"type": 12}`, false},
		{match.OpJSONSchema, `{"id": 7}`, `{broken`, false},
		{match.OpJSONSchema, absent, schema, false},

		{match.Operator("Fuzzy"), "a", "a", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.op)+" "+tt.actual+" "+tt.expected, func(t *testing.T) {
			actual, present := tt.actual, true
			if actual == absent {
				actual, present = "", false
			}
			if got := ev.Evaluate(tt.op, actual, present, tt.expected); got != tt.want {
				t.Errorf("Evaluate(%s, %q, %v, %q) = %v, want %v", tt.op, actual, present, tt.expected, got, tt.want)
			}
		})
	}
}

func TestOperatorEvaluator_CachedPatternsStayConsistent(t *testing.T) {
	ev := services.NewOperatorEvaluator(1)
	for range 3 {
		if !ev.Evaluate(match.OpRegex, "abc", true, "^a") {
			t.Fatal("expected ^a to match abc")
		}
		if ev.Evaluate(match.OpRegex, "abc", true, "^b") {
			t.Fatal("expected ^b not to match abc")
		}
	}
}
