package match_test

import (
	"testing"

	"github.com/sophialabs/mimicry/internal/domain/match"
)

func methodIs(m string) match.Predicate {
	return func(rc *match.RequestContext, _ match.PathParams) bool { return rc.Method == m }
}

func paramIs(name, v string) match.Predicate {
	return func(_ *match.RequestContext, p match.PathParams) bool { return p[name] == v }
}

func TestAnd(t *testing.T) {
	p := match.And(methodIs("GET"), paramIs("id", "1"))

	if !p(&match.RequestContext{Method: "GET"}, match.PathParams{"id": "1"}) {
		t.Error("expected match when both hold")
	}
	if p(&match.RequestContext{Method: "GET"}, match.PathParams{"id": "2"}) {
		t.Error("expected no match when the second fails")
	}
	if p(&match.RequestContext{Method: "POST"}, match.PathParams{"id": "1"}) {
		t.Error("expected no match when the first fails")
	}
}

func TestOr(t *testing.T) {
	p := match.Or(methodIs("GET"), methodIs("HEAD"))

	if !p(&match.RequestContext{Method: "GET"}, nil) {
		t.Error("expected match for GET")
	}
	if !p(&match.RequestContext{Method: "HEAD"}, nil) {
		t.Error("expected match for HEAD")
	}
	if p(&match.RequestContext{Method: "POST"}, nil) {
		t.Error("expected no match for POST")
	}
}

func TestNot(t *testing.T) {
	p := match.Not(methodIs("DELETE"))

	if !p(&match.RequestContext{Method: "GET"}, nil) {
		t.Error("expected match for GET")
	}
	if p(&match.RequestContext{Method: "DELETE"}, nil) {
		t.Error("expected no match for DELETE")
	}
}

func TestAlwaysNever(t *testing.T) {
	rc := &match.RequestContext{}
	if !match.Always()(rc, nil) {
		t.Error("Always should match everything")
	}
	if match.Never()(rc, nil) {
		t.Error("Never should match nothing")
	}
}

func TestAndOrEmpty(t *testing.T) {
	rc := &match.RequestContext{}
	if !match.And()(rc, nil) {
		t.Error("And with no predicates should match")
	}
	if match.Or()(rc, nil) {
		t.Error("Or with no predicates should not match")
	}
}
