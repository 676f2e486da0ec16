package match_test

import (
	"testing"

	"github.com/sophialabs/mimicry/internal/domain/match"
)

func TestIsMatch(t *testing.T) {
	tests := []struct {
		template string
		path     string
		want     bool
	}{
		{"/users/{id}", "/users/42", true},
		{"/users/{id}", "/users/42/orders", false},
		{"/users/{id}", "/users", false},
		{"/users/{id}", "/users/", false},
		{"/users/{id}/orders", "/USERS/7/Orders", true},
		{"/", "/", true},
		{"/", "", true},
		{"/health", "/health/", true},
		{"/a/{x}/c/{y}", "/a/1/c/2", true},
		{"/a/{x}/c/{y}", "/a/1/d/2", false},
		{"/static", "/other", false},
		{"/{}", "/x", false},
	}
	for _, tt := range tests {
		t.Run(tt.template+" "+tt.path, func(t *testing.T) {
			if got := match.IsMatch(tt.template, tt.path); got != tt.want {
				t.Errorf("IsMatch(%q, %q) = %v, want %v", tt.template, tt.path, got, tt.want)
			}
		})
	}
}

func TestExtractPathParams(t *testing.T) {
	params := match.ExtractPathParams("/users/{id}/orders/{orderId}", "/users/42/orders/abc")
	if params == nil {
		t.Fatal("expected params, got nil")
	}
	if params["id"] != "42" {
		t.Errorf("expected id=42, got %q", params["id"])
	}
	if v, ok := params.Get("ORDERID"); !ok || v != "abc" {
		t.Errorf("expected case-insensitive orderId=abc, got %q (%v)", v, ok)
	}
	if _, ok := params.Get("missing"); ok {
		t.Error("expected missing param to be absent")
	}
}

func TestExtractPathParams_NoMatch(t *testing.T) {
	if params := match.ExtractPathParams("/users/{id}", "/users/42/orders"); params != nil {
		t.Errorf("expected nil params, got %v", params)
	}
}

func TestExtractPathParams_NoPlaceholders(t *testing.T) {
	params := match.ExtractPathParams("/health", "/health")
	if params == nil || len(params) != 0 {
		t.Errorf("expected empty non-nil params, got %v", params)
	}
}
