package filesystem_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sophialabs/mimicry/internal/domain/endpoint"
	"github.com/sophialabs/mimicry/internal/infrastructure/outbound/filesystem"
	"github.com/sophialabs/mimicry/internal/infrastructure/services"
)

const ordersYAML = `
endpoints:
  - id: get-order
    service: orders
    path: /orders/{id}
    method: get
    created_at: 2024-01-01T00:00:00Z
    default_response: { status: 404, body: '{"error":"unknown order"}' }
    rules:
      - id: vip-order
        priority: 10
        logic: OR
        conditions:
          - { source: Header, field: X-Tier, operator: Equals, value: vip }
          - { source: Query, field: limit, operator: GreaterThan, value: 10 }
        response:
          status: 200
          headers: { Content-Type: application/json }
          body: '{"id":"{{ request.pathParams.id }}"}'
          template: true
        delay_ms: 25
        fault: { type: FixedDelay, config: { delayMs: 5 } }
      - priority: 20
        active: false
        conditions: '[{"sourceType":"Body","fieldPath":"$.a","operator":"Exists"}]'
        response: { status: 201, headers: '{"X-Raw":"1"}' }
  - id: legacy
    path: /legacy
    method: POST
    protocol: soap
    active: false
    default_response: {}
proxies:
  - service: orders
    target_url: http://orders.internal
    forward_headers: true
    additional_headers: { X-Via: mimicry }
    rate_limit: { rate: 50, burst: 100 }
proxy_config:
  target_url: http://legacy.internal
  fallback_enabled: false
`

const cartYAML = `
scenarios:
  - id: cart
    initial_state: empty
    steps:
      - state: empty
        endpoint: get-order
        priority: 1
        conditions: []
        response: { status: 201, body: added }
        next_state: hasItem
  - id: off
    active: false
    initial_state: a
    steps: []
`

func newFixtureRepo(t *testing.T) (*filesystem.YAMLRepository, string) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "orders.yaml"), ordersYAML)
	writeFile(t, filepath.Join(root, "scenarios", "cart.yml"), cartYAML)
	writeFile(t, filepath.Join(root, "README.md"), "not a definition")
	repo, err := filesystem.NewYAMLRepository(root)
	if err != nil {
		t.Fatalf("NewYAMLRepository failed: %v", err)
	}
	return repo, root
}

func TestYAMLRepository_Endpoints(t *testing.T) {
	repo, _ := newFixtureRepo(t)
	ctx := context.Background()

	eps, err := repo.GetAllActive(ctx)
	if err != nil {
		t.Fatalf("GetAllActive failed: %v", err)
	}
	if len(eps) != 1 || eps[0].ID != "get-order" {
		t.Fatalf("expected only the active endpoint, got %+v", eps)
	}
	ep := eps[0]
	if ep.HTTPMethod != "GET" || ep.Protocol != endpoint.ProtocolREST || ep.ServiceName != "orders" {
		t.Errorf("unexpected endpoint %+v", ep)
	}
	if ep.DefaultStatusCode != 404 || ep.DefaultResponse != `{"error":"unknown order"}` {
		t.Errorf("unexpected default response %d %q", ep.DefaultStatusCode, ep.DefaultResponse)
	}
	if !ep.CreatedAt.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected created_at %v", ep.CreatedAt)
	}

	legacy, err := repo.GetByID(ctx, "legacy")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if legacy.IsActive || legacy.Protocol != endpoint.ProtocolSOAP || !legacy.HasDefaultResponse() {
		t.Errorf("unexpected legacy endpoint %+v", legacy)
	}

	if _, err := repo.GetByID(ctx, "ghost"); !errors.Is(err, endpoint.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestYAMLRepository_Rules(t *testing.T) {
	repo, _ := newFixtureRepo(t)
	ctx := context.Background()

	rules, err := repo.GetByEndpointID(ctx, "get-order")
	if err != nil {
		t.Fatalf("GetByEndpointID failed: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}

	vip := rules[0]
	if vip.ID != "vip-order" || vip.Priority != 10 || vip.LogicMode != "OR" || !vip.IsActive || !vip.IsTemplate {
		t.Errorf("unexpected rule %+v", vip)
	}
	conds, err := services.ParseConditions(vip.MatchConditions)
	if err != nil || len(conds) != 2 {
		t.Fatalf("expected 2 parseable conditions, got %v (%v)", conds, err)
	}
	if conds[0].FieldPath != "X-Tier" || conds[0].Value != "vip" || conds[1].Value != "10" {
		t.Errorf("unexpected conditions %+v", conds)
	}
	headers, err := services.ParseHeaderBlob(vip.ResponseHeaders)
	if err != nil || headers["Content-Type"] != "application/json" {
		t.Errorf("unexpected headers %q", vip.ResponseHeaders)
	}
	if vip.FaultType != "FixedDelay" || vip.FaultConfig != `{"delayMs":5}` || vip.DelayMs != 25 {
		t.Errorf("unexpected fault %q %q", vip.FaultType, vip.FaultConfig)
	}
	if !vip.CreatedAt.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("expected rules to inherit the endpoint creation time")
	}

	raw := rules[1]
	if raw.ID != "get-order-rule-2" || raw.IsActive {
		t.Errorf("unexpected second rule %+v", raw)
	}
	if raw.MatchConditions != `[{"sourceType":"Body","fieldPath":"$.a","operator":"Exists"}]` || raw.ResponseHeaders != `{"X-Raw":"1"}` {
		t.Errorf("expected raw JSON blobs to be kept, got %q %q", raw.MatchConditions, raw.ResponseHeaders)
	}

	none, err := repo.GetByEndpointID(ctx, "ghost")
	if err != nil || len(none) != 0 {
		t.Errorf("expected no rules, got %v (%v)", none, err)
	}
}

func TestYAMLRepository_Proxies(t *testing.T) {
	repo, _ := newFixtureRepo(t)
	ctx := context.Background()

	targets, err := repo.Proxies().GetAllActive(ctx)
	if err != nil {
		t.Fatalf("GetAllActive failed: %v", err)
	}
	if len(targets) != 1 {
		t.Fatalf("expected 1 proxy, got %d", len(targets))
	}
	p := targets[0]
	if p.ID != "orders-proxy" || !p.IsActive || !p.FallbackEnabled || !p.ForwardHeaders ||
		p.AdditionalHeaders != `{"X-Via":"mimicry"}` || p.RateLimit == nil || p.RateLimit.Burst != 100 {
		t.Errorf("unexpected proxy %+v", p)
	}

	global, err := repo.GetActive(ctx)
	if err != nil {
		t.Fatalf("GetActive failed: %v", err)
	}
	if global == nil || global.ID != "global" || global.FallbackEnabled || global.ServiceName != "" {
		t.Errorf("unexpected global proxy %+v", global)
	}
}

func TestYAMLRepository_ScenariosAndState(t *testing.T) {
	repo, root := newFixtureRepo(t)
	ctx := context.Background()
	scenarios := repo.Scenarios()

	list, err := scenarios.GetAllActive(ctx)
	if err != nil {
		t.Fatalf("GetAllActive failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 active scenario, got %d", len(list))
	}
	cart := list[0]
	if cart.Name != "cart" || cart.InitialState != "empty" || cart.CurrentState != "" || len(cart.Steps) != 1 {
		t.Errorf("unexpected scenario %+v", cart)
	}
	step := cart.Steps[0]
	if step.ScenarioID != "cart" || step.EndpointID != "get-order" || step.NextState != "hasItem" || step.MatchConditions != "[]" {
		t.Errorf("unexpected step %+v", step)
	}

	if err := scenarios.UpdateCurrentState(ctx, "cart", "hasItem", 2); err != nil {
		t.Fatalf("UpdateCurrentState failed: %v", err)
	}
	if err := scenarios.UpdateCurrentState(ctx, "cart", "stale", 1); err != nil {
		t.Fatalf("UpdateCurrentState failed: %v", err)
	}

	reopened, _ := filesystem.NewYAMLRepository(root)
	list, _ = reopened.Scenarios().GetAllActive(ctx)
	if list[0].CurrentState != "hasItem" || list[0].StateVersion != 2 {
		t.Errorf("expected persisted state hasItem@2, got %s@%d", list[0].CurrentState, list[0].StateVersion)
	}
}

func TestYAMLRepository_Includes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "bodies", "order.json"), `{"id":1}`)
	writeFile(t, filepath.Join(root, "defs.yaml"), `
endpoints:
  - id: e
    path: /e
    default_response:
      body: !include bodies/order.json
`)
	repo, _ := filesystem.NewYAMLRepository(root)
	ep, err := repo.GetByID(context.Background(), "e")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if ep.DefaultResponse != `{"id":1}` || ep.DefaultStatusCode != 200 {
		t.Errorf("unexpected default response %d %q", ep.DefaultStatusCode, ep.DefaultResponse)
	}
}

func TestYAMLRepository_BrokenTreeFails(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
	}{
		{"bad yaml", map[string]string{"a.yaml": "endpoints: [\n"}},
		{"missing id", map[string]string{"a.yaml": "endpoints:\n  - path: /x\n"}},
		{"duplicate id", map[string]string{
			"a.yaml": "endpoints:\n  - id: x\n    path: /a\n",
			"b.yaml": "endpoints:\n  - id: x\n    path: /b\n",
		}},
		{"two global proxies", map[string]string{
			"a.yaml": "proxy_config: { target_url: http://a }\n",
			"b.yaml": "proxy_config: { target_url: http://b }\n",
		}},
		{"proxy without service", map[string]string{"a.yaml": "proxies:\n  - target_url: http://a\n"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			for name, content := range tt.files {
				writeFile(t, filepath.Join(root, name), content)
			}
			repo, _ := filesystem.NewYAMLRepository(root)
			if _, err := repo.GetAllActive(context.Background()); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestYAMLRepository_MissingRoot(t *testing.T) {
	repo, _ := filesystem.NewYAMLRepository(filepath.Join(t.TempDir(), "absent"))
	if _, err := repo.GetAllActive(context.Background()); err == nil {
		t.Error("expected error for missing root")
	}
}
