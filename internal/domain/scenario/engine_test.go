package scenario_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sophialabs/mimicry/internal/domain/match"
	"github.com/sophialabs/mimicry/internal/domain/scenario"
)

func cartDefinition() *scenario.Definition {
	return &scenario.Definition{
		ID:           "cart",
		Name:         "Shopping cart",
		InitialState: "empty",
		IsActive:     true,
		Steps: []*scenario.CompiledStep{
			{
				ID: "add-first", ScenarioID: "cart", StateName: "empty", EndpointID: "add-item",
				Priority: 1, Predicate: match.Always(),
				Response: match.CompiledResponse{Status: 201, Body: []byte("added")}, NextState: "hasItem",
			},
			{
				ID: "view-empty", ScenarioID: "cart", StateName: "empty", EndpointID: "view",
				Priority: 1, Predicate: match.Always(),
				Response: match.CompiledResponse{Status: 200, Body: []byte("[]")},
			},
		},
	}
}

var req = &match.RequestContext{Method: "POST", Path: "/cart/items"}

func TestEngine_TransitionsOnce(t *testing.T) {
	e := scenario.NewEngine()
	e.Load([]*scenario.Definition{cartDefinition()})

	res, ok := e.TryMatch(req, "add-item", nil)
	if !ok {
		t.Fatal("expected first request to match")
	}
	if res.Step.ID != "add-first" {
		t.Errorf("expected step add-first, got %s", res.Step.ID)
	}
	if res.Transition == nil || res.Transition.From != "empty" || res.Transition.To != "hasItem" {
		t.Errorf("unexpected transition: %+v", res.Transition)
	}
	if state, _ := e.CurrentState("cart"); state != "hasItem" {
		t.Errorf("expected state hasItem, got %s", state)
	}

	if _, ok := e.TryMatch(req, "add-item", nil); ok {
		t.Error("expected second request not to match once the state moved on")
	}
}

func TestEngine_StepWithoutNextStateKeepsState(t *testing.T) {
	e := scenario.NewEngine()
	e.Load([]*scenario.Definition{cartDefinition()})

	for range 3 {
		res, ok := e.TryMatch(req, "view", nil)
		if !ok {
			t.Fatal("expected view step to match repeatedly")
		}
		if res.Transition != nil {
			t.Errorf("expected no transition, got %+v", res.Transition)
		}
	}
	if state, _ := e.CurrentState("cart"); state != "empty" {
		t.Errorf("expected state to stay empty, got %s", state)
	}
}

func TestEngine_PriorityAndConditions(t *testing.T) {
	def := &scenario.Definition{
		ID: "s", InitialState: "a", IsActive: true,
		Steps: []*scenario.CompiledStep{
			{ID: "low", StateName: "a", EndpointID: "ep", Priority: 1, Predicate: match.Never()},
			{ID: "mid", StateName: "a", EndpointID: "ep", Priority: 2, Predicate: match.Always()},
			{ID: "high", StateName: "a", EndpointID: "ep", Priority: 3, Predicate: match.Always()},
		},
	}
	e := scenario.NewEngine()
	e.Load([]*scenario.Definition{def})

	res, ok := e.TryMatch(req, "ep", nil)
	if !ok || res.Step.ID != "mid" {
		t.Errorf("expected step mid, got %+v", res)
	}
}

func TestEngine_OtherEndpointDoesNotMatch(t *testing.T) {
	e := scenario.NewEngine()
	e.Load([]*scenario.Definition{cartDefinition()})

	if _, ok := e.TryMatch(req, "unknown", nil); ok {
		t.Error("expected no match for an endpoint without steps")
	}
}

func TestEngine_InactiveScenarioIgnored(t *testing.T) {
	def := cartDefinition()
	def.IsActive = false
	e := scenario.NewEngine()
	e.Load([]*scenario.Definition{def})

	if _, ok := e.TryMatch(req, "add-item", nil); ok {
		t.Error("expected inactive scenario to be ignored")
	}
	if len(e.States()) != 0 {
		t.Errorf("expected no loaded scenarios, got %d", len(e.States()))
	}
}

func TestEngine_ConcurrentRequestsAdvanceOnce(t *testing.T) {
	e := scenario.NewEngine()
	e.Load([]*scenario.Definition{cartDefinition()})

	var (
		wg          sync.WaitGroup
		matched     atomic.Int32
		transitions atomic.Int32
	)
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, ok := e.TryMatch(req, "add-item", nil)
			if !ok {
				return
			}
			matched.Add(1)
			if res.Transition != nil {
				transitions.Add(1)
			}
		}()
	}
	wg.Wait()

	if matched.Load() != 1 {
		t.Errorf("expected exactly one matching request, got %d", matched.Load())
	}
	if transitions.Load() != 1 {
		t.Errorf("expected exactly one transition, got %d", transitions.Load())
	}
}

func TestEngine_Reset(t *testing.T) {
	e := scenario.NewEngine()
	e.Load([]*scenario.Definition{cartDefinition()})
	e.TryMatch(req, "add-item", nil)

	tr, err := e.Reset("cart")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.From != "hasItem" || tr.To != "empty" {
		t.Errorf("unexpected reset transition: %+v", tr)
	}
	if _, ok := e.TryMatch(req, "add-item", nil); !ok {
		t.Error("expected step to match again after reset")
	}

	if _, err := e.Reset("missing"); !errors.Is(err, scenario.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEngine_ResetAll(t *testing.T) {
	other := cartDefinition()
	other.ID = "cart-2"
	e := scenario.NewEngine()
	e.Load([]*scenario.Definition{cartDefinition(), other})
	e.TryMatch(req, "add-item", nil)

	trs := e.ResetAll()
	if len(trs) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(trs))
	}
	for _, st := range e.States() {
		if st.CurrentState != "empty" {
			t.Errorf("scenario %s: expected empty, got %s", st.ID, st.CurrentState)
		}
	}
}

func TestEngine_ReloadKeepsInMemoryState(t *testing.T) {
	e := scenario.NewEngine()
	e.Load([]*scenario.Definition{cartDefinition()})
	res, _ := e.TryMatch(req, "add-item", nil)

	reloaded := cartDefinition()
	reloaded.StoredState = "empty"
	e.Load([]*scenario.Definition{reloaded})
	if state, _ := e.CurrentState("cart"); state != "hasItem" {
		t.Errorf("expected reload to keep hasItem, got %s", state)
	}

	newer := cartDefinition()
	newer.StoredState = "checkedOut"
	newer.StoredVersion = res.Transition.Version + 1
	e.Load([]*scenario.Definition{newer})
	if state, _ := e.CurrentState("cart"); state != "checkedOut" {
		t.Errorf("expected newer stored state to win, got %s", state)
	}
}

func TestEngine_LoadUsesStoredState(t *testing.T) {
	def := cartDefinition()
	def.StoredState = "hasItem"
	def.StoredVersion = 4
	e := scenario.NewEngine()
	e.Load([]*scenario.Definition{def})

	states := e.States()
	if len(states) != 1 || states[0].CurrentState != "hasItem" || states[0].Version != 4 {
		t.Errorf("unexpected state: %+v", states)
	}
}
