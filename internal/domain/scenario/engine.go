package scenario

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sophialabs/mimicry/internal/domain/match"
)

// unit owns the mutable state of one scenario. The same unit survives
// reloads of its definition so that concurrent transitions are never lost.
type unit struct {
	mu      sync.Mutex
	def     *Definition
	current string
	version uint64
}

type unitSet struct {
	order []*unit
	byID  map[string]*unit
}

// Engine runs the per-scenario state machines. Each scenario serializes its
// own read-evaluate-write cycle; there is no lock across scenarios.
type Engine struct {
	units  atomic.Pointer[unitSet]
	loadMu sync.Mutex
}

// NewEngine creates an Engine with no scenarios loaded.
func NewEngine() *Engine {
	e := &Engine{}
	e.units.Store(&unitSet{byID: map[string]*unit{}})
	return e
}

// Load replaces the set of scenarios. A scenario that was already loaded
// keeps its in-memory state unless the stored state is newer.
func (e *Engine) Load(defs []*Definition) {
	e.loadMu.Lock()
	defer e.loadMu.Unlock()

	prev := e.units.Load()
	next := &unitSet{byID: make(map[string]*unit, len(defs))}

	for _, d := range defs {
		if !d.IsActive {
			continue
		}
		if _, dup := next.byID[d.ID]; dup {
			continue
		}

		u, ok := prev.byID[d.ID]
		if !ok {
			u = &unit{}
		}

		u.mu.Lock()
		u.def = d
		if !ok || d.StoredVersion > u.version {
			u.current = d.InitialState
			if d.StoredState != "" {
				u.current = d.StoredState
			}
			u.version = d.StoredVersion
		}
		u.mu.Unlock()

		next.order = append(next.order, u)
		next.byID[d.ID] = u
	}

	e.units.Store(next)
}

// TryMatch offers a request routed to endpointID to every active scenario.
// The first step bound to its scenario's current state whose conditions
// hold fires, and the scenario advances to the step's next state.
func (e *Engine) TryMatch(rc *match.RequestContext, endpointID string, params match.PathParams) (*StepResult, bool) {
	for _, u := range e.units.Load().order {
		if res, ok := u.tryMatch(rc, endpointID, params); ok {
			return res, true
		}
	}
	return nil, false
}

func (u *unit) tryMatch(rc *match.RequestContext, endpointID string, params match.PathParams) (*StepResult, bool) {
	for {
		u.mu.Lock()
		def, cur, ver := u.def, u.current, u.version
		u.mu.Unlock()

		// Conditions run outside the lock; the version check below
		// rejects the result if another request moved the state meanwhile.
		step := firstMatch(def, rc, endpointID, cur, params)
		if step == nil {
			return nil, false
		}

		u.mu.Lock()
		if u.version != ver {
			u.mu.Unlock()
			continue
		}
		res := &StepResult{Step: step, ScenarioID: def.ID, ScenarioName: def.Name}
		if step.NextState != "" && step.NextState != cur {
			u.version++
			u.current = step.NextState
			res.Transition = &Transition{ScenarioID: def.ID, From: cur, To: step.NextState, Version: u.version}
		}
		u.mu.Unlock()
		return res, true
	}
}

func firstMatch(def *Definition, rc *match.RequestContext, endpointID, state string, params match.PathParams) *CompiledStep {
	for _, s := range def.Steps {
		if s.EndpointID != endpointID || s.StateName != state {
			continue
		}
		if s.Predicate(rc, params) {
			return s
		}
	}
	return nil
}

// Reset restores a scenario to its initial state.
func (e *Engine) Reset(id string) (*Transition, error) {
	u, ok := e.units.Load().byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return u.reset(), nil
}

// ResetAll restores every scenario to its initial state.
func (e *Engine) ResetAll() []*Transition {
	set := e.units.Load()
	out := make([]*Transition, 0, len(set.order))
	for _, u := range set.order {
		out = append(out, u.reset())
	}
	return out
}

func (u *unit) reset() *Transition {
	u.mu.Lock()
	defer u.mu.Unlock()
	t := &Transition{ScenarioID: u.def.ID, From: u.current, To: u.def.InitialState}
	u.current = u.def.InitialState
	u.version++
	t.Version = u.version
	return t
}

// States returns a snapshot of every loaded scenario.
func (e *Engine) States() []State {
	set := e.units.Load()
	out := make([]State, 0, len(set.order))
	for _, u := range set.order {
		u.mu.Lock()
		out = append(out, State{
			ID:           u.def.ID,
			Name:         u.def.Name,
			InitialState: u.def.InitialState,
			CurrentState: u.current,
			Version:      u.version,
			Steps:        len(u.def.Steps),
		})
		u.mu.Unlock()
	}
	return out
}

// CurrentState returns the current state of one scenario.
func (e *Engine) CurrentState(id string) (string, bool) {
	u, ok := e.units.Load().byID[id]
	if !ok {
		return "", false
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.current, true
}
