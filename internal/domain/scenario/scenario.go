package scenario

import (
	"github.com/sophialabs/mimicry/internal/domain/match"
)

// Scenario is a named stateful interaction as the storage layer hands it out.
type Scenario struct {
	ID           string
	Name         string
	InitialState string
	// CurrentState is the persisted state; empty means InitialState.
	CurrentState string
	StateVersion uint64
	IsActive     bool
	Steps        []*Step
}

// Step is one transition of a scenario. MatchConditions and
// ResponseHeaders are raw JSON documents.
type Step struct {
	ID         string
	ScenarioID string
	StateName  string
	EndpointID string
	Priority   int

	MatchConditions string
	LogicMode       string

	ResponseStatusCode        int
	ResponseBody              string
	ResponseHeaders           string
	IsTemplate                bool
	IsResponseHeadersTemplate bool

	// NextState is empty when the step keeps the current state.
	NextState string
}

// Definition is a compiled scenario ready to load into the Engine.
type Definition struct {
	ID           string
	Name         string
	InitialState string
	// StoredState and StoredVersion are the last persisted state, if any.
	StoredState   string
	StoredVersion uint64
	IsActive      bool
	// Steps are sorted by ascending priority.
	Steps []*CompiledStep
}

// CompiledStep is an immutable snapshot of a step with its predicate.
type CompiledStep struct {
	ID         string
	ScenarioID string
	StateName  string
	EndpointID string
	Priority   int
	Predicate  match.Predicate
	Response   match.CompiledResponse
	NextState  string
}

// Transition is a committed change of a scenario's current state.
type Transition struct {
	ScenarioID string
	From       string
	To         string
	Version    uint64
}

// StepResult is the outcome of a scenario step firing for a request.
type StepResult struct {
	Step         *CompiledStep
	ScenarioID   string
	ScenarioName string
	// Transition is nil when the step left the state unchanged.
	Transition *Transition
}

// State describes a loaded scenario for introspection.
type State struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	InitialState string `json:"initialState"`
	CurrentState string `json:"currentState"`
	Version      uint64 `json:"version"`
	Steps        int    `json:"steps"`
}
