package usecases

import (
	"context"
	"errors"
	"fmt"

	"github.com/sophialabs/mimicry/internal/domain/endpoint"
	"github.com/sophialabs/mimicry/internal/domain/scenario"
	"github.com/sophialabs/mimicry/internal/infrastructure/ports"
	"github.com/sophialabs/mimicry/internal/infrastructure/services"
)

// ScenarioUseCase loads scenario definitions into the engine and resets
// their state.
type ScenarioUseCase struct {
	engine     *scenario.Engine
	repo       scenario.Repository
	compiler   *services.Compiler
	protocolOf func(endpointID string) endpoint.Protocol
	logger     ports.Logger
}

// NewScenarioUseCase creates the use case. protocolOf resolves the protocol
// of the endpoint a step is bound to.
func NewScenarioUseCase(engine *scenario.Engine, repo scenario.Repository, compiler *services.Compiler,
	protocolOf func(endpointID string) endpoint.Protocol, logger ports.Logger) *ScenarioUseCase {
	return &ScenarioUseCase{engine: engine, repo: repo, compiler: compiler, protocolOf: protocolOf, logger: logger}
}

// Load compiles every active scenario and swaps them into the engine.
// On a repository error the loaded set is left untouched.
func (uc *ScenarioUseCase) Load(ctx context.Context) error {
	list, err := uc.repo.GetAllActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to load scenarios: %w", err)
	}

	defs := make([]*scenario.Definition, 0, len(list))
	for _, s := range list {
		def, warnings := uc.compiler.CompileScenario(s, uc.protocolOf)
		for _, w := range warnings {
			uc.logger.Warn("scenario compiled with warnings", "scenario", s.ID, "error", w)
		}
		defs = append(defs, def)
	}
	uc.engine.Load(defs)
	uc.logger.Info("scenarios loaded", "count", len(defs))
	return nil
}

// Reset returns one scenario to its initial state and persists it.
func (uc *ScenarioUseCase) Reset(ctx context.Context, id string) (*scenario.Transition, error) {
	t, err := uc.engine.Reset(id)
	if err != nil {
		return nil, err
	}
	uc.logger.Info("scenario reset", "scenario", id, "state", t.To)
	persistTransition(ctx, uc.repo, uc.logger, t)
	return t, nil
}

// ResetAll returns every scenario to its initial state.
func (uc *ScenarioUseCase) ResetAll(ctx context.Context) []*scenario.Transition {
	ts := uc.engine.ResetAll()
	for _, t := range ts {
		persistTransition(ctx, uc.repo, uc.logger, t)
	}
	uc.logger.Info("all scenarios reset", "count", len(ts))
	return ts
}

// States lists the loaded scenarios with their current state.
func (uc *ScenarioUseCase) States() []scenario.State {
	return uc.engine.States()
}

// persistTransition writes a state change through to storage. The write
// outlives a cancelled request; a failure is logged and the in-memory state
// stays authoritative.
func persistTransition(ctx context.Context, repo scenario.Repository, logger ports.Logger, t *scenario.Transition) {
	err := repo.UpdateCurrentState(context.WithoutCancel(ctx), t.ScenarioID, t.To, t.Version)
	switch {
	case err == nil:
	case errors.Is(err, scenario.ErrNotFound):
		logger.Warn("scenario state not persisted, scenario gone", "scenario", t.ScenarioID)
	default:
		logger.Error("failed to persist scenario state", "scenario", t.ScenarioID, "state", t.To, "error", err)
	}
}
