package usecases

import (
	"context"
	"errors"

	"github.com/sophialabs/mimicry/internal/infrastructure/ports"
)

// Loader refreshes one in-memory view from storage.
type Loader interface {
	LoadAll(ctx context.Context) error
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) error

func (f LoaderFunc) LoadAll(ctx context.Context) error { return f(ctx) }

// ReloadUseCase rebuilds every cache from storage: rules first, since
// scenario compilation reads endpoint protocols from the rule cache.
type ReloadUseCase struct {
	rules     Loader
	proxies   Loader
	scenarios Loader
	logger    ports.Logger
}

// NewReloadUseCase creates the use case.
func NewReloadUseCase(rules, proxies, scenarios Loader, logger ports.Logger) *ReloadUseCase {
	return &ReloadUseCase{rules: rules, proxies: proxies, scenarios: scenarios, logger: logger}
}

// Execute reloads all caches. A failing cache keeps its previous snapshot
// and does not stop the others; the errors are joined.
func (uc *ReloadUseCase) Execute(ctx context.Context) error {
	var errs []error
	for _, step := range []struct {
		name string
		l    Loader
	}{
		{"rules", uc.rules},
		{"proxies", uc.proxies},
		{"scenarios", uc.scenarios},
	} {
		if err := step.l.LoadAll(ctx); err != nil {
			uc.logger.Error("reload failed, keeping previous snapshot", "cache", step.name, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
