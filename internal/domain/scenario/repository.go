package scenario

import (
	"context"
	"errors"
)

// ErrNotFound indicates a scenario was not found.
var ErrNotFound = errors.New("scenario not found")

// Repository is the port for loading scenarios and persisting their state.
type Repository interface {
	// GetAllActive returns every active scenario with its steps.
	GetAllActive(ctx context.Context) ([]*Scenario, error)

	// UpdateCurrentState persists the current state of a scenario.
	// Writes carrying a version older than the stored one are ignored.
	UpdateCurrentState(ctx context.Context, id, state string, version uint64) error
}
