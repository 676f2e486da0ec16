package endpoint

import (
	"context"
	"errors"
)

// ErrNotFound indicates an endpoint was not found.
var ErrNotFound = errors.New("endpoint not found")

// Repository is the read port for endpoints.
type Repository interface {
	// GetAllActive returns every active endpoint in creation order.
	GetAllActive(ctx context.Context) ([]*Endpoint, error)

	// GetByID returns one endpoint regardless of its active flag.
	// Returns ErrNotFound if no endpoint with the given ID exists.
	GetByID(ctx context.Context, id string) (*Endpoint, error)
}

// RuleRepository is the read port for rules.
type RuleRepository interface {
	// GetByEndpointID returns all rules of an endpoint, active or not.
	GetByEndpointID(ctx context.Context, endpointID string) ([]*Rule, error)
}
