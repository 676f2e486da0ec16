package usecases

import (
	"context"
	"fmt"

	"github.com/sophialabs/mimicry/internal/domain/endpoint"
	"github.com/sophialabs/mimicry/internal/infrastructure/services"
)

// Finding is one advisory validation message.
type Finding struct {
	EndpointID string `json:"endpointId"`
	RuleID     string `json:"ruleId,omitempty"`
	Message    string `json:"message"`
}

// ValidateUseCase checks stored endpoints and rules against their
// protocol handler. It never changes what is served.
type ValidateUseCase struct {
	endpoints endpoint.Repository
	rules     endpoint.RuleRepository
}

// NewValidateUseCase creates the use case.
func NewValidateUseCase(endpoints endpoint.Repository, rules endpoint.RuleRepository) *ValidateUseCase {
	return &ValidateUseCase{endpoints: endpoints, rules: rules}
}

// Execute validates every active endpoint and its active rules.
func (uc *ValidateUseCase) Execute(ctx context.Context) ([]Finding, error) {
	eps, err := uc.endpoints.GetAllActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load endpoints: %w", err)
	}

	findings := []Finding{}
	for _, ep := range eps {
		h, err := services.NewProtocolHandler(ep.Protocol)
		if err != nil {
			findings = append(findings, Finding{EndpointID: ep.ID, Message: err.Error()})
			continue
		}
		for _, msg := range h.ValidateEndpoint(ep) {
			findings = append(findings, Finding{EndpointID: ep.ID, Message: msg})
		}

		rules, err := uc.rules.GetByEndpointID(ctx, ep.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load rules for endpoint %s: %w", ep.ID, err)
		}
		for _, r := range rules {
			if !r.IsActive {
				continue
			}
			for _, msg := range h.ValidateRule(r, ep) {
				findings = append(findings, Finding{EndpointID: ep.ID, RuleID: r.ID, Message: msg})
			}
		}
	}
	return findings, nil
}

// Schema returns the authoring schema of a protocol.
func (uc *ValidateUseCase) Schema(protocol string) (services.Schema, error) {
	h, err := services.NewProtocolHandler(endpoint.ParseProtocol(protocol))
	if err != nil {
		return services.Schema{}, err
	}
	return h.GetSchema(), nil
}
