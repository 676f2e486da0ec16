package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/sophialabs/mimicry/internal/domain/endpoint"
	"github.com/sophialabs/mimicry/internal/domain/proxy"
	"github.com/sophialabs/mimicry/internal/domain/scenario"
)

var (
	_ endpoint.Repository     = (*MemoryStore)(nil)
	_ endpoint.RuleRepository = (*MemoryStore)(nil)
	_ proxy.ConfigRepository  = (*MemoryStore)(nil)
	_ proxy.ServiceRepository = memoryProxies{}
	_ scenario.Repository     = memoryScenarios{}
)

// MemoryStore is an in-memory implementation of every repository port.
// Slices are handed out in insertion order.
type MemoryStore struct {
	mu        sync.Mutex
	Endpoints []*endpoint.Endpoint
	Rules     []*endpoint.Rule
	Proxies   []*proxy.Target
	Config    *proxy.Target
	Scenarios []*scenario.Scenario
	// Err, when set, is returned by every read.
	Err error

	States map[string]string
}

func (m *MemoryStore) GetAllActive(context.Context) ([]*endpoint.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []*endpoint.Endpoint
	for _, e := range m.Endpoints {
		if e.IsActive {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) GetByID(_ context.Context, id string) (*endpoint.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for _, e := range m.Endpoints {
		if e.ID == id {
			cp := *e
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", endpoint.ErrNotFound, id)
}

func (m *MemoryStore) GetByEndpointID(_ context.Context, endpointID string) ([]*endpoint.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []*endpoint.Rule
	for _, r := range m.Rules {
		if r.EndpointID == endpointID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ProxyTargets adapts the store to proxy.ServiceRepository, whose method
// name collides with endpoint.Repository.
func (m *MemoryStore) ProxyTargets() proxy.ServiceRepository { return memoryProxies{m} }

// ScenarioRepo adapts the store to scenario.Repository.
func (m *MemoryStore) ScenarioRepo() scenario.Repository { return memoryScenarios{m} }

func (m *MemoryStore) GetActive(context.Context) (*proxy.Target, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Config == nil {
		return nil, nil
	}
	cp := *m.Config
	return &cp, nil
}

// SetEndpoint replaces or appends an endpoint.
func (m *MemoryStore) SetEndpoint(e *endpoint.Endpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.Endpoints {
		if existing.ID == e.ID {
			m.Endpoints[i] = e
			return
		}
	}
	m.Endpoints = append(m.Endpoints, e)
}

// SetRules replaces all rules of an endpoint.
func (m *MemoryStore) SetRules(endpointID string, rules ...*endpoint.Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.Rules[:0:0]
	for _, r := range m.Rules {
		if r.EndpointID != endpointID {
			kept = append(kept, r)
		}
	}
	m.Rules = append(kept, rules...)
}

// State returns the persisted state of a scenario.
func (m *MemoryStore) State(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.States[id]
}

type memoryProxies struct{ m *MemoryStore }

func (p memoryProxies) GetAllActive(context.Context) ([]*proxy.Target, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	if p.m.Err != nil {
		return nil, p.m.Err
	}
	var out []*proxy.Target
	for _, t := range p.m.Proxies {
		if t.IsActive {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memoryScenarios struct{ m *MemoryStore }

func (s memoryScenarios) GetAllActive(context.Context) ([]*scenario.Scenario, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.Err != nil {
		return nil, s.m.Err
	}
	var out []*scenario.Scenario
	for _, sc := range s.m.Scenarios {
		if sc.IsActive {
			cp := *sc
			if st, ok := s.m.States[sc.ID]; ok {
				cp.CurrentState = st
			}
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s memoryScenarios) UpdateCurrentState(_ context.Context, id, state string, _ uint64) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.States == nil {
		s.m.States = map[string]string{}
	}
	s.m.States[id] = state
	return nil
}
