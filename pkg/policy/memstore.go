package policy

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound indicates the policy id does not exist.
var ErrNotFound = errors.New("policy not found")

// MemoryStore is an in-memory policy store preserving insertion order, which
// the engine relies on for deterministic tie-breaking.
type MemoryStore struct {
	mu       sync.RWMutex
	policies map[string]*Policy
	order    []string
}

// NewMemoryStore creates an empty in-memory policy store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{policies: make(map[string]*Policy)}
}

// CreatePolicy stores a new policy.
func (s *MemoryStore) CreatePolicy(ctx context.Context, p *Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[p.ID]; ok {
		return fmt.Errorf("policy %q already exists", p.ID)
	}
	cp := copyPolicy(p)
	s.policies[p.ID] = cp
	s.order = append(s.order, p.ID)
	return nil
}

// GetPolicy returns the policy with the given id.
func (s *MemoryStore) GetPolicy(ctx context.Context, id string) (*Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[id]
	if !ok {
		return nil, fmt.Errorf("policy %q: %w", id, ErrNotFound)
	}
	return copyPolicy(p), nil
}

// UpdatePolicy replaces the stored policy, keeping its insertion position.
func (s *MemoryStore) UpdatePolicy(ctx context.Context, p *Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[p.ID]; !ok {
		return fmt.Errorf("policy %q: %w", p.ID, ErrNotFound)
	}
	s.policies[p.ID] = copyPolicy(p)
	return nil
}

// DeletePolicy removes the policy.
func (s *MemoryStore) DeletePolicy(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[id]; !ok {
		return fmt.Errorf("policy %q: %w", id, ErrNotFound)
	}
	delete(s.policies, id)
	for i, pid := range s.order {
		if pid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// ActivePolicies returns the tenant's active policies in insertion order.
func (s *MemoryStore) ActivePolicies(ctx context.Context, tenantID string) ([]Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Policy
	for _, id := range s.order {
		p := s.policies[id]
		if p.TenantID == tenantID && p.Active {
			out = append(out, *copyPolicy(p))
		}
	}
	return out, nil
}

func copyPolicy(p *Policy) *Policy {
	cp := *p
	cp.Rules = append([]Rule(nil), p.Rules...)
	return &cp
}
