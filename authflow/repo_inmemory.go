package authflow

import (
	"context"
	"errors"
	"sync"
	"time"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface
type InMemoryRepo struct {
	mu     sync.Mutex
	states map[string]*LoginFlowState
}

// NewInMemoryRepo creates a new in-memory login flow repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		states: make(map[string]*LoginFlowState),
	}
}

// Save stores a flow, replacing any flow with the same state
func (r *InMemoryRepo) Save(_ context.Context, flow *LoginFlowState) error {
	if flow == nil {
		return errors.New("flow cannot be nil")
	}
	if flow.State == "" {
		return ErrEmptyState
	}

	// Store a copy to prevent external modifications
	cp := *flow

	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[flow.State] = &cp
	return nil
}

// Consume removes and returns the flow for state
func (r *InMemoryRepo) Consume(_ context.Context, state string) (*LoginFlowState, error) {
	if state == "" {
		return nil, ErrEmptyState
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	flow, ok := r.states[state]
	if !ok {
		return nil, ErrFlowNotFound
	}
	delete(r.states, state)
	return flow, nil
}

// PurgeExpired drops flows that expired before now and returns how many were removed.
func (r *InMemoryRepo) PurgeExpired(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for state, flow := range r.states {
		if flow.Expired(now) {
			delete(r.states, state)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored flows
func (r *InMemoryRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

var _ CorpRepo = (*InMemoryCorpRepo)(nil)

type InMemoryCorpRepo struct {
	mu    sync.Mutex
	flows map[string]*CorpFlowState
}

func NewInMemoryCorpRepo() *InMemoryCorpRepo {
	return &InMemoryCorpRepo{
		flows: make(map[string]*CorpFlowState),
	}
}

func (r *InMemoryCorpRepo) Save(_ context.Context, flow *CorpFlowState) error {
	if flow == nil || flow.FlowID == "" {
		return errors.New("flow id cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.flows[flow.FlowID] = copyCorpFlow(flow)
	return nil
}

func (r *InMemoryCorpRepo) Get(_ context.Context, flowID string) (*CorpFlowState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	flow, ok := r.flows[flowID]
	if !ok {
		return nil, ErrFlowNotFound
	}
	return copyCorpFlow(flow), nil
}

func (r *InMemoryCorpRepo) Consume(_ context.Context, flowID string) (*CorpFlowState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	flow, ok := r.flows[flowID]
	if !ok {
		return nil, ErrFlowNotFound
	}
	delete(r.flows, flowID)
	return flow, nil
}

func (r *InMemoryCorpRepo) PurgeExpired(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, flow := range r.flows {
		if flow.Expired(now) {
			delete(r.flows, id)
			removed++
		}
	}
	return removed
}

func copyCorpFlow(f *CorpFlowState) *CorpFlowState {
	cp := *f
	cp.AllowedFactors = append([]string(nil), f.AllowedFactors...)
	return &cp
}
