package store

import (
	"context"
	"sync"

	"busquest/internal/model"
)

// Memory is the in-memory store used when no DATABASE_URL is set. Plans are
// kept newest-first per challenge.
type Memory struct {
	mu     sync.Mutex
	plans  map[string][]*model.ChallengePlan
	traces map[string]*model.EngineTrace
}

func NewMemory() *Memory {
	return &Memory{
		plans:  map[string][]*model.ChallengePlan{},
		traces: map[string]*model.EngineTrace{},
	}
}

func (m *Memory) SavePlan(_ context.Context, p *model.ChallengePlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.plans[p.ChallengeID] = append([]*model.ChallengePlan{&cp}, m.plans[p.ChallengeID]...)
	return nil
}

func (m *Memory) GetPlan(_ context.Context, challengeID, networkVersion, realtimeVersion string) (*model.ChallengePlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.plans[challengeID] {
		if p.NetworkVersion == networkVersion && p.RealtimeVersion == realtimeVersion {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) LatestPlan(_ context.Context, challengeID string) (*model.ChallengePlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.plans[challengeID]
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	cp := *list[0]
	return &cp, nil
}

func (m *Memory) ListPlans(_ context.Context, challengeID string, limit int) ([]*model.ChallengePlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.plans[challengeID]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]*model.ChallengePlan, 0, limit)
	for _, p := range list[:limit] {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Memory) SaveTrace(_ context.Context, t *model.EngineTrace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.traces[t.ChallengeID] = &cp
	return nil
}

func (m *Memory) LatestTrace(_ context.Context, challengeID string) (*model.EngineTrace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.traces[challengeID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *Memory) Close() {}
