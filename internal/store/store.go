// Package store persists computed plans and search traces. Memory is the
// default; Postgres keeps results across restarts when DATABASE_URL is set.
package store

import (
	"context"
	"errors"

	"busquest/internal/model"
)

// Store is the persistence interface used by the planner.
type Store interface {
	// Plans
	SavePlan(ctx context.Context, p *model.ChallengePlan) error
	GetPlan(ctx context.Context, challengeID, networkVersion, realtimeVersion string) (*model.ChallengePlan, error)
	LatestPlan(ctx context.Context, challengeID string) (*model.ChallengePlan, error)
	ListPlans(ctx context.Context, challengeID string, limit int) ([]*model.ChallengePlan, error)

	// Traces
	SaveTrace(ctx context.Context, t *model.EngineTrace) error
	LatestTrace(ctx context.Context, challengeID string) (*model.EngineTrace, error)

	Close()
}

var ErrNotFound = errors.New("not found")

// Open selects the backend: Postgres when databaseURL is set, otherwise the
// in-memory store.
func Open(ctx context.Context, databaseURL string) (Store, error) {
	if databaseURL == "" {
		return NewMemory(), nil
	}
	return NewPostgres(ctx, databaseURL)
}
