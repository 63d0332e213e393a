package store

import (
	"context"
	"errors"
	"testing"

	"busquest/internal/model"
)

func samplePlan(id, challenge, netVer, rtVer string) *model.ChallengePlan {
	return &model.ChallengePlan{
		PlanID:          id,
		ChallengeID:     challenge,
		Engine:          "rounds",
		NetworkVersion:  netVer,
		RealtimeVersion: rtVer,
	}
}

func TestMemoryPlanRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.LatestPlan(ctx, "longest-duration"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty store must return ErrNotFound, got %v", err)
	}

	if err := m.SavePlan(ctx, samplePlan("p1", "longest-duration", "n1", "r1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := m.SavePlan(ctx, samplePlan("p2", "longest-duration", "n2", "r1")); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := m.GetPlan(ctx, "longest-duration", "n1", "r1")
	if err != nil || got.PlanID != "p1" {
		t.Fatalf("versioned lookup: %v %+v", err, got)
	}
	if _, err := m.GetPlan(ctx, "longest-duration", "n1", "r9"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stale realtime version must miss, got %v", err)
	}

	latest, err := m.LatestPlan(ctx, "longest-duration")
	if err != nil || latest.PlanID != "p2" {
		t.Fatalf("latest must be the newest save: %v %+v", err, latest)
	}

	list, err := m.ListPlans(ctx, "longest-duration", 1)
	if err != nil || len(list) != 1 || list[0].PlanID != "p2" {
		t.Fatalf("list with limit: %v %+v", err, list)
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.SavePlan(ctx, samplePlan("p1", "most-stops", "n1", "r1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, _ := m.LatestPlan(ctx, "most-stops")
	got.PlanID = "mutated"
	again, _ := m.LatestPlan(ctx, "most-stops")
	if again.PlanID != "p1" {
		t.Fatal("callers must not be able to mutate stored plans")
	}
}

func TestMemoryTraceUpsert(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if _, err := m.LatestTrace(ctx, "city-loop"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing trace must return ErrNotFound, got %v", err)
	}
	if err := m.SaveTrace(ctx, &model.EngineTrace{ChallengeID: "city-loop", Engine: "loop"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := m.SaveTrace(ctx, &model.EngineTrace{ChallengeID: "city-loop", Engine: "heuristic", LimitHit: true}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := m.LatestTrace(ctx, "city-loop")
	if err != nil || got.Engine != "heuristic" || !got.LimitHit {
		t.Fatalf("trace must upsert: %v %+v", err, got)
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	s, err := Open(context.Background(), "")
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if _, ok := s.(*Memory); !ok {
		t.Fatalf("empty DSN must select the memory store, got %T", s)
	}
}
