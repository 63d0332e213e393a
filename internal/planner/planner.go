// Package planner orchestrates the challenge engines over an atomically
// swapped network snapshot, caching finished plans per network and realtime
// version.
package planner

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"busquest/internal/loop"
	"busquest/internal/metrics"
	"busquest/internal/model"
	"busquest/internal/network"
	"busquest/internal/plan"
	"busquest/internal/realtime"
	"busquest/internal/search"
	"busquest/internal/store"
)

// Options wire the planner's collaborators. Loader and Store are optional:
// without a loader Reload fails, without a store plans live only in memory.
type Options struct {
	Loader       *network.Loader
	BuildOptions network.BuildOptions
	Overlay      *realtime.Overlay
	Store        store.Store
	Loop         loop.Options
	Logger       *log.Logger

	// Presentation replaces display fields of built-in challenges, keyed by
	// challenge id. Empty fields keep the built-in text.
	Presentation map[string]Presentation

	NewID func() string
	Now   func() time.Time
}

// Presentation is the operator-editable face of a challenge.
type Presentation struct {
	Title     string
	Tagline   string
	ThemeTags []string
	Badge     string
}

type cacheKey struct {
	challenge string
	netVer    string
	rtVer     string
}

// Service computes and serves challenge plans. Safe for concurrent use: the
// snapshot pointer swaps atomically and the cache is mutex-guarded.
type Service struct {
	opts Options
	snap atomic.Pointer[network.Snapshot]

	mu     sync.Mutex
	cache  map[cacheKey]*model.ChallengePlan
	traces map[string]*model.EngineTrace
}

// NewService starts serving from the given snapshot. The realtime overlay,
// when present, is primed with the snapshot's static edges.
func NewService(snap *network.Snapshot, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Service{
		opts:   opts,
		cache:  map[cacheKey]*model.ChallengePlan{},
		traces: map[string]*model.EngineTrace{},
	}
	s.snap.Store(snap)
	if opts.Overlay != nil {
		opts.Overlay.LoadStaticEdges(snap.Edges)
	}
	return s
}

// Snapshot returns the current network view.
func (s *Service) Snapshot() *network.Snapshot { return s.snap.Load() }

// ListChallenges returns the configured challenges in fixed order.
func (s *Service) ListChallenges() []model.ChallengeInfo {
	snap := s.snap.Load()
	configs := search.AllChallenges(snap)
	out := make([]model.ChallengeInfo, 0, len(configs))
	for _, cfg := range configs {
		info := model.ChallengeInfo{
			ID:        cfg.ChallengeID,
			Title:     cfg.Title,
			Tagline:   cfg.Tagline,
			ThemeTags: cfg.ThemeTags,
			Badge:     cfg.Badge,
		}
		if ov, ok := s.opts.Presentation[cfg.ChallengeID]; ok {
			if ov.Title != "" {
				info.Title = ov.Title
			}
			if ov.Tagline != "" {
				info.Tagline = ov.Tagline
			}
			if len(ov.ThemeTags) > 0 {
				info.ThemeTags = ov.ThemeTags
			}
			if ov.Badge != "" {
				info.Badge = ov.Badge
			}
		}
		out = append(out, info)
	}
	return out
}

func (s *Service) applyPresentation(p *model.ChallengePlan) {
	ov, ok := s.opts.Presentation[p.ChallengeID]
	if !ok {
		return
	}
	if ov.Title != "" {
		p.Title = ov.Title
	}
	if ov.Tagline != "" {
		p.Tagline = ov.Tagline
	}
	if len(ov.ThemeTags) > 0 {
		p.ThemeTags = ov.ThemeTags
	}
	if ov.Badge != "" {
		p.Badge = ov.Badge
	}
}

func (s *Service) findConfig(snap *network.Snapshot, id string) *search.Config {
	for _, cfg := range search.AllChallenges(snap) {
		if cfg.ChallengeID == id {
			return cfg
		}
	}
	return nil
}

// realtimeVersion refreshes the overlay cache (softly) and reports the patch
// set version. "static" means no feed is wired.
func (s *Service) realtimeVersion(ctx context.Context) string {
	o := s.opts.Overlay
	if o == nil || !o.Enabled() {
		return "static"
	}
	o.Refresh(ctx, nil, true)
	return o.Version()
}

// GetChallenge returns the plan for one challenge, recomputing lazily when
// the network or realtime version moved past the cached copy.
func (s *Service) GetChallenge(ctx context.Context, id string) (*model.ChallengePlan, error) {
	base := s.snap.Load()
	cfg := s.findConfig(base, id)
	if cfg == nil {
		return nil, ErrUnknownChallenge
	}

	rtVer := s.realtimeVersion(ctx)
	key := cacheKey{id, base.Version, rtVer}

	s.mu.Lock()
	if cached, ok := s.cache[key]; ok {
		s.mu.Unlock()
		metrics.PlanCacheHits.WithLabelValues("hit").Inc()
		return cached, nil
	}
	s.mu.Unlock()
	metrics.PlanCacheHits.WithLabelValues("miss").Inc()

	work := s.workingSnapshot(ctx, base)
	computed, trace, err := s.compute(ctx, work, cfg)
	s.persistTrace(ctx, trace)
	if err != nil {
		s.mu.Lock()
		s.traces[id] = trace
		s.mu.Unlock()
		return nil, err
	}
	computed.NetworkVersion = base.Version
	computed.RealtimeVersion = rtVer
	s.applyPresentation(computed)

	s.mu.Lock()
	s.cache[key] = computed
	s.traces[id] = trace
	s.mu.Unlock()

	if s.opts.Store != nil {
		if err := s.opts.Store.SavePlan(ctx, computed); err != nil {
			s.opts.Logger.Printf("planner: persist plan %s: %v", computed.PlanID, err)
		}
	}
	return computed, nil
}

// workingSnapshot applies realtime patches by rebuilding the snapshot from
// the overlay's fused edge view. Any rebuild failure falls back to the static
// snapshot; a degraded view beats no view.
func (s *Service) workingSnapshot(ctx context.Context, base *network.Snapshot) *network.Snapshot {
	o := s.opts.Overlay
	if o == nil || !o.Enabled() {
		return base
	}
	edges := o.EdgesForWindow(ctx, search.StartTimeMinutes, search.StartTimeMinutes+search.WindowMinutes, nil, false)
	rebuilt, err := base.Rebuild(edges, s.opts.BuildOptions)
	if err != nil {
		s.opts.Logger.Printf("planner: realtime rebuild failed, using static network: %v", err)
		return base
	}
	return rebuilt
}

// compute runs the engines in order: the loop planner for city-loop, then the
// round-based engine, then the bounded heuristic fallback.
func (s *Service) compute(ctx context.Context, work *network.Snapshot, cfg *search.Config) (*model.ChallengePlan, *model.EngineTrace, error) {
	started := s.opts.Now()

	if cfg.ChallengeID == "city-loop" {
		res, err := loop.Plan(work, s.opts.Loop)
		if err == nil {
			label := labelFromLegs(res.Legs, res.Arrival, res.QuadrantMask)
			score := cfg.Score(label, search.ComputeMetrics(work, label))
			trace := &model.EngineTrace{
				ChallengeID: cfg.ChallengeID,
				Engine:      "loop",
				Accepted:    1,
				DurationMs:  res.Trace.DurationMs,
				Loop: &model.LoopTraceInfo{
					Candidates:       res.Trace.Candidates,
					SegmentsRealized: res.Trace.SegmentsRealized,
					RelaxedQuadrants: res.Trace.RelaxedQuadrants,
				},
			}
			return s.finish(work, cfg, res.Legs, "loop", score, res.QuadrantMask, started), trace, nil
		}
		s.opts.Logger.Printf("planner: %s loop planner: %v; falling back to round search", cfg.ChallengeID, err)
	}

	rounds := search.RunRounds(work, cfg, search.RunOptions{})
	metrics.SearchExtensions.WithLabelValues(cfg.ChallengeID, "rounds").Add(float64(rounds.Trace.Extensions))
	if rounds.Best != nil {
		trace := roundsTrace(cfg.ChallengeID, rounds.Trace)
		best := rounds.Best
		return s.finish(work, cfg, best.Legs, "rounds", best.Score, best.QuadrantMask, started), trace, nil
	}
	s.opts.Logger.Printf("planner: %s round search found nothing after %d rounds; trying heuristic",
		cfg.ChallengeID, rounds.Trace.Rounds)

	heur := search.RunHeuristic(work, search.FallbackOptions(cfg.ChallengeID))
	metrics.SearchExtensions.WithLabelValues(cfg.ChallengeID, "heuristic").Add(float64(heur.Trace.Extensions))
	if heur.Trace.LimitHit {
		metrics.SearchLimitHits.WithLabelValues(cfg.ChallengeID, "heuristic").Inc()
	}
	trace := heuristicTrace(cfg.ChallengeID, heur.Trace)
	if len(heur.Path) == 0 {
		reason := "no itinerary satisfies the acceptance rule"
		if heur.Trace.LimitHit {
			reason = "search budget exhausted before any itinerary completed"
		}
		return nil, trace, &NoPathFoundError{
			ChallengeID:   cfg.ChallengeID,
			Reason:        reason,
			ResourceLimit: heur.Trace.LimitHit,
		}
	}
	legs := plan.CollapseEdges(heur.Path)
	return s.finish(work, cfg, legs, "heuristic", heur.Score, heur.QuadrantMask, started), trace, nil
}

func (s *Service) finish(work *network.Snapshot, cfg *search.Config, legs []search.Leg, engine string, score float64, mask int, started time.Time) *model.ChallengePlan {
	elapsed := s.opts.Now().Sub(started)
	metrics.PlanComputations.WithLabelValues(cfg.ChallengeID, engine).Inc()
	metrics.PlanComputeDuration.WithLabelValues(cfg.ChallengeID, engine).Observe(elapsed.Seconds())
	s.opts.Logger.Printf("planner: %s computed by %s in %s (%d legs, score %.0f)",
		cfg.ChallengeID, engine, elapsed.Round(time.Millisecond), len(legs), score)
	return plan.Assemble(work, plan.Assembly{
		PlanID:       s.opts.NewID(),
		Config:       cfg,
		Legs:         legs,
		Engine:       engine,
		Score:        score,
		QuadrantMask: mask,
		GeneratedAt:  s.opts.Now(),
	})
}

// labelFromLegs reconstructs a search label from realized legs so the loop
// planner's output can be scored with the same challenge functions.
func labelFromLegs(legs []search.Leg, arrival, mask int) *search.Label {
	label := &search.Label{
		Arrival:      arrival,
		QuadrantMask: mask,
		Legs:         legs,
		Visited:      map[string]struct{}{},
		StopCounts:   map[string]int{},
		LineCounts:   map[string]int{},
	}
	for i, leg := range legs {
		if i == 0 {
			label.Visited[leg.FromCode] = struct{}{}
			label.StopCounts[leg.FromCode]++
		}
		label.Visited[leg.ToCode] = struct{}{}
		label.StopCounts[leg.ToCode]++
		label.LineCounts[leg.LineID]++
		label.RideMinutes += leg.Arrive - leg.Depart
		label.DistanceKm += leg.DistanceKm
	}
	label.Transfers = max(0, len(legs)-1)
	return label
}

// SearchTrace returns the trace of the most recent engine run for a
// challenge, computing the plan first when none exists yet. A failed search
// still has a trace worth showing.
func (s *Service) SearchTrace(ctx context.Context, id string) (*model.EngineTrace, error) {
	s.mu.Lock()
	trace, ok := s.traces[id]
	s.mu.Unlock()
	if ok {
		return trace, nil
	}
	if _, err := s.GetChallenge(ctx, id); err != nil {
		var noPath *NoPathFoundError
		if trace := s.storedTrace(id); trace != nil && errors.As(err, &noPath) {
			return trace, nil
		}
		return nil, err
	}
	return s.storedTrace(id), nil
}

func (s *Service) persistTrace(ctx context.Context, trace *model.EngineTrace) {
	if s.opts.Store == nil || trace == nil {
		return
	}
	if err := s.opts.Store.SaveTrace(ctx, trace); err != nil {
		s.opts.Logger.Printf("planner: persist trace %s: %v", trace.ChallengeID, err)
	}
}

func (s *Service) storedTrace(id string) *model.EngineTrace {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.traces[id]
}

// Diagnostics reports the loaded network and planner state.
func (s *Service) Diagnostics(ctx context.Context) model.Diagnostics {
	snap := s.snap.Load()
	s.mu.Lock()
	cached := len(s.cache)
	s.mu.Unlock()
	d := model.Diagnostics{
		NetworkVersion:  snap.Version,
		RealtimeVersion: s.realtimeVersion(ctx),
		Stops:           len(snap.Stops),
		Routes:          len(snap.Routes),
		Edges:           len(snap.Edges),
		EligibleLines:   len(snap.EligibleLines),
		HubStops:        snap.HubStops,
		BoundaryAnchors: max(0, len(snap.BoundarySequence)-1),
		CachedPlans:     cached,
		Exclusions: model.ExclusionCounts{
			LineNotEligible: snap.Exclusions.LineNotEligible,
			UnknownStop:     snap.Exclusions.UnknownStop,
			InvalidTime:     snap.Exclusions.InvalidTime,
			OutsideWindow:   snap.Exclusions.OutsideWindow,
			CancelledByFeed: snap.Exclusions.CancelledByFeed,
			Kept:            snap.Exclusions.Kept,
		},
	}
	if o := s.opts.Overlay; o != nil {
		d.RealtimeEnabled = o.Enabled()
	}
	return d
}

// Reload reads the data directory fresh, swaps the snapshot in atomically and
// drops every cached plan. Returns the new network version.
func (s *Service) Reload(ctx context.Context) (string, error) {
	if s.opts.Loader == nil {
		return "", &ConfigValidationError{Field: "dataDir", Reason: "no data loader configured"}
	}
	snap, err := s.opts.Loader.Load(s.opts.BuildOptions)
	if err != nil {
		metrics.NetworkReloads.WithLabelValues("error").Inc()
		return "", err
	}
	s.snap.Store(snap)
	if s.opts.Overlay != nil {
		s.opts.Overlay.LoadStaticEdges(snap.Edges)
	}
	s.mu.Lock()
	s.cache = map[cacheKey]*model.ChallengePlan{}
	s.traces = map[string]*model.EngineTrace{}
	s.mu.Unlock()
	metrics.NetworkReloads.WithLabelValues("ok").Inc()
	s.opts.Logger.Printf("planner: snapshot reloaded, version %s (%d stops, %d edges)",
		snap.Version, len(snap.Stops), len(snap.Edges))
	return snap.Version, nil
}

// ComputeAll warms every challenge. Used by the background worker; individual
// failures are logged and do not stop the sweep.
func (s *Service) ComputeAll(ctx context.Context) {
	for _, info := range s.ListChallenges() {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.GetChallenge(ctx, info.ID); err != nil {
			s.opts.Logger.Printf("planner: precompute %s: %v", info.ID, err)
		}
	}
}

func roundsTrace(id string, t search.Trace) *model.EngineTrace {
	return &model.EngineTrace{
		ChallengeID: id,
		Engine:      "rounds",
		Rounds:      t.Rounds,
		Extensions:  t.Extensions,
		Inserted:    t.Inserted,
		Accepted:    t.Accepted,
		LimitHit:    t.LimitHit,
		DurationMs:  t.DurationMs,
		RoundMarked: t.RoundMarked,
	}
}

func heuristicTrace(id string, t search.Trace) *model.EngineTrace {
	return &model.EngineTrace{
		ChallengeID: id,
		Engine:      "heuristic",
		Extensions:  t.Extensions,
		Accepted:    t.Accepted,
		LimitHit:    t.LimitHit,
		DurationMs:  t.DurationMs,
	}
}
