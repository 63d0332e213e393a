package search

import (
	"container/heap"
	"sort"
	"time"

	"busquest/internal/network"
)

// Defaults for the bounded best-first fallback.
const (
	DefaultMaxQueue      = 2000
	DefaultMaxExpansions = 120000
	DefaultMaxBranch     = 6
)

// HeuristicOptions tune one fallback run. Zero limits take the defaults.
type HeuristicOptions struct {
	ScoreKey         string
	RequireUnique    bool
	RequireQuadrants bool

	MaxQueue      int
	MaxExpansions int
	MaxBranch     int

	MinTransferMinutes      int
	TransferPenaltyMinutes  int
	MaxStopVisits           int
	MaxLineVisits           int
	HubMaxVisits            int
	StopRepeatPenaltyWeight int
}

// FallbackOptions returns the tuned fallback parameters for a built-in
// challenge.
func FallbackOptions(challengeID string) HeuristicOptions {
	switch challengeID {
	case "longest-duration":
		return HeuristicOptions{
			ScoreKey:                "ride",
			MaxQueue:                2500,
			MaxExpansions:           150000,
			MaxStopVisits:           3,
			MaxLineVisits:           2,
			MinTransferMinutes:      5,
			TransferPenaltyMinutes:  5,
			HubMaxVisits:            3,
			StopRepeatPenaltyWeight: 900,
		}
	case "most-stops":
		return HeuristicOptions{
			ScoreKey:                "unique",
			RequireUnique:           true,
			MaxQueue:                3200,
			MaxExpansions:           180000,
			MaxBranch:               10,
			MinTransferMinutes:      6,
			TransferPenaltyMinutes:  6,
			HubMaxVisits:            2,
			StopRepeatPenaltyWeight: 1600,
		}
	case "city-loop":
		return HeuristicOptions{
			ScoreKey:                "loop",
			RequireQuadrants:        true,
			MaxQueue:                3500,
			MaxExpansions:           220000,
			MaxBranch:               12,
			MinTransferMinutes:      5,
			TransferPenaltyMinutes:  5,
			HubMaxVisits:            2,
			StopRepeatPenaltyWeight: 1400,
		}
	case "longest-distance":
		return HeuristicOptions{
			ScoreKey:                "distance",
			MaxQueue:                3500,
			MaxExpansions:           220000,
			MaxBranch:               12,
			MaxStopVisits:           4,
			MinTransferMinutes:      5,
			TransferPenaltyMinutes:  5,
			StopRepeatPenaltyWeight: 900,
		}
	default:
		return HeuristicOptions{ScoreKey: "ride"}
	}
}

type searchState struct {
	score        float64
	rideMinutes  int
	currentTime  int
	stopCode     string
	path         []network.TripEdge
	visited      map[string]struct{}
	uniqueCount  int
	quadrantMask int
	stopVisits   map[string]int
	lineVisits   map[string]int
	transfers    int
	distanceKm   float64
	seq          int
}

type stateHeap []*searchState

func (h stateHeap) Len() int { return len(h) }
func (h stateHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score > h[j].score
	}
	return h[i].seq < h[j].seq
}
func (h stateHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *stateHeap) Push(x any) { *h = append(*h, x.(*searchState)) }
func (h *stateHeap) Pop() any {
	old := *h
	n := len(old)
	s := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return s
}

// HeuristicResult is a completed (or best partial) itinerary from the
// fallback engine.
type HeuristicResult struct {
	Path         []network.TripEdge
	Score        float64
	RideMinutes  int
	DistanceKm   float64
	Arrival      int
	QuadrantMask int
	Trace        Trace
}

// RunHeuristic is the bounded best-first fallback: states are expanded in
// score order with per-(stop, half-hour) pruning, and the run stops when the
// expansion or queue budget is exhausted. LimitHit in the trace reports
// whether a budget cut the search short.
func RunHeuristic(snap *network.Snapshot, opts HeuristicOptions) *HeuristicResult {
	started := time.Now()
	trace := Trace{Engine: "heuristic"}
	if len(snap.Schedules) == 0 {
		return &HeuristicResult{Trace: trace}
	}

	queueLimit := opts.MaxQueue
	if queueLimit == 0 {
		queueLimit = DefaultMaxQueue
	}
	expansionLimit := opts.MaxExpansions
	if expansionLimit == 0 {
		expansionLimit = DefaultMaxExpansions
	}
	branchLimit := opts.MaxBranch
	if branchLimit == 0 {
		branchLimit = DefaultMaxBranch
	}
	minTransfer := opts.MinTransferMinutes
	if minTransfer == 0 {
		minTransfer = 3
	}
	timeLimit := StartTimeMinutes + WindowMinutes

	hubSet := make(map[string]struct{}, len(snap.HubStops))
	for _, s := range snap.HubStops {
		hubSet[s] = struct{}{}
	}

	pq := &stateHeap{}
	heap.Init(pq)
	seq := 0
	compacted := false
	push := func(s *searchState) {
		seq++
		s.seq = seq
		heap.Push(pq, s)
		// Soft cap: compact to the best queueLimit states when the heap
		// doubles past the limit.
		if pq.Len() > queueLimit*2 {
			compacted = true
			states := []*searchState(*pq)
			sort.Slice(states, func(i, j int) bool {
				if states[i].score != states[j].score {
					return states[i].score > states[j].score
				}
				return states[i].seq < states[j].seq
			})
			trimmed := stateHeap(states[:queueLimit])
			heap.Init(&trimmed)
			*pq = trimmed
		}
	}

	for _, stop := range snap.HubStops {
		s := &searchState{
			currentTime:  StartTimeMinutes,
			stopCode:     stop,
			quadrantMask: snap.Quadrant(stop),
			stopVisits:   map[string]int{stop: 1},
			lineVisits:   map[string]int{},
		}
		if opts.RequireUnique {
			s.visited = map[string]struct{}{stop: {}}
			s.uniqueCount = 1
		}
		push(s)
	}

	type pruneKey struct {
		stop   string
		bucket int
	}
	bestKeyScore := map[pruneKey]float64{}
	var results []*searchState
	expansions := 0

	for pq.Len() > 0 && expansions < expansionLimit {
		state := heap.Pop(pq).(*searchState)
		expansions++

		if len(state.path) > 0 && state.currentTime >= StartTimeMinutes+MinAcceptMinutes {
			if _, atHub := hubSet[state.stopCode]; atHub {
				if !opts.RequireQuadrants || state.quadrantMask == network.AllQuadrantsMask {
					results = append(results, state)
					if opts.ScoreKey == "loop" && state.quadrantMask == network.AllQuadrantsMask {
						break
					}
				}
			}
		}

		sched, ok := snap.Schedules[state.stopCode]
		if !ok {
			continue
		}
		edges := sched.EdgesFrom(state.currentTime + minTransfer)
		branches := 0
		for i := range edges {
			edge := edges[i]
			if edge.Arrive > timeLimit {
				continue
			}
			if n := len(state.path); n > 0 {
				last := state.path[n-1]
				if last.FromCode == edge.ToCode && last.ToCode == edge.FromCode {
					continue
				}
			}
			next := extendState(snap, state, edge, opts)
			if next == nil {
				continue
			}
			branches++
			if branches > branchLimit {
				break
			}
			next.score = scoreState(next, opts)
			key := pruneKey{edge.ToCode, next.currentTime / 30}
			if best, ok := bestKeyScore[key]; ok && next.score <= best {
				continue
			}
			bestKeyScore[key] = next.score
			push(next)
		}
	}

	trace.Extensions = expansions
	trace.Accepted = len(results)
	trace.LimitHit = compacted || (pq.Len() > 0 && expansions >= expansionLimit)
	trace.DurationMs = time.Since(started).Milliseconds()

	if len(results) == 0 {
		return &HeuristicResult{Trace: trace}
	}
	sort.SliceStable(results, func(i, j int) bool {
		si, sj := scoreState(results[i], opts), scoreState(results[j], opts)
		if si != sj {
			return si > sj
		}
		if results[i].rideMinutes != results[j].rideMinutes {
			return results[i].rideMinutes > results[j].rideMinutes
		}
		return results[i].seq < results[j].seq
	})
	best := results[0]
	return &HeuristicResult{
		Path:         best.path,
		Score:        scoreState(best, opts),
		RideMinutes:  best.rideMinutes,
		DistanceKm:   best.distanceKm,
		Arrival:      best.currentTime,
		QuadrantMask: best.quadrantMask,
		Trace:        trace,
	}
}

func extendState(snap *network.Snapshot, state *searchState, edge network.TripEdge, opts HeuristicOptions) *searchState {
	visits := state.stopVisits[edge.ToCode]
	limit := opts.MaxStopVisits
	if snap.HubStop(edge.ToCode) && opts.HubMaxVisits > 0 {
		limit = opts.HubMaxVisits
	}
	if limit > 0 && visits >= limit {
		return nil
	}

	boardingNewTrip := true
	if n := len(state.path); n > 0 {
		last := state.path[n-1]
		boardingNewTrip = last.TripID != edge.TripID || last.LineID != edge.LineID
	}
	lineVisits := state.lineVisits[edge.LineID]
	if boardingNewTrip {
		if opts.MaxLineVisits > 0 && lineVisits+1 > opts.MaxLineVisits {
			return nil
		}
	}

	next := &searchState{
		rideMinutes:  state.rideMinutes + edge.RideMinutes(),
		currentTime:  edge.Arrive,
		stopCode:     edge.ToCode,
		uniqueCount:  state.uniqueCount,
		quadrantMask: state.quadrantMask | snap.Quadrant(edge.ToCode),
		transfers:    state.transfers,
		distanceKm:   state.distanceKm + edge.DistanceKm,
	}
	next.path = make([]network.TripEdge, len(state.path), len(state.path)+1)
	copy(next.path, state.path)
	next.path = append(next.path, edge)

	next.stopVisits = copyCounts(state.stopVisits)
	next.stopVisits[edge.ToCode] = visits + 1
	next.lineVisits = copyCounts(state.lineVisits)
	if boardingNewTrip {
		next.lineVisits[edge.LineID] = lineVisits + 1
		if len(state.path) > 0 {
			next.transfers++
		}
	}
	if opts.RequireUnique {
		next.visited = copyStrSet(state.visited)
		next.visited[edge.ToCode] = struct{}{}
		next.uniqueCount = len(next.visited)
	}
	return next
}

// scoreState ranks fallback states per objective. The weights mirror the
// primary engine's emphasis at a much coarser granularity.
func scoreState(state *searchState, opts HeuristicOptions) float64 {
	lines := map[string]struct{}{}
	for _, e := range state.path {
		lines[e.LineID] = struct{}{}
	}
	uniqueLines := len(lines)
	repeat := max(0, len(state.path)-uniqueLines)

	repeatPenalty := 0
	for _, cnt := range state.stopVisits {
		if cnt > 1 {
			repeatPenalty += cnt - 1
		}
	}
	penalty := float64(repeatPenalty*opts.StopRepeatPenaltyWeight) +
		float64(state.transfers*opts.TransferPenaltyMinutes)

	switch opts.ScoreKey {
	case "loop":
		quadrants := 0
		for mask := state.quadrantMask; mask != 0; mask >>= 1 {
			quadrants += mask & 1
		}
		return float64(quadrants)*2000 + float64(state.rideMinutes) +
			float64(uniqueLines)*15 - float64(repeat)*4 - penalty
	case "unique":
		return float64(state.uniqueCount)*1200 + float64(state.rideMinutes) +
			float64(uniqueLines)*12 - float64(repeat)*6 - penalty
	case "distance":
		return state.distanceKm*50 + float64(state.rideMinutes) +
			float64(uniqueLines)*10 - float64(repeat)*8 - penalty
	default: // ride
		return float64(state.rideMinutes) + float64(uniqueLines)*10 -
			float64(repeat)*8 - penalty
	}
}
