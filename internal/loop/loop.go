// Package loop plans the full city circuit: a travelling-salesman tour over
// the boundary anchor stops, realized segment by segment with a constrained
// fastest-arrival search.
package loop

import (
	"errors"
	"log"
	"math/bits"
	"sort"
	"strings"
	"time"

	"busquest/internal/geo"
	"busquest/internal/network"
	"busquest/internal/search"
)

var (
	// ErrNoBoundary means the snapshot carries no usable anchor sequence, so
	// a tour cannot even be ordered.
	ErrNoBoundary = errors.New("loop: no boundary anchor sequence in snapshot")

	// ErrNoViableLoop means every candidate tour failed to realize within the
	// planning window.
	ErrNoViableLoop = errors.New("loop: no candidate tour could be realized")
)

// Options tune one loop planning run. Zero values take the defaults.
type Options struct {
	// QuadrantMinimum is the fewest quadrants a realized tour may cover.
	// Default 4; relaxing to 3 accepts a degraded loop and logs it.
	QuadrantMinimum int

	// MaxTwoOptIterations bounds the 2-opt improvement passes.
	MaxTwoOptIterations int

	// SegmentMaxRounds caps boardings per anchor-to-anchor segment.
	SegmentMaxRounds int

	MinTransferMinutes int

	Logger *log.Logger
}

func (o *Options) fillDefaults() {
	if o.QuadrantMinimum == 0 {
		o.QuadrantMinimum = 4
	}
	if o.MaxTwoOptIterations == 0 {
		o.MaxTwoOptIterations = 30
	}
	if o.SegmentMaxRounds == 0 {
		o.SegmentMaxRounds = 4
	}
	if o.MinTransferMinutes == 0 {
		o.MinTransferMinutes = 5
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
}

// Trace summarizes one loop run for diagnostics.
type Trace struct {
	Candidates       int   `json:"candidates"`
	SegmentsRealized int   `json:"segmentsRealized"`
	RelaxedQuadrants bool  `json:"relaxedQuadrants"`
	DurationMs       int64 `json:"durationMs"`
}

// Result is a realized circuit: the anchor order that won plus the concrete
// legs riding it.
type Result struct {
	Sequence     []string
	Legs         []search.Leg
	Arrival      int
	RideMinutes  int
	DistanceKm   float64
	QuadrantMask int
	Trace        Trace
}

// Plan orders the boundary anchors into candidate tours (nearest neighbor,
// its reverse, a 2-opt refinement and the raw bearing order), then realizes
// each tour hub to hub until one fits the window and quadrant rule.
func Plan(snap *network.Snapshot, opts Options) (*Result, error) {
	opts.fillDefaults()
	started := time.Now()

	seq := snap.BoundarySequence
	if len(seq) < 3 || !snap.HubStop(seq[0]) {
		return nil, ErrNoBoundary
	}

	dist := buildDistanceMatrix(snap, seq)
	trace := Trace{}

	for _, tour := range candidateTours(seq, dist, opts.MaxTwoOptIterations) {
		trace.Candidates++
		res, segments := realizeTour(snap, tour, opts)
		trace.SegmentsRealized += segments
		if res == nil {
			continue
		}
		covered := bits.OnesCount(uint(res.QuadrantMask))
		if covered < 4 {
			if covered < opts.QuadrantMinimum {
				continue
			}
			opts.Logger.Printf("loop: accepting degraded tour covering %d/4 quadrants (minimum %d)",
				covered, opts.QuadrantMinimum)
			trace.RelaxedQuadrants = true
		}
		res.Sequence = tour
		res.Trace = trace
		res.Trace.DurationMs = time.Since(started).Milliseconds()
		return res, nil
	}

	return nil, ErrNoViableLoop
}

// buildDistanceMatrix is great-circle distance between every anchor pair.
func buildDistanceMatrix(snap *network.Snapshot, seq []string) [][]float64 {
	dist := make([][]float64, len(seq))
	for i := range seq {
		dist[i] = make([]float64, len(seq))
		a := snap.Stops[seq[i]]
		for j := range seq {
			if i == j {
				continue
			}
			b := snap.Stops[seq[j]]
			dist[i][j] = geo.HaversineKm(a.Lat, a.Lon, b.Lat, b.Lon)
		}
	}
	return dist
}

// candidateTours lists distinct anchor orders to try, hub always first:
// nearest neighbor, its reverse, the 2-opt refinement when it differs, and
// the raw bearing cycle as the final fallback.
func candidateTours(seq []string, dist [][]float64, maxTwoOpt int) [][]string {
	nn := nearestNeighborTour(dist)
	rev := reverseTour(nn)
	opt := twoOptTour(nn, dist, maxTwoOpt)

	indexTours := [][]int{nn, rev}
	if !sameTour(opt, nn) && !sameTour(opt, rev) {
		indexTours = append(indexTours, opt)
	}
	raw := make([]int, len(seq))
	for i := range raw {
		raw[i] = i
	}
	indexTours = append(indexTours, raw)

	var tours [][]string
	seen := map[string]struct{}{}
	for _, idx := range indexTours {
		tour := make([]string, len(idx))
		for i, j := range idx {
			tour[i] = seq[j]
		}
		key := strings.Join(tour, "|")
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		tours = append(tours, tour)
	}
	return tours
}

// nearestNeighborTour starts at the hub (index 0) and greedily visits the
// closest unvisited anchor. Index order breaks distance ties.
func nearestNeighborTour(dist [][]float64) []int {
	n := len(dist)
	tour := make([]int, 0, n)
	visited := make([]bool, n)
	cur := 0
	tour = append(tour, cur)
	visited[cur] = true
	for len(tour) < n {
		next := -1
		best := 0.0
		for j := 0; j < n; j++ {
			if visited[j] {
				continue
			}
			if next == -1 || dist[cur][j] < best {
				next = j
				best = dist[cur][j]
			}
		}
		tour = append(tour, next)
		visited[next] = true
		cur = next
	}
	return tour
}

// reverseTour keeps the hub first and reverses the rest of the visit order.
func reverseTour(tour []int) []int {
	out := make([]int, len(tour))
	out[0] = tour[0]
	for i := 1; i < len(tour); i++ {
		out[i] = tour[len(tour)-i]
	}
	return out
}

// twoOptTour improves a closed tour by reversing segments while any pass
// shortens the cycle, up to maxIterations passes. The hub stays fixed.
func twoOptTour(tour []int, dist [][]float64, maxIterations int) []int {
	n := len(tour)
	out := make([]int, n)
	copy(out, tour)
	if n < 4 {
		return out
	}
	for iter := 0; iter < maxIterations; iter++ {
		improved := false
		for i := 1; i < n-1; i++ {
			for j := i + 1; j < n; j++ {
				a, b := out[i-1], out[i]
				c := out[j]
				d := out[(j+1)%n]
				before := dist[a][b] + dist[c][d]
				after := dist[a][c] + dist[b][d]
				if after < before-1e-9 {
					for lo, hi := i, j; lo < hi; lo, hi = lo+1, hi-1 {
						out[lo], out[hi] = out[hi], out[lo]
					}
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return out
}

func sameTour(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// segmentConfig is the constrained per-pair objective: reach the target as
// early as possible in few boardings.
func segmentConfig(opts Options) *search.Config {
	cfg := &search.Config{
		ChallengeID:        "city-loop-segment",
		MaxRounds:          opts.SegmentMaxRounds,
		MinTransferMinutes: opts.MinTransferMinutes,
	}
	cfg.Score = func(l *search.Label, _ search.Metrics) float64 { return -float64(l.Arrival) }
	cfg.Dominates = func(a *search.Label, _ search.Metrics, b *search.Label, _ search.Metrics) bool {
		return a.Arrival <= b.Arrival
	}
	cfg.Accept = func(*search.Label, search.Metrics) bool { return true }
	return cfg
}

// realizeTour rides the tour anchor by anchor and back to the hub. It returns
// nil when any segment is unreachable or the circuit leaves the window, plus
// the count of segments that did realize.
func realizeTour(snap *network.Snapshot, tour []string, opts Options) (*Result, int) {
	cfg := segmentConfig(opts)
	deadline := search.StartTimeMinutes + search.WindowMinutes

	waypoints := make([]string, 0, len(tour))
	waypoints = append(waypoints, tour[1:]...)
	waypoints = append(waypoints, tour[0])

	res := &Result{
		Arrival:      search.StartTimeMinutes,
		QuadrantMask: snap.Quadrant(tour[0]),
	}
	current := tour[0]
	realized := 0
	for _, target := range waypoints {
		if target == current {
			continue
		}
		run := search.RunRounds(snap, cfg, search.RunOptions{
			Origins:     []string{current},
			AcceptStops: []string{target},
			StartTime:   res.Arrival,
			TimeLimit:   deadline,
			MinArrival:  -1,
		})
		if run.Best == nil {
			return nil, realized
		}
		best := run.Best
		if best.Arrival > deadline {
			return nil, realized
		}
		res.Arrival = best.Arrival
		res.RideMinutes += best.RideMinutes
		res.DistanceKm += best.DistanceKm
		res.QuadrantMask |= best.QuadrantMask
		res.Legs = append(res.Legs, best.Legs...)
		current = target
		realized++
	}
	if len(res.Legs) == 0 {
		return nil, realized
	}
	return res, realized
}

// AnchorsByBearing exposes the snapshot's anchor order with the hub removed,
// for diagnostics output.
func AnchorsByBearing(snap *network.Snapshot) []string {
	if len(snap.BoundarySequence) == 0 {
		return nil
	}
	out := make([]string, 0, len(snap.BoundarySequence)-1)
	for _, code := range snap.BoundarySequence {
		if snap.HubStop(code) {
			continue
		}
		out = append(out, code)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return snap.BoundaryIndex[out[i]] < snap.BoundaryIndex[out[j]]
	})
	return out
}
