package search

import (
	"sort"
	"time"

	"busquest/internal/network"
)

// Trace records what one engine run did, for the diagnostics endpoint.
type Trace struct {
	Engine      string `json:"engine"`
	Rounds      int    `json:"rounds"`
	Extensions  int    `json:"extensions"`
	Inserted    int    `json:"inserted"`
	Accepted    int    `json:"accepted"`
	LimitHit    bool   `json:"limitHit"`
	DurationMs  int64  `json:"durationMs"`
	RoundMarked []int  `json:"roundMarked,omitempty"`
}

// Result is the outcome of an engine run. Best is nil when no itinerary
// satisfied the acceptance rule.
type Result struct {
	Best  *Label
	Trace Trace
}

// RunOptions override the default hub-anchored 24h run. The loop planner uses
// them to realize point-to-point segments with a constrained engine.
type RunOptions struct {
	Origins     []string
	AcceptStops []string
	StartTime   int
	TimeLimit   int

	// MinArrival is the earliest acceptable completion time. Zero applies
	// the default (start + 120min); negative disables the minimum.
	MinArrival int
}

type bucketEntry struct {
	label   *Label
	metrics Metrics
}

// RunRounds executes the round-based label search: each round is one more
// boarding, routes serving marked stops are scanned whole, and per-stop
// buckets keep the top labels under the challenge's dominance rule.
func RunRounds(snap *network.Snapshot, cfg *Config, opts RunOptions) *Result {
	started := time.Now()
	res := &Result{Trace: Trace{Engine: "rounds"}}
	if len(snap.Routes) == 0 {
		return res
	}

	origins := opts.Origins
	if len(origins) == 0 {
		origins = snap.HubStops
	}
	acceptStops := opts.AcceptStops
	if len(acceptStops) == 0 {
		acceptStops = origins
	}
	acceptSet := make(map[string]struct{}, len(acceptStops))
	for _, s := range acceptStops {
		acceptSet[s] = struct{}{}
	}
	startTime := opts.StartTime
	if startTime == 0 {
		startTime = StartTimeMinutes
	}
	timeLimit := opts.TimeLimit
	if timeLimit == 0 {
		timeLimit = startTime + WindowMinutes
	}
	minArrival := opts.MinArrival
	if minArrival == 0 {
		minArrival = startTime + MinAcceptMinutes
	}

	// rounds[r][stop] holds the labels reachable with r boardings.
	rounds := make([]map[string][]bucketEntry, cfg.MaxRounds+1)
	for i := range rounds {
		rounds[i] = map[string][]bucketEntry{}
	}

	marked := map[string]struct{}{}
	for _, stop := range origins {
		label := newStartLabel(snap, stop)
		label.Arrival = startTime
		m := ComputeMetrics(snap, label)
		label.Score = cfg.Score(label, m)
		rounds[0][stop] = append(rounds[0][stop], bucketEntry{label, m})
		marked[stop] = struct{}{}
	}

	var accepted []*Label

	for round := 0; round < cfg.MaxRounds; round++ {
		if len(marked) == 0 {
			break
		}
		res.Trace.Rounds = round + 1
		res.Trace.RoundMarked = append(res.Trace.RoundMarked, len(marked))

		routeSet := map[string]struct{}{}
		for stop := range marked {
			for _, id := range snap.RoutesByStop[stop] {
				routeSet[id] = struct{}{}
			}
		}
		routeIDs := make([]string, 0, len(routeSet))
		for id := range routeSet {
			routeIDs = append(routeIDs, id)
		}
		sort.Strings(routeIDs)

		nextMarked := map[string]struct{}{}
		for _, routeID := range routeIDs {
			route := snap.Routes[routeID]
			for t := range route.Trips {
				trip := &route.Trips[t]
				for fromIdx := 0; fromIdx < len(route.Stops)-1; fromIdx++ {
					entries := rounds[round][route.Stops[fromIdx]]
					if len(entries) == 0 {
						continue
					}
					for _, entry := range entries {
						scanTrip(snap, cfg, res, rounds[round+1], nextMarked, acceptSet,
							entry.label, route, trip, fromIdx, timeLimit, minArrival, &accepted)
					}
				}
			}
		}
		marked = nextMarked
	}

	res.Trace.Accepted = len(accepted)
	res.Trace.DurationMs = time.Since(started).Milliseconds()
	if len(accepted) == 0 {
		return res
	}
	sort.Slice(accepted, func(i, j int) bool { return betterLabel(accepted[i], accepted[j]) })
	res.Best = accepted[0]
	return res
}

// scanTrip boards one trip at fromIdx (or later) and rides it outward,
// inserting a label at every reachable stop until dominated or out of time.
func scanTrip(
	snap *network.Snapshot,
	cfg *Config,
	res *Result,
	nextRound map[string][]bucketEntry,
	nextMarked map[string]struct{},
	acceptSet map[string]struct{},
	label *Label,
	route *network.RouteData,
	trip *network.RouteTrip,
	fromIdx int,
	timeLimit int,
	minArrival int,
	accepted *[]*Label,
) {
	earliestDepart := label.Arrival + cfg.MinTransferMinutes
	var onboard *Label
	boarded := false

	for segIdx := fromIdx; segIdx < len(route.Stops)-1; segIdx++ {
		depart := trip.Departures[segIdx]
		arrive := trip.Arrivals[segIdx+1]

		if !boarded && depart < earliestDepart {
			continue
		}
		base := label
		if boarded {
			base = onboard
		}
		res.Trace.Extensions++
		next := extendLabel(snap, cfg, base, route, trip, segIdx, depart, arrive)
		if next == nil {
			if boarded {
				return
			}
			continue
		}
		if next.Arrival > timeLimit {
			return
		}

		m := ComputeMetrics(snap, next)
		next.Score = cfg.Score(next, m)
		toStop := route.Stops[segIdx+1]

		bucket := nextRound[toStop]
		inserted, newBucket := insertLabel(bucket, next, m, cfg)
		nextRound[toStop] = newBucket
		if inserted {
			res.Trace.Inserted++
			nextMarked[toStop] = struct{}{}
			onboard = next
			boarded = true

			if _, ok := acceptSet[toStop]; ok &&
				(minArrival < 0 || next.Arrival >= minArrival) &&
				(!cfg.RequireQuadrants || next.QuadrantMask == network.AllQuadrantsMask) &&
				cfg.Accept(next, m) {
				*accepted = append(*accepted, next)
			}
		} else if boarded {
			return
		}
	}
}

// insertLabel applies the challenge dominance rule to a stop bucket. The new
// label enters only when nothing dominates it; anything it dominates is
// evicted, and the bucket keeps the MaxLabelsPerStop best by score.
func insertLabel(bucket []bucketEntry, label *Label, m Metrics, cfg *Config) (bool, []bucketEntry) {
	for _, e := range bucket {
		if cfg.Dominates(e.label, e.metrics, label, m) {
			return false, bucket
		}
	}
	kept := bucket[:0]
	for _, e := range bucket {
		if !cfg.Dominates(label, m, e.label, e.metrics) {
			kept = append(kept, e)
		}
	}
	kept = append(kept, bucketEntry{label, m})
	sort.SliceStable(kept, func(i, j int) bool { return betterLabel(kept[i].label, kept[j].label) })
	if len(kept) > MaxLabelsPerStop {
		kept = kept[:MaxLabelsPerStop]
	}
	return true, kept
}
