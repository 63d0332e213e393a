package search

import (
	"testing"

	"busquest/internal/network"
)

func TestHeuristicFindsHubReturn(t *testing.T) {
	snap := fiveStopSnapshot(t)
	res := RunHeuristic(snap, HeuristicOptions{
		ScoreKey:           "ride",
		MinTransferMinutes: 3,
	})
	if len(res.Path) == 0 {
		t.Fatal("expected a completed itinerary")
	}
	last := res.Path[len(res.Path)-1]
	if last.ToCode != "A" {
		t.Fatalf("itinerary must end at the hub, got %s", last.ToCode)
	}
	if res.RideMinutes != 101 {
		t.Fatalf("ride minutes: got %d want 101", res.RideMinutes)
	}
	if res.Trace.LimitHit {
		t.Fatal("tiny network must not exhaust the budget")
	}
}

func TestHeuristicUniqueObjectiveCountsStops(t *testing.T) {
	snap := fiveStopSnapshot(t)
	res := RunHeuristic(snap, HeuristicOptions{
		ScoreKey:           "unique",
		RequireUnique:      true,
		MinTransferMinutes: 3,
	})
	if len(res.Path) == 0 {
		t.Fatal("expected a completed itinerary")
	}
	seen := map[string]struct{}{res.Path[0].FromCode: {}}
	for _, e := range res.Path {
		seen[e.ToCode] = struct{}{}
	}
	if len(seen) != 5 {
		t.Fatalf("unique stops: got %d want 5", len(seen))
	}
}

func TestHeuristicReportsResourceExhaustion(t *testing.T) {
	snap := fiveStopSnapshot(t)
	res := RunHeuristic(snap, HeuristicOptions{
		ScoreKey:           "ride",
		MinTransferMinutes: 3,
		MaxExpansions:      1,
	})
	if !res.Trace.LimitHit {
		t.Fatal("one-expansion budget must flag the limit")
	}
	if len(res.Path) != 0 {
		t.Fatal("no itinerary can complete in one expansion")
	}
}

func TestHeuristicFlagsQueueCompaction(t *testing.T) {
	// Star network: four simultaneous ways out of the hub overflow a queue
	// capped at one state, so the frontier gets compacted.
	stops := []network.Stop{
		{Code: "A", Name: "Hub Terminal", Lat: 33.590, Lon: 130.420},
		{Code: "B", Name: "North Gate", Lat: 33.640, Lon: 130.470},
		{Code: "C", Name: "East Market", Lat: 33.540, Lon: 130.480},
		{Code: "D", Name: "South Pier", Lat: 33.530, Lon: 130.360},
		{Code: "E", Name: "West Hill", Lat: 33.650, Lon: 130.360},
	}
	mk := func(line, trip, from, to string, dep, arr int) network.TripEdge {
		return network.TripEdge{
			LineID: line, LineName: line, TripID: trip, Direction: "out",
			ServiceDate: "20260401", FromCode: from, ToCode: to,
			Depart: dep, Arrive: arr, DistanceKm: 5.0,
		}
	}
	snap, err := network.Build(network.BuildInput{
		Stops:         stops,
		EligibleLines: []string{"L1", "L2", "L3", "L4"},
		Edges: []network.TripEdge{
			mk("L1", "t-b", "A", "B", 425, 435),
			mk("L2", "t-c", "A", "C", 425, 435),
			mk("L3", "t-d", "A", "D", 425, 435),
			mk("L4", "t-e", "A", "E", 425, 435),
		},
	}, network.BuildOptions{HubKeywords: []string{"Hub"}})
	if err != nil {
		t.Fatalf("build snapshot: %v", err)
	}

	res := RunHeuristic(snap, HeuristicOptions{
		ScoreKey:           "ride",
		MinTransferMinutes: 3,
		MaxQueue:           1,
	})
	if !res.Trace.LimitHit {
		t.Fatal("queue compaction must be reported as a limit hit")
	}
	if res.Trace.Extensions >= DefaultMaxExpansions {
		t.Fatal("the flag must come from the queue cap, not the expansion budget")
	}
}

func TestHeuristicHonorsLineVisitCap(t *testing.T) {
	snap := fiveStopSnapshot(t)
	res := RunHeuristic(snap, HeuristicOptions{
		ScoreKey:           "ride",
		MinTransferMinutes: 3,
		MaxLineVisits:      1,
	})
	counts := map[string]int{}
	var prevTrip string
	for _, e := range res.Path {
		if e.TripID != prevTrip {
			counts[e.LineID]++
			prevTrip = e.TripID
		}
	}
	for line, n := range counts {
		if n > 1 {
			t.Fatalf("line %s boarded %d times with cap 1", line, n)
		}
	}
}

func TestHeuristicQuadrantRequirement(t *testing.T) {
	snap := fiveStopSnapshot(t)
	res := RunHeuristic(snap, HeuristicOptions{
		ScoreKey:           "loop",
		RequireQuadrants:   true,
		MinTransferMinutes: 3,
	})
	if len(res.Path) == 0 {
		t.Fatal("the long path touches all quadrants and returns to the hub")
	}
	if res.QuadrantMask != 15 {
		t.Fatalf("quadrant mask: got %b want 1111", res.QuadrantMask)
	}
}

func TestFallbackOptionsPerChallenge(t *testing.T) {
	if o := FallbackOptions("most-stops"); !o.RequireUnique || o.ScoreKey != "unique" {
		t.Fatalf("most-stops options wrong: %+v", o)
	}
	if o := FallbackOptions("city-loop"); !o.RequireQuadrants || o.ScoreKey != "loop" {
		t.Fatalf("city-loop options wrong: %+v", o)
	}
	if o := FallbackOptions("unknown"); o.ScoreKey != "ride" {
		t.Fatalf("unknown challenge must default to ride, got %s", o.ScoreKey)
	}
}
