package loop

import (
	"errors"
	"io"
	"log"
	"math"
	"testing"

	"busquest/internal/geo"
	"busquest/internal/network"
)

// cornerSnapshot builds a square service area: the hub in the middle and one
// anchor stop near each boundary corner. Latitude spacing is tighter than
// longitude spacing so nearest-neighbor ordering is unambiguous.
func cornerSnapshot(t *testing.T, edges []network.TripEdge, dropNW bool) *network.Snapshot {
	t.Helper()
	stops := []network.Stop{
		{Code: "HUB", Name: "Central Terminal", Lat: 33.590, Lon: 130.420},
		{Code: "NE1", Name: "Northeast Park", Lat: 33.630, Lon: 130.480},
		{Code: "SE1", Name: "Southeast Pier", Lat: 33.550, Lon: 130.480},
		{Code: "SW1", Name: "Southwest Hill", Lat: 33.550, Lon: 130.360},
		{Code: "NW1", Name: "Northwest Gate", Lat: 33.630, Lon: 130.360},
	}
	if dropNW {
		stops = stops[:4]
	}
	ring := []geo.Point{
		{X: 33.635, Y: 130.355}, {X: 33.635, Y: 130.485},
		{X: 33.545, Y: 130.485}, {X: 33.545, Y: 130.355},
		{X: 33.635, Y: 130.355},
	}
	lines := map[string]struct{}{}
	for _, e := range edges {
		lines[e.LineID] = struct{}{}
	}
	eligible := make([]string, 0, len(lines))
	for l := range lines {
		eligible = append(eligible, l)
	}
	snap, err := network.Build(network.BuildInput{
		Stops:         stops,
		EligibleLines: eligible,
		Edges:         edges,
		BoundaryRings: [][]geo.Point{ring},
	}, network.BuildOptions{
		HubKeywords:       []string{"Central"},
		BoundaryMinDistKm: 0.1,
		BoundaryMaxDistKm: 8.0,
	})
	if err != nil {
		t.Fatalf("build snapshot: %v", err)
	}
	return snap
}

func ringEdges(withReturn bool) []network.TripEdge {
	mk := func(line, trip, from, to string, dep, arr int) network.TripEdge {
		return network.TripEdge{
			LineID: line, LineName: line, TripID: trip, Direction: "out",
			ServiceDate: "20260401", FromCode: from, ToCode: to,
			Depart: dep, Arrive: arr, DistanceKm: 8.0,
		}
	}
	edges := []network.TripEdge{
		mk("L1", "t1", "HUB", "NE1", 425, 440),
		mk("L2", "t2", "NE1", "SE1", 450, 470),
		mk("L3", "t3", "SE1", "SW1", 480, 505),
		mk("L4", "t4", "SW1", "NW1", 515, 540),
	}
	if withReturn {
		edges = append(edges, mk("L5", "t5", "NW1", "HUB", 550, 575))
	}
	return edges
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func TestPlanRealizesCircuit(t *testing.T) {
	snap := cornerSnapshot(t, ringEdges(true), false)
	res, err := Plan(snap, Options{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	want := []string{"HUB", "NE1", "SE1", "SW1", "NW1"}
	if len(res.Sequence) != len(want) {
		t.Fatalf("sequence length: got %v", res.Sequence)
	}
	for i, code := range want {
		if res.Sequence[i] != code {
			t.Fatalf("sequence: got %v want %v", res.Sequence, want)
		}
	}
	if res.Arrival != 575 {
		t.Fatalf("arrival: got %d want 575", res.Arrival)
	}
	if res.QuadrantMask != network.AllQuadrantsMask {
		t.Fatalf("quadrant mask: got %b want 1111", res.QuadrantMask)
	}
	if len(res.Legs) != 5 {
		t.Fatalf("legs: got %d want 5", len(res.Legs))
	}
	if res.Legs[len(res.Legs)-1].ToCode != "HUB" {
		t.Fatal("circuit must end back at the hub")
	}
	if res.Trace.RelaxedQuadrants {
		t.Fatal("a full circuit needs no relaxation")
	}
}

func TestPlanFailsWithoutReturnSegment(t *testing.T) {
	snap := cornerSnapshot(t, ringEdges(false), false)
	_, err := Plan(snap, Options{Logger: quietLogger()})
	if !errors.Is(err, ErrNoViableLoop) {
		t.Fatalf("expected ErrNoViableLoop, got %v", err)
	}
}

func TestPlanQuadrantRelaxation(t *testing.T) {
	mk := func(line, trip, from, to string, dep, arr int) network.TripEdge {
		return network.TripEdge{
			LineID: line, LineName: line, TripID: trip, Direction: "out",
			ServiceDate: "20260401", FromCode: from, ToCode: to,
			Depart: dep, Arrive: arr, DistanceKm: 8.0,
		}
	}
	edges := []network.TripEdge{
		mk("L1", "t1", "HUB", "NE1", 425, 440),
		mk("L2", "t2", "NE1", "SE1", 450, 470),
		mk("L3", "t3", "SE1", "SW1", 480, 505),
		mk("L4", "t4", "SW1", "HUB", 515, 545),
	}
	snap := cornerSnapshot(t, edges, true)

	// Strict mode rejects a three-quadrant circuit.
	if _, err := Plan(snap, Options{Logger: quietLogger()}); !errors.Is(err, ErrNoViableLoop) {
		t.Fatalf("expected strict rejection, got %v", err)
	}

	res, err := Plan(snap, Options{QuadrantMinimum: 3, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("relaxed plan: %v", err)
	}
	if !res.Trace.RelaxedQuadrants {
		t.Fatal("relaxed acceptance must be flagged in the trace")
	}
	if res.QuadrantMask == network.AllQuadrantsMask {
		t.Fatal("test network cannot cover the missing quadrant")
	}
}

func euclideanMatrix(pts [][2]float64) [][]float64 {
	dist := make([][]float64, len(pts))
	for i := range pts {
		dist[i] = make([]float64, len(pts))
		for j := range pts {
			dx := pts[i][0] - pts[j][0]
			dy := pts[i][1] - pts[j][1]
			dist[i][j] = math.Hypot(dx, dy)
		}
	}
	return dist
}

func cycleLength(tour []int, dist [][]float64) float64 {
	total := 0.0
	for i := range tour {
		total += dist[tour[i]][tour[(i+1)%len(tour)]]
	}
	return total
}

func TestNearestNeighborStartsAtHub(t *testing.T) {
	dist := euclideanMatrix([][2]float64{
		{0.5, 0.5}, {0, 1}, {1, 1}, {1, 0}, {0, 0},
	})
	tour := nearestNeighborTour(dist)
	if tour[0] != 0 {
		t.Fatalf("tour must start at the hub index, got %v", tour)
	}
	seen := map[int]struct{}{}
	for _, i := range tour {
		seen[i] = struct{}{}
	}
	if len(seen) != len(dist) {
		t.Fatalf("tour must visit every anchor once: %v", tour)
	}
}

func TestTwoOptUncrossesTour(t *testing.T) {
	dist := euclideanMatrix([][2]float64{
		{0.5, 0.5}, {0, 1}, {1, 1}, {1, 0}, {0, 0},
	})
	crossed := []int{0, 1, 3, 2, 4}
	opt := twoOptTour(crossed, dist, 30)
	if cycleLength(opt, dist) >= cycleLength(crossed, dist) {
		t.Fatalf("2-opt must shorten a crossed cycle: %v -> %v", crossed, opt)
	}
	if opt[0] != 0 {
		t.Fatalf("hub must stay first, got %v", opt)
	}
}

func TestReverseTourKeepsHubFirst(t *testing.T) {
	got := reverseTour([]int{0, 1, 2, 3, 4})
	want := []int{0, 4, 3, 2, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("reverse: got %v want %v", got, want)
		}
	}
}

func TestCandidateToursDeduplicated(t *testing.T) {
	seq := []string{"HUB", "A", "B"}
	dist := euclideanMatrix([][2]float64{{0, 0}, {1, 0}, {2, 0}})
	tours := candidateTours(seq, dist, 30)
	seen := map[string]int{}
	for _, tour := range tours {
		key := ""
		for _, c := range tour {
			key += c + "|"
		}
		seen[key]++
	}
	for key, n := range seen {
		if n > 1 {
			t.Fatalf("duplicate candidate tour %s", key)
		}
	}
}
