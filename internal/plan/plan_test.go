package plan

import (
	"testing"
	"time"

	"busquest/internal/network"
	"busquest/internal/search"
)

func planSnapshot(t *testing.T) *network.Snapshot {
	t.Helper()
	snap, err := network.Build(network.BuildInput{
		Stops: []network.Stop{
			{Code: "A", Name: "Hub Terminal", Lat: 33.590, Lon: 130.420},
			{Code: "B", Name: "North Gate", Lat: 33.640, Lon: 130.470},
			{Code: "C", Name: "East Market", Lat: 33.540, Lon: 130.480},
		},
		EligibleLines: []string{"L1", "L2"},
		Edges: []network.TripEdge{
			{LineID: "L1", LineName: "One", TripID: "t1", Direction: "out", FromCode: "A", ToCode: "B", Depart: 425, Arrive: 440, DistanceKm: 4},
			{LineID: "L2", LineName: "Two", TripID: "t2", Direction: "out", FromCode: "B", ToCode: "C", Depart: 470, Arrive: 490, DistanceKm: 6},
		},
	}, network.BuildOptions{HubKeywords: []string{"Hub"}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return snap
}

func TestFormatMinutes(t *testing.T) {
	cases := []struct {
		in   int
		want string
	}{
		{0, "00:00"},
		{420, "07:00"},
		{489, "08:09"},
		{1439, "23:59"},
		{1440, "+1d 00:00"},
		{1505, "+1d 01:05"},
		{2885, "+2d 00:05"},
	}
	for _, c := range cases {
		if got := FormatMinutes(c.in); got != c.want {
			t.Fatalf("FormatMinutes(%d): got %q want %q", c.in, got, c.want)
		}
	}
}

func TestCollapseEdgesMergesSameTrip(t *testing.T) {
	edges := []network.TripEdge{
		{LineID: "L1", TripID: "t1", FromCode: "A", ToCode: "B", Depart: 425, Arrive: 440, DistanceKm: 4},
		{LineID: "L1", TripID: "t1", FromCode: "B", ToCode: "C", Depart: 442, Arrive: 460, DistanceKm: 5},
		{LineID: "L2", TripID: "t2", FromCode: "C", ToCode: "D", Depart: 470, Arrive: 490, DistanceKm: 6},
	}
	legs := CollapseEdges(edges)
	if len(legs) != 2 {
		t.Fatalf("legs: got %d want 2", len(legs))
	}
	first := legs[0]
	if first.FromCode != "A" || first.ToCode != "C" {
		t.Fatalf("merged leg endpoints: %s -> %s", first.FromCode, first.ToCode)
	}
	// Dwell at the intermediate stop stays inside the leg.
	if first.Arrive-first.Depart != 35 {
		t.Fatalf("merged leg span: got %d want 35", first.Arrive-first.Depart)
	}
	if first.StopHops != 2 || first.DistanceKm != 9 {
		t.Fatalf("merged leg hops/distance: %d / %f", first.StopHops, first.DistanceKm)
	}
	if legs[1].TripID != "t2" || legs[1].StopHops != 1 {
		t.Fatalf("second leg wrong: %+v", legs[1])
	}
}

func TestQuadrantLabelsOrder(t *testing.T) {
	got := QuadrantLabels(network.AllQuadrantsMask)
	want := []string{"northeast", "southeast", "southwest", "northwest"}
	if len(got) != len(want) {
		t.Fatalf("labels: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("labels: got %v want %v", got, want)
		}
	}
	if got := QuadrantLabels(network.QuadrantSE | network.QuadrantNW); len(got) != 2 || got[0] != "southeast" {
		t.Fatalf("partial labels: %v", got)
	}
}

func TestRestStopsRespectThreshold(t *testing.T) {
	snap := planSnapshot(t)
	legs := []search.Leg{
		{LineID: "L1", TripID: "t1", FromCode: "A", ToCode: "B", Depart: 425, Arrive: 440},
		{LineID: "L2", TripID: "t2", FromCode: "B", ToCode: "C", Depart: 470, Arrive: 490},
	}
	rests := RestStops(snap, legs)
	if len(rests) != 1 {
		t.Fatalf("rest stops: got %d want 1", len(rests))
	}
	r := rests[0]
	if r.StopCode != "B" || r.WaitMinutes != 30 {
		t.Fatalf("rest stop wrong: %+v", r)
	}
	if r.StopName != "North Gate" {
		t.Fatalf("rest stop name: %s", r.StopName)
	}
	if r.Suggestion == "" {
		t.Fatal("rest stop needs a suggestion")
	}

	// A 14 minute gap stays below the threshold.
	legs[1].Depart = legs[0].Arrive + RestThresholdMinutes - 1
	if rests := RestStops(snap, legs); len(rests) != 0 {
		t.Fatalf("short gap must not suggest a rest: %+v", rests)
	}
}

func TestAssembleTotalsAreExact(t *testing.T) {
	snap := planSnapshot(t)
	cfg := &search.Config{
		ChallengeID: "longest-duration",
		Title:       "24h Long Ride",
		Tagline:     "ride all day",
		Badge:       "longest-ride",
	}
	legs := []search.Leg{
		{LineID: "L1", LineName: "One", TripID: "t1", FromCode: "A", ToCode: "B", Depart: 425, Arrive: 440, DistanceKm: 4, StopHops: 1},
		{LineID: "L2", LineName: "Two", TripID: "t2", FromCode: "B", ToCode: "C", Depart: 470, Arrive: 490, DistanceKm: 6, StopHops: 1},
	}
	p := Assemble(snap, Assembly{
		PlanID:          "plan-1",
		Config:          cfg,
		Legs:            legs,
		Engine:          "rounds",
		Score:           123,
		QuadrantMask:    network.QuadrantNE | network.QuadrantSE,
		NetworkVersion:  "net-1",
		RealtimeVersion: "rt-0",
		GeneratedAt:     time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
	})
	if p.Totals.RideMinutes != 35 {
		t.Fatalf("ride total: got %d want 35", p.Totals.RideMinutes)
	}
	if p.Totals.DistanceKm != 10 {
		t.Fatalf("distance total: got %f want 10", p.Totals.DistanceKm)
	}
	if p.Totals.Transfers != 1 || p.Totals.UniqueStops != 3 || p.Totals.UniqueLines != 2 {
		t.Fatalf("totals wrong: %+v", p.Totals)
	}
	if p.Totals.Start != "07:05" || p.Totals.End != "08:10" || p.Totals.DurationMinutes != 65 {
		t.Fatalf("window wrong: %+v", p.Totals)
	}
	if len(p.Totals.Quadrants) != 2 {
		t.Fatalf("quadrant labels: %v", p.Totals.Quadrants)
	}
	if p.Legs[0].FromName != "Hub Terminal" || p.Legs[1].ToName != "East Market" {
		t.Fatalf("leg names wrong: %+v", p.Legs)
	}
	if len(p.RestStops) != 1 {
		t.Fatalf("rest stops: %+v", p.RestStops)
	}
	if p.GeneratedAt != "2026-04-01T09:00:00Z" {
		t.Fatalf("generatedAt: %s", p.GeneratedAt)
	}
}
