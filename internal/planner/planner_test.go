package planner

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"busquest/internal/network"
	"busquest/internal/realtime"
)

// testSnapshot wires the reference five-stop network: hub A plus one stop in
// each quadrant, a long chain B-C-D-E, a B-E shortcut and a ride home from E.
func testSnapshot(t *testing.T) *network.Snapshot {
	t.Helper()
	mk := func(line, trip, from, to string, dep, arr int) network.TripEdge {
		return network.TripEdge{
			LineID: line, LineName: line, TripID: trip, Direction: "out",
			ServiceDate: "20260401", FromCode: from, ToCode: to,
			Depart: dep, Arrive: arr, DistanceKm: 5.0,
		}
	}
	snap, err := network.Build(network.BuildInput{
		Stops: []network.Stop{
			{Code: "A", Name: "Hub Terminal", Lat: 33.590, Lon: 130.420},
			{Code: "B", Name: "North Gate", Lat: 33.640, Lon: 130.470},
			{Code: "C", Name: "East Market", Lat: 33.540, Lon: 130.480},
			{Code: "D", Name: "South Pier", Lat: 33.530, Lon: 130.360},
			{Code: "E", Name: "West Hill", Lat: 33.650, Lon: 130.360},
		},
		EligibleLines: []string{"L1", "L2", "L3", "L4", "L5", "L6"},
		Edges: []network.TripEdge{
			mk("L1", "t-ab", "A", "B", 425, 435),
			mk("L2", "t-bc", "B", "C", 442, 455),
			mk("L3", "t-cd", "C", "D", 462, 495),
			mk("L4", "t-de", "D", "E", 502, 509),
			mk("L5", "t-be", "B", "E", 442, 472),
			mk("L6", "t-ea", "E", "A", 520, 550),
		},
	}, network.BuildOptions{HubKeywords: []string{"Hub"}})
	if err != nil {
		t.Fatalf("build snapshot: %v", err)
	}
	return snap
}

func quietOpts() Options {
	return Options{Logger: log.New(io.Discard, "", 0)}
}

func TestGetChallengeComputesAndCaches(t *testing.T) {
	ctx := context.Background()
	svc := NewService(testSnapshot(t), quietOpts())

	p1, err := svc.GetChallenge(ctx, "longest-duration")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p1.Engine != "rounds" {
		t.Fatalf("primary engine must serve this network, got %s", p1.Engine)
	}
	if len(p1.Legs) == 0 || p1.Legs[len(p1.Legs)-1].ToCode != "A" {
		t.Fatalf("plan must return to the hub: %+v", p1.Legs)
	}
	if p1.Totals.RideMinutes != 93 {
		t.Fatalf("longest ride total: got %d want 93", p1.Totals.RideMinutes)
	}

	p2, err := svc.GetChallenge(ctx, "longest-duration")
	if err != nil {
		t.Fatalf("get cached: %v", err)
	}
	if p2.PlanID != p1.PlanID {
		t.Fatal("unchanged versions must be served from cache")
	}

	if _, err := svc.GetChallenge(ctx, "no-such-challenge"); !errors.Is(err, ErrUnknownChallenge) {
		t.Fatalf("unknown id: got %v", err)
	}
}

func TestListChallengesFixedOrder(t *testing.T) {
	svc := NewService(testSnapshot(t), quietOpts())
	infos := svc.ListChallenges()
	want := []string{"longest-duration", "most-stops", "city-loop", "longest-distance"}
	if len(infos) != len(want) {
		t.Fatalf("challenges: %+v", infos)
	}
	for i, id := range want {
		if infos[i].ID != id {
			t.Fatalf("challenge order: got %s want %s", infos[i].ID, id)
		}
	}
}

type cancelFeed struct {
	tripID string
	from   string
	to     string
}

func (f *cancelFeed) FetchTrips(_ context.Context, queries []realtime.TripQuery) ([]realtime.TripUpdate, error) {
	for _, q := range queries {
		if q.TripID == f.tripID {
			return []realtime.TripUpdate{{
				TripID: f.tripID,
				Segments: []realtime.SegmentUpdate{
					{FromCode: f.from, ToCode: f.to, Status: "cancelled"},
				},
			}}, nil
		}
	}
	return nil, nil
}

func TestCancelledSegmentRoutesAround(t *testing.T) {
	ctx := context.Background()
	overlay := realtime.NewOverlay(&cancelFeed{tripID: "t-bc", from: "B", to: "C"}, realtime.Options{})
	opts := quietOpts()
	opts.Overlay = overlay
	opts.BuildOptions = network.BuildOptions{HubKeywords: []string{"Hub"}}
	svc := NewService(testSnapshot(t), opts)

	p, err := svc.GetChallenge(ctx, "longest-duration")
	if err != nil {
		t.Fatalf("get with cancelled segment: %v", err)
	}
	for _, leg := range p.Legs {
		if leg.LineID == "L2" {
			t.Fatalf("cancelled segment must not be ridden: %+v", p.Legs)
		}
	}
	if p.Legs[len(p.Legs)-1].ToCode != "A" {
		t.Fatal("plan must still return to the hub")
	}
	if p.RealtimeVersion == "static" {
		t.Fatal("realtime overlay version must key the plan")
	}
}

func TestCityLoopFallsBackWithoutBoundary(t *testing.T) {
	ctx := context.Background()
	svc := NewService(testSnapshot(t), quietOpts())

	p, err := svc.GetChallenge(ctx, "city-loop")
	if err != nil {
		t.Fatalf("city loop: %v", err)
	}
	// No boundary polygon: the loop planner and the strict round acceptance
	// cannot run, so the bounded heuristic serves the circuit.
	if p.Engine != "heuristic" {
		t.Fatalf("expected heuristic fallback, got %s", p.Engine)
	}
	if len(p.Totals.Quadrants) != 4 {
		t.Fatalf("circuit must cover all quadrants: %v", p.Totals.Quadrants)
	}

	trace, err := svc.SearchTrace(ctx, "city-loop")
	if err != nil {
		t.Fatalf("trace: %v", err)
	}
	if trace.Engine != "heuristic" {
		t.Fatalf("trace engine: got %s", trace.Engine)
	}
}

func TestNoPathFoundCarriesTrace(t *testing.T) {
	ctx := context.Background()
	snap, err := network.Build(network.BuildInput{
		Stops: []network.Stop{
			{Code: "A", Name: "Hub Terminal", Lat: 33.590, Lon: 130.420},
			{Code: "B", Name: "North Gate", Lat: 33.640, Lon: 130.470},
		},
		EligibleLines: []string{"L1"},
		Edges: []network.TripEdge{
			{LineID: "L1", TripID: "t1", Direction: "out", FromCode: "A", ToCode: "B", Depart: 425, Arrive: 435, DistanceKm: 1},
		},
	}, network.BuildOptions{HubKeywords: []string{"Hub"}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	svc := NewService(snap, quietOpts())

	_, err = svc.GetChallenge(ctx, "longest-duration")
	var noPath *NoPathFoundError
	if !errors.As(err, &noPath) {
		t.Fatalf("expected NoPathFoundError, got %v", err)
	}
	if noPath.ChallengeID != "longest-duration" {
		t.Fatalf("error challenge: %s", noPath.ChallengeID)
	}

	trace, err := svc.SearchTrace(ctx, "longest-duration")
	if err != nil {
		t.Fatalf("failed searches must still expose a trace: %v", err)
	}
	if trace.Engine != "heuristic" {
		t.Fatalf("last engine tried must be recorded, got %s", trace.Engine)
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestReloadSwapsSnapshotAndDropsCache(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "stations.csv",
		"station_code,name,lat,lon\nA,Hub Terminal,33.590,130.420\nB,North Gate,33.640,130.470\n")
	writeFile(t, dir, "freepass_lines.yml",
		"freepass_lines:\n  - line_id: L1\n    name: Loop One\n    eligible: true\n")
	writeFile(t, dir, "segments_20260401.csv",
		"line_id,direction,service_date,segment_id,trip_id,from_stop,to_stop,depart,arrive\n"+
			"L1,out,20260401,s1,t1,A,B,07:05,07:20\n"+
			"L1,back,20260401,s2,t2,B,A,09:05,09:30\n")

	opts := quietOpts()
	opts.Loader = &network.Loader{DataDir: dir}
	opts.BuildOptions = network.BuildOptions{HubKeywords: []string{"Hub"}}
	svc := NewService(testSnapshot(t), opts)

	before, err := svc.GetChallenge(ctx, "longest-duration")
	if err != nil {
		t.Fatalf("initial plan: %v", err)
	}

	newVersion, err := svc.Reload(ctx)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if newVersion == before.NetworkVersion {
		t.Fatal("reload must produce a fresh snapshot version")
	}
	d := svc.Diagnostics(ctx)
	if d.Stops != 2 || d.NetworkVersion != newVersion {
		t.Fatalf("diagnostics after reload: %+v", d)
	}
	if d.CachedPlans != 0 {
		t.Fatal("reload must drop cached plans")
	}

	after, err := svc.GetChallenge(ctx, "longest-duration")
	if err != nil {
		t.Fatalf("plan after reload: %v", err)
	}
	if after.PlanID == before.PlanID || after.NetworkVersion != newVersion {
		t.Fatalf("plan must be recomputed on the new snapshot: %+v", after)
	}
}

func TestReloadWithoutLoaderFails(t *testing.T) {
	svc := NewService(testSnapshot(t), quietOpts())
	_, err := svc.Reload(context.Background())
	var cfgErr *ConfigValidationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigValidationError, got %v", err)
	}
}
