package realtime

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"busquest/internal/network"
)

type stubFeed struct {
	updates []TripUpdate
	err     error
	calls   int
}

func (s *stubFeed) FetchTrips(_ context.Context, _ []TripQuery) ([]TripUpdate, error) {
	s.calls++
	return s.updates, s.err
}

func staticEdges() []network.TripEdge {
	return []network.TripEdge{
		{LineID: "L1", TripID: "t1", FromCode: "A", ToCode: "B", Depart: 420, Arrive: 430},
		{LineID: "L1", TripID: "t1", FromCode: "B", ToCode: "C", Depart: 432, Arrive: 445},
		{LineID: "L2", TripID: "t9", FromCode: "A", ToCode: "D", Depart: 500, Arrive: 520},
	}
}

func clock(h, m int) string {
	return fmt.Sprintf("%02d:%02d", h, m)
}

func TestEdgesForWindowClipsAndFilters(t *testing.T) {
	o := NewOverlay(nil, Options{})
	o.LoadStaticEdges(staticEdges())

	got := o.EdgesForWindow(context.Background(), 431, 600, nil, false)
	if len(got) != 2 {
		t.Fatalf("window clip: got %d edges", len(got))
	}
	got = o.EdgesForWindow(context.Background(), 0, 1440, []string{"L2"}, false)
	if len(got) != 1 || got[0].LineID != "L2" {
		t.Fatalf("line filter: got %+v", got)
	}
}

func TestPatchOverridesTimes(t *testing.T) {
	feed := &stubFeed{updates: []TripUpdate{{
		TripID: "t1",
		Segments: []SegmentUpdate{{
			FromCode: "A", ToCode: "B",
			Departure: clock(7, 5), Arrival: clock(7, 18),
			Delay: "5",
		}},
	}}}
	o := NewOverlay(feed, Options{})
	o.LoadStaticEdges(staticEdges())

	got := o.EdgesForWindow(context.Background(), 0, 1440, nil, true)
	if len(got) != 3 {
		t.Fatalf("expected all edges, got %d", len(got))
	}
	if got[0].Depart != 7*60+5 || got[0].Arrive != 7*60+18 {
		t.Fatalf("patch not applied: %d->%d", got[0].Depart, got[0].Arrive)
	}
	if got[1].Depart != 432 {
		t.Fatal("unpatched segment must keep static times")
	}
}

func TestCancelledSegmentRemoved(t *testing.T) {
	feed := &stubFeed{updates: []TripUpdate{{
		TripID: "t1",
		Segments: []SegmentUpdate{{
			FromCode: "A", ToCode: "B", Status: "cancelled",
		}},
	}}}
	o := NewOverlay(feed, Options{})
	o.LoadStaticEdges(staticEdges())

	got := o.EdgesForWindow(context.Background(), 0, 1440, nil, true)
	if len(got) != 2 {
		t.Fatalf("cancelled segment should be dropped, got %d edges", len(got))
	}
	for _, e := range got {
		if e.FromCode == "A" && e.ToCode == "B" && e.TripID == "t1" {
			t.Fatal("cancelled segment survived")
		}
	}
}

func TestFeedErrorIsAbsorbed(t *testing.T) {
	feed := &stubFeed{err: errors.New("upstream 503")}
	o := NewOverlay(feed, Options{})
	o.LoadStaticEdges(staticEdges())

	got := o.EdgesForWindow(context.Background(), 0, 1440, nil, true)
	if len(got) != 3 {
		t.Fatalf("static edges must keep serving on feed failure, got %d", len(got))
	}
}

func TestSoftRefreshHonorsTTL(t *testing.T) {
	feed := &stubFeed{}
	o := NewOverlay(feed, Options{CacheTTL: time.Minute, RateLimit: rate.Inf})
	o.LoadStaticEdges(staticEdges())

	base := time.Unix(1000, 0)
	o.now = func() time.Time { return base }
	o.Refresh(context.Background(), nil, true)
	if feed.calls != 1 {
		t.Fatalf("first soft refresh should fetch, calls=%d", feed.calls)
	}
	o.now = func() time.Time { return base.Add(30 * time.Second) }
	o.Refresh(context.Background(), nil, true)
	if feed.calls != 1 {
		t.Fatalf("refresh inside TTL must be skipped, calls=%d", feed.calls)
	}
	o.now = func() time.Time { return base.Add(2 * time.Minute) }
	o.Refresh(context.Background(), nil, true)
	if feed.calls != 2 {
		t.Fatalf("refresh after TTL should fetch again, calls=%d", feed.calls)
	}
}

func TestVersionBumpsOnPatchUpdate(t *testing.T) {
	feed := &stubFeed{updates: []TripUpdate{{
		TripID:   "t1",
		Segments: []SegmentUpdate{{FromCode: "A", ToCode: "B", Departure: "430", Arrival: "440"}},
	}}}
	o := NewOverlay(feed, Options{RateLimit: rate.Inf})
	o.LoadStaticEdges(staticEdges())
	before := o.Version()
	o.Refresh(context.Background(), nil, false)
	if o.Version() == before {
		t.Fatal("version must change when patches land")
	}
}

func TestParseFeedMinutes(t *testing.T) {
	if v := parseFeedMinutes("07:30"); v == nil || *v != 450 {
		t.Fatalf("clock parse failed: %v", v)
	}
	if v := parseFeedMinutes("615"); v == nil || *v != 615 {
		t.Fatalf("minute parse failed: %v", v)
	}
	if parseFeedMinutes("") != nil || parseFeedMinutes("xx:yy") != nil {
		t.Fatal("garbage must parse to nil")
	}
}
