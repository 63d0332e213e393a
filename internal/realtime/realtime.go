// Package realtime fuses static timetable edges with live feed patches.
// Feed failures never fail a plan; the static view keeps serving.
package realtime

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"busquest/internal/metrics"
	"busquest/internal/network"
)

// TripQuery identifies one trip to poll from the feed.
type TripQuery struct {
	LineID    string
	TripID    string
	Direction string
}

// SegmentPatch overrides one static segment. Depart and Arrive are minutes
// since the service day start; nil leaves the static time untouched.
type SegmentPatch struct {
	TripID       string
	FromCode     string
	ToCode       string
	Depart       *int
	Arrive       *int
	Status       string
	DelayMinutes *int
}

// Cancelled reports whether this patch removes the segment entirely.
func (p SegmentPatch) Cancelled() bool {
	return p.Status == "cancelled" || p.Status == "CANCELLED" || p.Status == "Cancelled"
}

// FeedClient fetches live trip updates. Implementations should honor the
// context deadline; the overlay absorbs any error.
type FeedClient interface {
	FetchTrips(ctx context.Context, queries []TripQuery) ([]TripUpdate, error)
}

// TripUpdate is the decoded feed payload for one trip.
type TripUpdate struct {
	TripID   string
	LineID   string
	Segments []SegmentUpdate
}

// SegmentUpdate carries raw feed values; times come as "HH:MM" or plain
// minutes and are parsed leniently.
type SegmentUpdate struct {
	FromCode  string
	ToCode    string
	Departure string
	Arrival   string
	Status    string
	Delay     string
}

// FetchError wraps a failed feed poll. It is logged and absorbed, never
// propagated to planning callers.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("realtime fetch failed: %v", e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

type patchKey struct {
	trip, from, to string
}

// Options tune the overlay. Zero values take the production defaults.
type Options struct {
	CacheTTL    time.Duration
	RateLimit   rate.Limit
	RateBurst   int
	FetchBudget time.Duration
}

func (o *Options) fillDefaults() {
	if o.CacheTTL == 0 {
		o.CacheTTL = 120 * time.Second
	}
	if o.RateLimit == 0 {
		o.RateLimit = rate.Every(10 * time.Second)
	}
	if o.RateBurst == 0 {
		o.RateBurst = 2
	}
	if o.FetchBudget == 0 {
		o.FetchBudget = 5 * time.Second
	}
}

// Overlay maintains the fused static + realtime edge view. Safe for
// concurrent use.
type Overlay struct {
	client  FeedClient
	enabled bool
	ttl     time.Duration
	budget  time.Duration
	limiter *rate.Limiter
	now     func() time.Time

	mu          sync.Mutex
	staticEdges []network.TripEdge
	patches     map[patchKey]SegmentPatch
	lastRefresh time.Time
	version     uint64
}

func NewOverlay(client FeedClient, opts Options) *Overlay {
	opts.fillDefaults()
	return &Overlay{
		client:  client,
		enabled: client != nil,
		ttl:     opts.CacheTTL,
		budget:  opts.FetchBudget,
		limiter: rate.NewLimiter(opts.RateLimit, opts.RateBurst),
		now:     time.Now,
		patches: map[patchKey]SegmentPatch{},
	}
}

// Enabled reports whether a feed client is wired in.
func (o *Overlay) Enabled() bool { return o.enabled }

// Version changes whenever the patch set changes. Plan caches key on it so a
// realtime update invalidates stale plans.
func (o *Overlay) Version() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return strconv.FormatUint(o.version, 10)
}

// LoadStaticEdges replaces the static edge set and drops all patches.
func (o *Overlay) LoadStaticEdges(edges []network.TripEdge) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.staticEdges = append([]network.TripEdge(nil), edges...)
	o.patches = map[patchKey]SegmentPatch{}
	o.lastRefresh = time.Time{}
	o.version++
}

// EdgesForWindow returns the static edges overlapping [start, end] with
// realtime patches applied. Cancelled segments are removed; patched segments
// get the live depart/arrive. lines, when non-empty, filters by line id.
func (o *Overlay) EdgesForWindow(ctx context.Context, start, end int, lines []string, force bool) []network.TripEdge {
	o.Refresh(ctx, lines, !force)

	var lineSet map[string]struct{}
	if len(lines) > 0 {
		lineSet = make(map[string]struct{}, len(lines))
		for _, l := range lines {
			lineSet[l] = struct{}{}
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	result := make([]network.TripEdge, 0, len(o.staticEdges))
	for _, e := range o.staticEdges {
		if lineSet != nil {
			if _, ok := lineSet[e.LineID]; !ok {
				continue
			}
		}
		if e.Arrive < start || e.Depart > end {
			continue
		}
		patch, ok := o.patches[patchKey{e.TripID, e.FromCode, e.ToCode}]
		if ok {
			if patch.Cancelled() {
				continue
			}
			if patch.Depart != nil && patch.Arrive != nil {
				e.Depart = *patch.Depart
				e.Arrive = *patch.Arrive
			}
		}
		result = append(result, e)
	}
	return result
}

// Refresh polls the feed when the cache has expired. soft mode skips the
// fetch while the cache is still fresh; errors are logged and swallowed.
func (o *Overlay) Refresh(ctx context.Context, lines []string, soft bool) {
	if !o.enabled {
		return
	}
	now := o.now()
	o.mu.Lock()
	if soft && now.Sub(o.lastRefresh) < o.ttl {
		o.mu.Unlock()
		return
	}
	queries := o.buildQueriesLocked(lines)
	o.mu.Unlock()

	if len(queries) == 0 {
		o.mu.Lock()
		o.lastRefresh = now
		o.mu.Unlock()
		return
	}
	if !o.limiter.Allow() {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, o.budget)
	defer cancel()
	updates, err := o.client.FetchTrips(ctx, queries)
	if err != nil {
		metrics.RealtimeFetches.WithLabelValues("error").Inc()
		log.Printf("realtime: %v", &FetchError{Err: err})
		o.mu.Lock()
		o.lastRefresh = now
		o.mu.Unlock()
		return
	}
	metrics.RealtimeFetches.WithLabelValues("ok").Inc()
	patches := parseUpdates(updates)

	o.mu.Lock()
	if len(patches) > 0 {
		for k, p := range patches {
			o.patches[k] = p
		}
		o.version++
	}
	o.lastRefresh = now
	o.mu.Unlock()
}

func (o *Overlay) buildQueriesLocked(lines []string) []TripQuery {
	var lineSet map[string]struct{}
	if len(lines) > 0 {
		lineSet = make(map[string]struct{}, len(lines))
		for _, l := range lines {
			lineSet[l] = struct{}{}
		}
	}
	type qKey struct{ line, trip string }
	seen := map[qKey]struct{}{}
	var queries []TripQuery
	for _, e := range o.staticEdges {
		if lineSet != nil {
			if _, ok := lineSet[e.LineID]; !ok {
				continue
			}
		}
		k := qKey{e.LineID, e.TripID}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		queries = append(queries, TripQuery{LineID: e.LineID, TripID: e.TripID, Direction: e.Direction})
	}
	return queries
}

func parseUpdates(updates []TripUpdate) map[patchKey]SegmentPatch {
	patches := map[patchKey]SegmentPatch{}
	for _, u := range updates {
		if u.TripID == "" {
			continue
		}
		for _, seg := range u.Segments {
			if seg.FromCode == "" || seg.ToCode == "" {
				continue
			}
			patches[patchKey{u.TripID, seg.FromCode, seg.ToCode}] = SegmentPatch{
				TripID:       u.TripID,
				FromCode:     seg.FromCode,
				ToCode:       seg.ToCode,
				Depart:       parseFeedMinutes(seg.Departure),
				Arrive:       parseFeedMinutes(seg.Arrival),
				Status:       seg.Status,
				DelayMinutes: parseFeedInt(seg.Delay),
			}
		}
	}
	return patches
}

// parseFeedMinutes accepts "HH:MM" or a plain minute count.
func parseFeedMinutes(raw string) *int {
	if raw == "" {
		return nil
	}
	if len(raw) >= 5 && raw[2] == ':' {
		h, errH := strconv.Atoi(raw[0:2])
		m, errM := strconv.Atoi(raw[3:5])
		if errH != nil || errM != nil {
			return nil
		}
		v := h*60 + m
		return &v
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &v
}

func parseFeedInt(raw string) *int {
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &v
}
