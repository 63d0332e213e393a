package network

import (
	"log"
	"sort"
	"strings"

	"github.com/google/uuid"

	"busquest/internal/geo"
)

// BuildOptions tune snapshot construction. Zero values fall back to the
// defaults used in production.
type BuildOptions struct {
	HubKeywords      []string
	HubFallbackLat   float64
	HubFallbackLon   float64
	HubFallbackCount int
	InnerRadiusKm    float64

	// Boundary band: stops between these distances from the city boundary
	// polyline (and outside the inner radius) become loop anchors.
	BoundaryMinDistKm float64
	BoundaryMaxDistKm float64

	MaxTripsPerRoute int
}

func (o *BuildOptions) fillDefaults() {
	if o.HubFallbackCount == 0 {
		o.HubFallbackCount = 3
	}
	if o.InnerRadiusKm == 0 {
		o.InnerRadiusKm = 2.0
	}
	if o.BoundaryMinDistKm == 0 {
		o.BoundaryMinDistKm = 0.3
	}
	if o.BoundaryMaxDistKm == 0 {
		o.BoundaryMaxDistKm = 4.0
	}
	if o.MaxTripsPerRoute == 0 {
		o.MaxTripsPerRoute = 60
	}
}

// BuildInput is everything the builder needs, already parsed into rows by the
// loaders (or by tests directly).
type BuildInput struct {
	Stops         []Stop
	LineNames     map[string]string
	EligibleLines []string
	Edges         []TripEdge
	BoundaryRings [][]geo.Point
	Exclusions    ExclusionStats
}

// Build assembles a complete snapshot. It either succeeds fully or returns a
// DataLoadError; a partially built snapshot is never handed out.
func Build(in BuildInput, opts BuildOptions) (*Snapshot, error) {
	opts.fillDefaults()
	if len(in.Stops) == 0 {
		return nil, loadErr("stops", "no valid stop records", nil)
	}
	if len(in.Edges) == 0 {
		return nil, loadErr("edges", "no usable trip edges", nil)
	}

	snap := &Snapshot{
		Version:       uuid.NewString(),
		Stops:         make(map[string]Stop, len(in.Stops)),
		LineNames:     map[string]string{},
		EligibleLines: map[string]struct{}{},
		Edges:         in.Edges,
		Schedules:     map[string]*StopSchedule{},
		Routes:        map[string]*RouteData{},
		RoutesByStop:  map[string][]string{},
		QuadrantMap:   map[string]int{},
		BoundaryRings: in.BoundaryRings,
		BoundaryIndex: map[string]int{},
		InnerRadiusKm: opts.InnerRadiusKm,
		Exclusions:    in.Exclusions,
	}
	for _, st := range in.Stops {
		snap.Stops[st.Code] = st
	}
	for id, name := range in.LineNames {
		snap.LineNames[id] = name
	}
	for _, id := range in.EligibleLines {
		snap.EligibleLines[id] = struct{}{}
	}

	for _, e := range in.Edges {
		if _, ok := snap.Stops[e.FromCode]; !ok {
			return nil, loadErr("edges", "edge references unknown stop "+e.FromCode, nil)
		}
		if _, ok := snap.Stops[e.ToCode]; !ok {
			return nil, loadErr("edges", "edge references unknown stop "+e.ToCode, nil)
		}
		if e.Arrive <= e.Depart {
			return nil, loadErr("edges", "edge has non-positive ride time", nil)
		}
	}

	if err := buildRoutes(snap, in.Edges, opts.MaxTripsPerRoute); err != nil {
		return nil, err
	}
	buildSchedules(snap, in.Edges)

	snap.HubStops = detectHubStops(snap, opts)
	if len(snap.HubStops) == 0 {
		return nil, loadErr("stops", "no hub stop candidates found", nil)
	}
	hub := snap.Stops[snap.HubStops[0]]
	snap.HubLat, snap.HubLon = hub.Lat, hub.Lon

	assignQuadrants(snap)
	projectBoundary(snap)
	buildBoundarySequence(snap, opts)
	return snap, nil
}

// Rebuild assembles a fresh snapshot from this snapshot's static inputs and a
// replacement edge set, typically the realtime-patched view of the timetable.
func (n *Snapshot) Rebuild(edges []TripEdge, opts BuildOptions) (*Snapshot, error) {
	stops := make([]Stop, 0, len(n.Stops))
	for _, st := range n.Stops {
		stops = append(stops, st)
	}
	sort.Slice(stops, func(i, j int) bool { return stops[i].Code < stops[j].Code })
	eligible := make([]string, 0, len(n.EligibleLines))
	for id := range n.EligibleLines {
		eligible = append(eligible, id)
	}
	sort.Strings(eligible)
	return Build(BuildInput{
		Stops:         stops,
		LineNames:     n.LineNames,
		EligibleLines: eligible,
		Edges:         edges,
		BoundaryRings: n.BoundaryRings,
		Exclusions:    n.Exclusions,
	}, opts)
}

func projectBoundary(snap *Snapshot) {
	for _, ring := range snap.BoundaryRings {
		plane := make([]geo.Point, len(ring))
		for i, v := range ring {
			plane[i] = geo.ProjectToPlane(v.X, v.Y, snap.HubLat, snap.HubLon)
		}
		snap.boundaryPlane = append(snap.boundaryPlane, plane)
	}
}

// buildRoutes groups trip edges into (line, direction, stop-pattern) routes.
// A trip whose edges go backwards in time fails the whole load.
func buildRoutes(snap *Snapshot, edges []TripEdge, maxTrips int) error {
	type tripKey struct {
		line, dir, date, trip string
	}
	byTrip := map[tripKey][]TripEdge{}
	var order []tripKey
	for _, e := range edges {
		k := tripKey{e.LineID, e.Direction, e.ServiceDate, e.TripID}
		if _, ok := byTrip[k]; !ok {
			order = append(order, k)
		}
		byTrip[k] = append(byTrip[k], e)
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.line != b.line {
			return a.line < b.line
		}
		if a.dir != b.dir {
			return a.dir < b.dir
		}
		if a.date != b.date {
			return a.date < b.date
		}
		return a.trip < b.trip
	})

	for _, k := range order {
		trip := byTrip[k]
		sort.SliceStable(trip, func(i, j int) bool { return trip[i].Depart < trip[j].Depart })
		stops := make([]string, 0, len(trip)+1)
		stops = append(stops, trip[0].FromCode)
		prevArrive := -1
		for _, e := range trip {
			if e.FromCode != stops[len(stops)-1] {
				// Disconnected segment chain; treat as a data gap, not a route.
				snap.Exclusions.InvalidTime++
				stops = nil
				break
			}
			if prevArrive >= 0 && e.Depart < prevArrive {
				return loadErr("edges", "trip "+k.trip+" is not time-monotonic", nil)
			}
			prevArrive = e.Arrive
			stops = append(stops, e.ToCode)
		}
		if len(stops) < 2 {
			continue
		}

		key := RouteKey(k.line, k.dir, stops)
		route, ok := snap.Routes[key]
		if !ok {
			idx := make(map[string]int, len(stops))
			for i, s := range stops {
				idx[s] = i
			}
			route = &RouteData{
				ID:        key,
				LineID:    k.line,
				LineName:  snap.LineNames[k.line],
				Direction: k.dir,
				Stops:     stops,
				StopIndex: idx,
			}
			if route.LineName == "" {
				route.LineName = k.line
			}
			snap.Routes[key] = route
		}
		if len(route.Trips) >= maxTrips {
			continue
		}
		rt := RouteTrip{
			TripID:           k.trip,
			Departures:       make([]int, len(stops)),
			Arrivals:         make([]int, len(stops)),
			SegmentDistances: make([]float64, len(stops)-1),
		}
		for i, e := range trip {
			rt.Departures[i] = e.Depart
			rt.Arrivals[i+1] = e.Arrive
			rt.SegmentDistances[i] = e.DistanceKm
		}
		rt.Arrivals[0] = rt.Departures[0]
		rt.Departures[len(stops)-1] = rt.Arrivals[len(stops)-1]
		route.Trips = append(route.Trips, rt)
	}

	for key, route := range snap.Routes {
		sort.SliceStable(route.Trips, func(i, j int) bool {
			if route.Trips[i].Departures[0] != route.Trips[j].Departures[0] {
				return route.Trips[i].Departures[0] < route.Trips[j].Departures[0]
			}
			return route.Trips[i].TripID < route.Trips[j].TripID
		})
		for _, stop := range route.Stops {
			snap.RoutesByStop[stop] = append(snap.RoutesByStop[stop], key)
		}
	}
	for stop := range snap.RoutesByStop {
		sort.Strings(snap.RoutesByStop[stop])
	}
	if len(snap.Routes) == 0 {
		return loadErr("edges", "no route patterns could be built", nil)
	}
	return nil
}

func buildSchedules(snap *Snapshot, edges []TripEdge) {
	for _, e := range edges {
		sched, ok := snap.Schedules[e.FromCode]
		if !ok {
			sched = &StopSchedule{}
			snap.Schedules[e.FromCode] = sched
		}
		sched.Add(e)
	}
	for _, sched := range snap.Schedules {
		sched.Finalize()
	}
}

func detectHubStops(snap *Snapshot, opts BuildOptions) []string {
	var hits []string
	for code, st := range snap.Stops {
		for _, kw := range opts.HubKeywords {
			if kw != "" && strings.Contains(st.Name, kw) {
				hits = append(hits, code)
				break
			}
		}
	}
	sort.Strings(hits)
	if len(hits) > 0 {
		return hits
	}
	if opts.HubFallbackLat == 0 && opts.HubFallbackLon == 0 {
		return nil
	}
	// No keyword match; fall back to the stops nearest the configured
	// reference coordinate.
	type cand struct {
		code string
		d2   float64
	}
	cands := make([]cand, 0, len(snap.Stops))
	for code, st := range snap.Stops {
		dlat := st.Lat - opts.HubFallbackLat
		dlon := st.Lon - opts.HubFallbackLon
		cands = append(cands, cand{code, dlat*dlat + dlon*dlon})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].d2 != cands[j].d2 {
			return cands[i].d2 < cands[j].d2
		}
		return cands[i].code < cands[j].code
	})
	n := opts.HubFallbackCount
	if n > len(cands) {
		n = len(cands)
	}
	out := make([]string, 0, n)
	for _, c := range cands[:n] {
		out = append(out, c.code)
	}
	return out
}

func assignQuadrants(snap *Snapshot) {
	for code, st := range snap.Stops {
		north := st.Lat >= snap.HubLat
		east := st.Lon >= snap.HubLon
		switch {
		case north && east:
			snap.QuadrantMap[code] = QuadrantNE
		case !north && east:
			snap.QuadrantMap[code] = QuadrantSE
		case !north && !east:
			snap.QuadrantMap[code] = QuadrantSW
		default:
			snap.QuadrantMap[code] = QuadrantNW
		}
	}
}

// buildBoundarySequence picks stops sitting in a band around the city
// boundary and orders them by bearing around the hub. The sequence seeds the
// loop planner's tour construction.
func buildBoundarySequence(snap *Snapshot, opts BuildOptions) {
	if len(snap.BoundaryRings) == 0 {
		log.Printf("network: no city boundary loaded; loop planning will rely on search only")
		return
	}
	type cand struct {
		angle float64
		code  string
	}
	var cands []cand
	for code, st := range snap.Stops {
		d := snap.DistanceToBoundaryKm(st.Lat, st.Lon)
		if d < opts.BoundaryMinDistKm || d > opts.BoundaryMaxDistKm {
			continue
		}
		if geo.HaversineKm(st.Lat, st.Lon, snap.HubLat, snap.HubLon) < snap.InnerRadiusKm {
			continue
		}
		p := geo.ProjectToPlane(st.Lat, st.Lon, snap.HubLat, snap.HubLon)
		cands = append(cands, cand{geo.BearingDeg(p), code})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].angle != cands[j].angle {
			return cands[i].angle < cands[j].angle
		}
		return cands[i].code < cands[j].code
	})

	seen := map[string]struct{}{}
	seq := make([]string, 0, len(cands)+2)
	if len(snap.HubStops) > 0 {
		seq = append(seq, snap.HubStops[0])
		seen[snap.HubStops[0]] = struct{}{}
	}
	for _, c := range cands {
		if _, ok := seen[c.code]; ok {
			continue
		}
		seen[c.code] = struct{}{}
		seq = append(seq, c.code)
	}
	snap.BoundarySequence = seq
	for i, code := range seq {
		snap.BoundaryIndex[code] = i
	}
}
