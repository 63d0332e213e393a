package network

import (
	"fmt"
	"sort"

	"busquest/internal/geo"
)

// Quadrant bits accumulated along a path. All four set means the itinerary
// touched every corner of the service area.
const (
	QuadrantNE = 1
	QuadrantSE = 2
	QuadrantSW = 4
	QuadrantNW = 8

	AllQuadrantsMask = QuadrantNE | QuadrantSE | QuadrantSW | QuadrantNW
)

// Stop is a bus stop. Identity is the code; records are immutable once loaded.
type Stop struct {
	Code string
	Name string
	Lat  float64
	Lon  float64
}

// TripEdge is one scheduled directed hop between adjacent stops of a trip.
// Times are minutes since the start of the service day, with +1440*k rollover
// applied by the loaders so Depart < Arrive always holds.
type TripEdge struct {
	LineID      string
	LineName    string
	TripID      string
	Direction   string
	ServiceDate string
	FromCode    string
	FromName    string
	ToCode      string
	ToName      string
	Depart      int
	Arrive      int
	DistanceKm  float64
	FromLat     float64
	FromLon     float64
	ToLat       float64
	ToLon       float64
}

func (e TripEdge) RideMinutes() int {
	if e.Arrive < e.Depart {
		return 0
	}
	return e.Arrive - e.Depart
}

// StopSchedule holds the outgoing edges of one stop sorted by departure.
type StopSchedule struct {
	departures []int
	edges      []TripEdge
}

func (s *StopSchedule) Add(edge TripEdge) {
	s.departures = append(s.departures, edge.Depart)
	s.edges = append(s.edges, edge)
}

// Finalize sorts by departure time. Must be called before EdgesFrom.
// Ties are broken by trip then destination so rebuilds are reproducible.
func (s *StopSchedule) Finalize() {
	sort.SliceStable(s.edges, func(i, j int) bool {
		if s.edges[i].Depart != s.edges[j].Depart {
			return s.edges[i].Depart < s.edges[j].Depart
		}
		if s.edges[i].TripID != s.edges[j].TripID {
			return s.edges[i].TripID < s.edges[j].TripID
		}
		return s.edges[i].ToCode < s.edges[j].ToCode
	})
	for i, e := range s.edges {
		s.departures[i] = e.Depart
	}
}

// EdgesFrom returns all edges departing at or after t.
func (s *StopSchedule) EdgesFrom(t int) []TripEdge {
	idx := sort.SearchInts(s.departures, t)
	return s.edges[idx:]
}

func (s *StopSchedule) Len() int { return len(s.edges) }

// RouteTrip is one trip instance of a route: per-segment departure and
// arrival times plus segment distances, indexed like the route stop list.
// Departures[i] is the departure from Stops[i] (valid for i < len-1);
// Arrivals[i] is the arrival at Stops[i] (valid for i > 0).
type RouteTrip struct {
	TripID           string
	Departures       []int
	Arrivals         []int
	SegmentDistances []float64
}

// RouteData groups the trips of one (line, direction) sharing a stop
// sequence, so the search can scan a whole route once per round.
type RouteData struct {
	ID        string
	LineID    string
	LineName  string
	Direction string
	Stops     []string
	StopIndex map[string]int
	Trips     []RouteTrip
}

// RouteKey derives the route identity from line, direction and stop pattern.
func RouteKey(lineID, direction string, stops []string) string {
	h := uint64(14695981039346656037)
	for _, s := range stops {
		for i := 0; i < len(s); i++ {
			h ^= uint64(s[i])
			h *= 1099511628211
		}
		h ^= '|'
		h *= 1099511628211
	}
	return fmt.Sprintf("%s:%s:%016x", lineID, direction, h)
}

// ExclusionStats counts raw edges dropped per filter, so missing connections
// can be traced to a concrete cause instead of silently disappearing.
type ExclusionStats struct {
	LineNotEligible  int `json:"lineNotEligible"`
	UnknownStop      int `json:"unknownStop"`
	InvalidTime      int `json:"invalidTime"`
	OutsideWindow    int `json:"outsideWindow"`
	CancelledByFeed  int `json:"cancelledByFeed"`
	Kept             int `json:"kept"`
}

// Snapshot is one immutable, versioned view of the network. It is built
// wholesale and swapped in atomically; readers never see a partial build.
type Snapshot struct {
	Version       string
	Stops         map[string]Stop
	LineNames     map[string]string
	EligibleLines map[string]struct{}
	Edges         []TripEdge

	Schedules    map[string]*StopSchedule
	Routes       map[string]*RouteData
	RoutesByStop map[string][]string

	// HubStops are the permitted start/finish stops; HubLat/HubLon is the
	// reference coordinate for quadrants, bearings and radii.
	HubStops      []string
	HubLat        float64
	HubLon        float64
	InnerRadiusKm float64

	QuadrantMap map[string]int

	// BoundaryRings hold the raw city polygon vertices with X=lat, Y=lon;
	// boundaryPlane is the same rings projected onto the hub-centered plane.
	BoundaryRings    [][]geo.Point
	boundaryPlane    [][]geo.Point
	BoundarySequence []string
	BoundaryIndex    map[string]int

	Exclusions ExclusionStats
}

// Quadrant returns the quadrant bit of a stop, zero when unknown.
func (n *Snapshot) Quadrant(code string) int { return n.QuadrantMap[code] }

// HubStop reports whether code belongs to the start-area set.
func (n *Snapshot) HubStop(code string) bool {
	for _, c := range n.HubStops {
		if c == code {
			return true
		}
	}
	return false
}

// StopName returns the display name of a stop, falling back to the code.
func (n *Snapshot) StopName(code string) string {
	if st, ok := n.Stops[code]; ok {
		return st.Name
	}
	return code
}

// DistanceToBoundaryKm returns the distance from a coordinate to the nearest
// city boundary segment, or a large value when no boundary is loaded.
func (n *Snapshot) DistanceToBoundaryKm(lat, lon float64) float64 {
	p := geo.ProjectToPlane(lat, lon, n.HubLat, n.HubLon)
	min := 1e18
	for _, ring := range n.boundaryPlane {
		for i := 0; i+1 < len(ring); i++ {
			if d := geo.PointSegmentDistance(p, ring[i], ring[i+1]); d < min {
				min = d
			}
		}
	}
	return min
}
