// Package model holds the wire DTOs served by the API layer.
package model

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// LegPlan is one boarded ride of a finished itinerary: a maximal run of
// consecutive segments on the same trip.
type LegPlan struct {
	LineID      string     `json:"lineId"`
	LineName    string     `json:"lineName"`
	TripID      string     `json:"tripId"`
	FromCode    string     `json:"fromCode"`
	FromName    string     `json:"fromName"`
	ToCode      string     `json:"toCode"`
	ToName      string     `json:"toName"`
	DepartMin   int        `json:"departMin"`
	Depart      string     `json:"depart"`
	ArriveMin   int        `json:"arriveMin"`
	Arrive      string     `json:"arrive"`
	RideMinutes int        `json:"rideMinutes"`
	StopHops    int        `json:"stopHops"`
	DistanceKm  float64    `json:"distanceKm"`
	Path        []GeoPoint `json:"path,omitempty"`
}

// RestStop suggests how to spend a long idle gap between two legs.
type RestStop struct {
	StopCode    string `json:"stopCode"`
	StopName    string `json:"stopName"`
	Arrive      string `json:"arrive"`
	Depart      string `json:"depart"`
	WaitMinutes int    `json:"waitMinutes"`
	Suggestion  string `json:"suggestion"`
}

// PlanTotals aggregates a finished itinerary. All sums are exact.
type PlanTotals struct {
	RideMinutes     int      `json:"rideMinutes"`
	DurationMinutes int      `json:"durationMinutes"`
	DistanceKm      float64  `json:"distanceKm"`
	Transfers       int      `json:"transfers"`
	UniqueStops     int      `json:"uniqueStops"`
	UniqueLines     int      `json:"uniqueLines"`
	Quadrants       []string `json:"quadrants"`
	Start           string   `json:"start"`
	End             string   `json:"end"`
}

// ChallengePlan is the computed itinerary for one challenge.
type ChallengePlan struct {
	PlanID          string     `json:"planId"`
	ChallengeID     string     `json:"challengeId"`
	Title           string     `json:"title"`
	Tagline         string     `json:"tagline"`
	ThemeTags       []string   `json:"themeTags,omitempty"`
	Badge           string     `json:"badge,omitempty"`
	Engine          string     `json:"engine"`
	Score           float64    `json:"score"`
	Legs            []LegPlan  `json:"legs"`
	RestStops       []RestStop `json:"restStops,omitempty"`
	Totals          PlanTotals `json:"totals"`
	NetworkVersion  string     `json:"networkVersion"`
	RealtimeVersion string     `json:"realtimeVersion"`
	GeneratedAt     string     `json:"generatedAt"`
}

// ChallengeInfo is the list-view summary of one challenge.
type ChallengeInfo struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Tagline   string   `json:"tagline"`
	ThemeTags []string `json:"themeTags,omitempty"`
	Badge     string   `json:"badge,omitempty"`
}

// ExclusionCounts reports raw edges dropped per loader filter.
type ExclusionCounts struct {
	LineNotEligible int `json:"lineNotEligible"`
	UnknownStop     int `json:"unknownStop"`
	InvalidTime     int `json:"invalidTime"`
	OutsideWindow   int `json:"outsideWindow"`
	CancelledByFeed int `json:"cancelledByFeed"`
	Kept            int `json:"kept"`
}

// Diagnostics describes the loaded network and planner state.
type Diagnostics struct {
	NetworkVersion  string          `json:"networkVersion"`
	RealtimeVersion string          `json:"realtimeVersion"`
	RealtimeEnabled bool            `json:"realtimeEnabled"`
	Stops           int             `json:"stops"`
	Routes          int             `json:"routes"`
	Edges           int             `json:"edges"`
	EligibleLines   int             `json:"eligibleLines"`
	HubStops        []string        `json:"hubStops"`
	BoundaryAnchors int             `json:"boundaryAnchors"`
	Exclusions      ExclusionCounts `json:"exclusions"`
	CachedPlans     int             `json:"cachedPlans"`
}

// EngineTrace is the per-challenge search trace exposed for debugging.
type EngineTrace struct {
	ChallengeID string         `json:"challengeId"`
	Engine      string         `json:"engine"`
	Rounds      int            `json:"rounds,omitempty"`
	Extensions  int            `json:"extensions"`
	Inserted    int            `json:"inserted,omitempty"`
	Accepted    int            `json:"accepted"`
	LimitHit    bool           `json:"limitHit"`
	DurationMs  int64          `json:"durationMs"`
	RoundMarked []int          `json:"roundMarked,omitempty"`
	Loop        *LoopTraceInfo `json:"loop,omitempty"`
}

// LoopTraceInfo describes the loop planner stage of a city-loop run.
type LoopTraceInfo struct {
	Candidates       int  `json:"candidates"`
	SegmentsRealized int  `json:"segmentsRealized"`
	RelaxedQuadrants bool `json:"relaxedQuadrants"`
}

// Problem is the JSON error body.
type Problem struct {
	Status int    `json:"status"`
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}
