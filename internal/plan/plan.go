// Package plan turns raw engine output into presentable itineraries: edge
// runs collapsed into legs, exact totals, quadrant labels and rest-stop
// suggestions for long idle gaps.
package plan

import (
	"math/bits"
	"sort"
	"time"

	"busquest/internal/model"
	"busquest/internal/network"
	"busquest/internal/search"
)

// RestThresholdMinutes is the smallest idle gap worth a rest suggestion.
const RestThresholdMinutes = 15

var restSuggestions = []string{
	"Grab a coffee and stretch before the next departure.",
	"Walk a block around the stop and check the departure board.",
	"Pick up a snack nearby; the next bus leaves from the same bay.",
	"Good window for a restroom break and a seat near the shelter.",
}

// FormatMinutes renders minutes since the service-day start as a clock,
// carrying past-midnight times as "+1d HH:MM".
func FormatMinutes(m int) string {
	day := m / 1440
	rem := m % 1440
	hh := rem / 60
	mm := rem % 60
	if day > 0 {
		return fmtInt("+", day) + "d " + clock(hh, mm)
	}
	return clock(hh, mm)
}

func clock(hh, mm int) string {
	b := []byte{
		byte('0' + hh/10), byte('0' + hh%10), ':',
		byte('0' + mm/10), byte('0' + mm%10),
	}
	return string(b)
}

func fmtInt(prefix string, v int) string {
	var tmp [8]byte
	i := len(tmp)
	for v > 0 {
		i--
		tmp[i] = byte('0' + v%10)
		v /= 10
	}
	return prefix + string(tmp[i:])
}

// CollapseEdges merges consecutive edges of the same trip into legs. A leg's
// ride time spans first departure to last arrival, dwell included.
func CollapseEdges(edges []network.TripEdge) []search.Leg {
	var legs []search.Leg
	for _, e := range edges {
		if n := len(legs); n > 0 {
			last := &legs[n-1]
			if last.TripID == e.TripID && last.LineID == e.LineID {
				last.ToCode = e.ToCode
				last.Arrive = e.Arrive
				last.DistanceKm += e.DistanceKm
				last.StopHops++
				continue
			}
		}
		legs = append(legs, search.Leg{
			LineID:     e.LineID,
			LineName:   e.LineName,
			TripID:     e.TripID,
			FromCode:   e.FromCode,
			ToCode:     e.ToCode,
			Depart:     e.Depart,
			Arrive:     e.Arrive,
			DistanceKm: e.DistanceKm,
			StopHops:   1,
		})
	}
	return legs
}

// QuadrantLabels spells out the covered quadrants in fixed NE-first order.
func QuadrantLabels(mask int) []string {
	var labels []string
	if mask&network.QuadrantNE != 0 {
		labels = append(labels, "northeast")
	}
	if mask&network.QuadrantSE != 0 {
		labels = append(labels, "southeast")
	}
	if mask&network.QuadrantSW != 0 {
		labels = append(labels, "southwest")
	}
	if mask&network.QuadrantNW != 0 {
		labels = append(labels, "northwest")
	}
	return labels
}

func legPlan(snap *network.Snapshot, leg search.Leg) model.LegPlan {
	from := snap.Stops[leg.FromCode]
	to := snap.Stops[leg.ToCode]
	return model.LegPlan{
		LineID:      leg.LineID,
		LineName:    leg.LineName,
		TripID:      leg.TripID,
		FromCode:    leg.FromCode,
		FromName:    snap.StopName(leg.FromCode),
		ToCode:      leg.ToCode,
		ToName:      snap.StopName(leg.ToCode),
		DepartMin:   leg.Depart,
		Depart:      FormatMinutes(leg.Depart),
		ArriveMin:   leg.Arrive,
		Arrive:      FormatMinutes(leg.Arrive),
		RideMinutes: leg.Arrive - leg.Depart,
		StopHops:    leg.StopHops,
		DistanceKm:  leg.DistanceKm,
		Path: []model.GeoPoint{
			{Lat: from.Lat, Lng: from.Lon},
			{Lat: to.Lat, Lng: to.Lon},
		},
	}
}

// RestStops scans the leg sequence for idle gaps of at least
// RestThresholdMinutes and attaches a cycled suggestion to each.
func RestStops(snap *network.Snapshot, legs []search.Leg) []model.RestStop {
	var rests []model.RestStop
	for i := 0; i+1 < len(legs); i++ {
		gap := legs[i+1].Depart - legs[i].Arrive
		if gap < RestThresholdMinutes {
			continue
		}
		rests = append(rests, model.RestStop{
			StopCode:    legs[i].ToCode,
			StopName:    snap.StopName(legs[i].ToCode),
			Arrive:      FormatMinutes(legs[i].Arrive),
			Depart:      FormatMinutes(legs[i+1].Depart),
			WaitMinutes: gap,
			Suggestion:  restSuggestions[len(rests)%len(restSuggestions)],
		})
	}
	return rests
}

// Assembly carries everything needed to render one ChallengePlan.
type Assembly struct {
	PlanID          string
	Config          *search.Config
	Legs            []search.Leg
	Engine          string
	Score           float64
	QuadrantMask    int
	NetworkVersion  string
	RealtimeVersion string
	GeneratedAt     time.Time
}

// Assemble renders the final plan: per-leg presentation, exact totals and
// rest-stop suggestions.
func Assemble(snap *network.Snapshot, a Assembly) *model.ChallengePlan {
	legs := make([]model.LegPlan, len(a.Legs))
	rideTotal := 0
	distTotal := 0.0
	stops := map[string]struct{}{}
	lines := map[string]struct{}{}
	for i, leg := range a.Legs {
		legs[i] = legPlan(snap, leg)
		rideTotal += legs[i].RideMinutes
		distTotal += leg.DistanceKm
		stops[leg.FromCode] = struct{}{}
		stops[leg.ToCode] = struct{}{}
		lines[leg.LineID] = struct{}{}
	}

	totals := model.PlanTotals{
		RideMinutes: rideTotal,
		DistanceKm:  distTotal,
		Transfers:   max(0, len(a.Legs)-1),
		UniqueStops: len(stops),
		UniqueLines: len(lines),
		Quadrants:   QuadrantLabels(a.QuadrantMask),
	}
	if len(a.Legs) > 0 {
		first := a.Legs[0]
		last := a.Legs[len(a.Legs)-1]
		totals.Start = FormatMinutes(first.Depart)
		totals.End = FormatMinutes(last.Arrive)
		totals.DurationMinutes = last.Arrive - first.Depart
	}

	return &model.ChallengePlan{
		PlanID:          a.PlanID,
		ChallengeID:     a.Config.ChallengeID,
		Title:           a.Config.Title,
		Tagline:         a.Config.Tagline,
		ThemeTags:       a.Config.ThemeTags,
		Badge:           a.Config.Badge,
		Engine:          a.Engine,
		Score:           a.Score,
		Legs:            legs,
		RestStops:       RestStops(snap, a.Legs),
		Totals:          totals,
		NetworkVersion:  a.NetworkVersion,
		RealtimeVersion: a.RealtimeVersion,
		GeneratedAt:     a.GeneratedAt.UTC().Format(time.RFC3339),
	}
}

// CoveredQuadrants counts the set bits of a quadrant mask.
func CoveredQuadrants(mask int) int { return bits.OnesCount(uint(mask)) }

// VisitedStops lists the distinct stops of a leg sequence in code order.
func VisitedStops(legs []search.Leg) []string {
	set := map[string]struct{}{}
	for _, leg := range legs {
		set[leg.FromCode] = struct{}{}
		set[leg.ToCode] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for code := range set {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
