// Package search implements the challenge itinerary engines: a round-based
// multi-criteria label search as the primary engine and a bounded best-first
// search as the fallback.
package search

import (
	"math"

	"busquest/internal/network"
)

// StartTimeMinutes is the service-day departure time, 07:00.
const StartTimeMinutes = 7 * 60

// WindowMinutes is the planning horizon from the start time.
const WindowMinutes = 24 * 60

// MaxLabelsPerStop caps each stop's label bucket per round.
const MaxLabelsPerStop = 6

// MinAcceptMinutes is the earliest completion: an itinerary must return to a
// start-area stop at least this long after the start.
const MinAcceptMinutes = 120

const noGap = math.MaxInt32

// Leg is one boarded ride within a label: a maximal same-trip stretch.
type Leg struct {
	LineID     string
	LineName   string
	TripID     string
	FromCode   string
	ToCode     string
	Depart     int
	Arrive     int
	DistanceKm float64
	StopHops   int
}

// Label is one candidate itinerary state at a stop. Labels are treated as
// immutable; extending produces a fresh label with copied collections.
type Label struct {
	Arrival        int
	RideMinutes    int
	DistanceKm     float64
	Visited        map[string]struct{}
	QuadrantMask   int
	Legs           []Leg
	Score          float64
	StopCounts     map[string]int
	LineCounts     map[string]int
	Transfers      int
	MinTransferGap int
}

func newStartLabel(snap *network.Snapshot, stop string) *Label {
	return &Label{
		Arrival:        StartTimeMinutes,
		Visited:        map[string]struct{}{stop: {}},
		QuadrantMask:   snap.Quadrant(stop),
		StopCounts:     map[string]int{stop: 1},
		LineCounts:     map[string]int{},
		MinTransferGap: noGap,
	}
}

func copyStrSet(src map[string]struct{}) map[string]struct{} {
	dst := make(map[string]struct{}, len(src)+1)
	for k := range src {
		dst[k] = struct{}{}
	}
	return dst
}

func copyCounts(src map[string]int) map[string]int {
	dst := make(map[string]int, len(src)+1)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// extendLabel rides one more segment. Returns nil when the move violates a
// constraint: immediate backtrack, transfer buffer, stop or line visit caps.
func extendLabel(snap *network.Snapshot, cfg *Config, base *Label, route *network.RouteData, trip *network.RouteTrip, segIdx, depart, arrive int) *Label {
	fromCode := route.Stops[segIdx]
	toCode := route.Stops[segIdx+1]

	if n := len(base.Legs); n > 0 {
		last := base.Legs[n-1]
		if last.FromCode == toCode && last.ToCode == fromCode {
			return nil
		}
	}
	if arrive <= depart {
		return nil
	}

	distanceInc := trip.SegmentDistances[segIdx]
	var prevLeg *Leg
	if n := len(base.Legs); n > 0 {
		prevLeg = &base.Legs[n-1]
	}
	boardingNewTrip := prevLeg == nil || prevLeg.TripID != trip.TripID || prevLeg.LineID != route.LineID

	if boardingNewTrip && prevLeg != nil {
		if gap := depart - prevLeg.Arrive; gap < cfg.MinTransferMinutes {
			return nil
		}
	}

	stopCounts := copyCounts(base.StopCounts)
	if len(base.Legs) == 0 {
		stopCounts[fromCode]++
	}
	currentVisits := stopCounts[toCode]
	limit := cfg.MaxStopVisits
	if snap.HubStop(toCode) && cfg.HubMaxVisits > 0 {
		limit = cfg.HubMaxVisits
	}
	if limit > 0 && currentVisits >= limit {
		return nil
	}
	if cfg.ForbidRepeatsOutsideHub && currentVisits > 0 && !snap.HubStop(toCode) {
		return nil
	}
	stopCounts[toCode] = currentVisits + 1

	lineCounts := copyCounts(base.LineCounts)
	if boardingNewTrip {
		lineCounts[route.LineID]++
		if cfg.MaxLineVisits > 0 && lineCounts[route.LineID] > cfg.MaxLineVisits {
			return nil
		}
	}

	transfers := base.Transfers
	minGap := base.MinTransferGap
	if boardingNewTrip && prevLeg != nil {
		transfers++
		if gap := depart - prevLeg.Arrive; gap < minGap {
			minGap = gap
		}
	}

	legs := make([]Leg, len(base.Legs), len(base.Legs)+1)
	copy(legs, base.Legs)
	if !boardingNewTrip && len(legs) > 0 {
		last := &legs[len(legs)-1]
		last.ToCode = toCode
		last.Arrive = arrive
		last.DistanceKm += distanceInc
		last.StopHops++
	} else {
		legs = append(legs, Leg{
			LineID:     route.LineID,
			LineName:   route.LineName,
			TripID:     trip.TripID,
			FromCode:   fromCode,
			ToCode:     toCode,
			Depart:     depart,
			Arrive:     arrive,
			DistanceKm: distanceInc,
			StopHops:   1,
		})
	}

	visited := copyStrSet(base.Visited)
	visited[toCode] = struct{}{}

	return &Label{
		Arrival:        arrive,
		RideMinutes:    base.RideMinutes + max(0, arrive-depart),
		DistanceKm:     base.DistanceKm + distanceInc,
		Visited:        visited,
		QuadrantMask:   base.QuadrantMask | snap.Quadrant(toCode),
		Legs:           legs,
		StopCounts:     stopCounts,
		LineCounts:     lineCounts,
		Transfers:      transfers,
		MinTransferGap: minGap,
	}
}

// legSignature is the deterministic tie-break of last resort: two labels with
// equal score and ride minutes are ordered by their leg sequence.
func legSignature(l *Label) string {
	buf := make([]byte, 0, len(l.Legs)*24)
	for _, leg := range l.Legs {
		buf = append(buf, leg.LineID...)
		buf = append(buf, '|')
		buf = append(buf, leg.TripID...)
		buf = append(buf, '|')
		buf = append(buf, leg.FromCode...)
		buf = append(buf, '>')
		buf = append(buf, leg.ToCode...)
		buf = appendInt(buf, leg.Depart)
		buf = appendInt(buf, leg.Arrive)
		buf = append(buf, ';')
	}
	return string(buf)
}

func appendInt(buf []byte, v int) []byte {
	buf = append(buf, '@')
	if v == 0 {
		return append(buf, '0')
	}
	var tmp [12]byte
	i := len(tmp)
	for v > 0 {
		i--
		tmp[i] = byte('0' + v%10)
		v /= 10
	}
	return append(buf, tmp[i:]...)
}

// betterLabel orders labels for final selection: score, then ride minutes,
// then the leg signature so reruns pick the same winner.
func betterLabel(a, b *Label) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.RideMinutes != b.RideMinutes {
		return a.RideMinutes > b.RideMinutes
	}
	return legSignature(a) < legSignature(b)
}
