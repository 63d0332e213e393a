package search

import (
	"math/bits"

	"busquest/internal/geo"
	"busquest/internal/network"
)

// Metrics are the derived shape properties of a label used by the challenge
// scoring and dominance functions.
type Metrics struct {
	UniqueLines      float64
	UniqueStops      float64
	Quadrants        float64
	AvgRadius        float64
	MaxRadius        float64
	CenterRatio      float64
	HullArea         float64
	AngleSpan        float64
	TurnSum          float64
	RepeatPenalty    float64
	ShortLegRatio    float64
	BoundaryHits     float64
	BoundaryRatio    float64
	BoundaryProgress float64
	StopRepeatTotal  float64
	StopRepeatMax    float64
	AvgLegDistance   float64
	MaxLegDistance   float64

	// MinQuadrantRadius is the smallest per-quadrant maximum radius over all
	// four quadrants. It rewards loops that push outward everywhere, not just
	// in one direction.
	MinQuadrantRadius float64
}

// ComputeMetrics derives the metric set for one label against a snapshot.
func ComputeMetrics(snap *network.Snapshot, l *Label) Metrics {
	var m Metrics

	lines := map[string]struct{}{}
	for _, leg := range l.Legs {
		lines[leg.LineID] = struct{}{}
	}
	m.UniqueLines = float64(len(lines))
	m.UniqueStops = float64(len(l.Visited))
	m.Quadrants = float64(bits.OnesCount(uint(l.QuadrantMask)))

	repeatTotal := 0
	repeatMax := 0
	for _, cnt := range l.StopCounts {
		if cnt > 1 {
			repeatTotal += cnt - 1
		}
		if cnt > repeatMax {
			repeatMax = cnt
		}
	}
	m.StopRepeatTotal = float64(repeatTotal)
	m.StopRepeatMax = float64(repeatMax)

	var (
		radiusSum    float64
		centerVisits int
		count        int
		quadMax      [4]float64
	)
	for code := range l.Visited {
		st, ok := snap.Stops[code]
		if !ok {
			continue
		}
		r := geo.HaversineKm(st.Lat, st.Lon, snap.HubLat, snap.HubLon)
		radiusSum += r
		count++
		if r > m.MaxRadius {
			m.MaxRadius = r
		}
		if r < snap.InnerRadiusKm {
			centerVisits++
		}
		switch snap.Quadrant(code) {
		case network.QuadrantNE:
			quadMax[0] = max(quadMax[0], r)
		case network.QuadrantSE:
			quadMax[1] = max(quadMax[1], r)
		case network.QuadrantSW:
			quadMax[2] = max(quadMax[2], r)
		case network.QuadrantNW:
			quadMax[3] = max(quadMax[3], r)
		}
	}
	if count > 0 {
		m.AvgRadius = radiusSum / float64(count)
		m.CenterRatio = float64(centerVisits) / float64(count)
	}
	m.MinQuadrantRadius = min(min(quadMax[0], quadMax[1]), min(quadMax[2], quadMax[3]))

	// Path coordinates in travel order feed the hull and angle metrics.
	var path []geo.Point
	if len(l.Legs) > 0 {
		if st, ok := snap.Stops[l.Legs[0].FromCode]; ok {
			path = append(path, geo.ProjectToPlane(st.Lat, st.Lon, snap.HubLat, snap.HubLon))
		}
		for _, leg := range l.Legs {
			if st, ok := snap.Stops[leg.ToCode]; ok {
				path = append(path, geo.ProjectToPlane(st.Lat, st.Lon, snap.HubLat, snap.HubLon))
			}
		}
	} else {
		for code := range l.Visited {
			if st, ok := snap.Stops[code]; ok {
				path = append(path, geo.ProjectToPlane(st.Lat, st.Lon, snap.HubLat, snap.HubLon))
			}
		}
	}
	m.HullArea = geo.ConvexHullArea(path)
	m.AngleSpan, m.TurnSum = geo.AngleMetrics(path)

	if n := len(l.Legs); n > 0 {
		m.RepeatPenalty = max(0, float64(n)-m.UniqueLines)
		short := 0
		var maxLeg float64
		for _, leg := range l.Legs {
			if leg.DistanceKm < 0.5 {
				short++
			}
			if leg.DistanceKm > maxLeg {
				maxLeg = leg.DistanceKm
			}
		}
		m.ShortLegRatio = float64(short) / float64(n)
		m.AvgLegDistance = l.DistanceKm / float64(n)
		m.MaxLegDistance = maxLeg
	}

	if len(snap.BoundarySequence) > 0 {
		boundarySet := make(map[string]struct{}, len(snap.BoundarySequence))
		for _, code := range snap.BoundarySequence {
			boundarySet[code] = struct{}{}
		}
		hits := 0
		for code := range l.Visited {
			if _, ok := boundarySet[code]; ok {
				hits++
			}
		}
		m.BoundaryHits = float64(hits)
		m.BoundaryRatio = float64(hits) / float64(len(boundarySet))

		// Progress: index spread of boundary stops touched in leg order.
		minIdx, maxIdx := -1, -1
		seen := map[string]struct{}{}
		for _, leg := range l.Legs {
			for _, code := range [2]string{leg.FromCode, leg.ToCode} {
				if _, ok := boundarySet[code]; !ok {
					continue
				}
				if _, ok := seen[code]; ok {
					continue
				}
				seen[code] = struct{}{}
				idx, ok := snap.BoundaryIndex[code]
				if !ok {
					continue
				}
				if minIdx < 0 || idx < minIdx {
					minIdx = idx
				}
				if idx > maxIdx {
					maxIdx = idx
				}
			}
		}
		if minIdx >= 0 {
			progress := float64(maxIdx-minIdx) / float64(len(snap.BoundarySequence))
			m.BoundaryProgress = min(1.0, progress)
		}
	}
	return m
}
