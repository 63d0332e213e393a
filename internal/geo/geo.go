package geo

import (
	"math"
	"sort"
)

// HaversineKm returns the great-circle distance between two points in km.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const r = 6371.0
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dphi := (lat2 - lat1) * math.Pi / 180
	dlam := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dphi/2)*math.Sin(dphi/2) + math.Cos(phi1)*math.Cos(phi2)*math.Sin(dlam/2)*math.Sin(dlam/2)
	return 2 * r * math.Asin(math.Sqrt(a))
}

// Point is a position on the local planar projection, in km.
type Point struct {
	X float64
	Y float64
}

// ProjectToPlane maps lat/lon into a km-scaled plane centered on base.
// Good enough at city scale; not valid for long distances.
func ProjectToPlane(lat, lon, baseLat, baseLon float64) Point {
	cosLat := math.Cos(baseLat * math.Pi / 180)
	return Point{
		X: (lon - baseLon) * cosLat * 111.320,
		Y: (lat - baseLat) * 110.574,
	}
}

// BearingDeg returns the compass-like angle of p around the origin in
// [0,360), measured clockwise from north.
func BearingDeg(p Point) float64 {
	return math.Mod(math.Atan2(p.X, p.Y)*180/math.Pi+360.0, 360.0)
}

// ConvexHullArea computes the area (km^2) of the convex hull of pts.
// Fewer than three distinct points yield zero.
func ConvexHullArea(pts []Point) float64 {
	hull := convexHull(pts)
	if len(hull) < 3 {
		return 0
	}
	area := 0.0
	for i := range hull {
		j := (i + 1) % len(hull)
		area += hull[i].X*hull[j].Y - hull[j].X*hull[i].Y
	}
	return math.Abs(area) / 2
}

// convexHull is the Andrew monotone chain on distinct points.
func convexHull(pts []Point) []Point {
	uniq := make([]Point, 0, len(pts))
	seen := map[Point]struct{}{}
	for _, p := range pts {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		uniq = append(uniq, p)
	}
	if len(uniq) <= 1 {
		return uniq
	}
	sort.Slice(uniq, func(i, j int) bool {
		if uniq[i].X != uniq[j].X {
			return uniq[i].X < uniq[j].X
		}
		return uniq[i].Y < uniq[j].Y
	})
	cross := func(o, a, b Point) float64 {
		return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
	}
	var lower []Point
	for _, p := range uniq {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], p) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, p)
	}
	var upper []Point
	for i := len(uniq) - 1; i >= 0; i-- {
		p := uniq[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], p) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, p)
	}
	return append(lower[:len(lower)-1], upper[:len(upper)-1]...)
}

// AngleMetrics returns the angular span covered around the origin and the
// total absolute turning along the path, both in degrees. Points at the
// origin itself are skipped.
func AngleMetrics(pts []Point) (span, turnSum float64) {
	if len(pts) < 2 {
		return 0, 0
	}
	angles := make([]float64, 0, len(pts))
	for _, p := range pts {
		if p.X == 0 && p.Y == 0 {
			continue
		}
		angles = append(angles, BearingDeg(p))
	}
	if len(angles) < 2 {
		return 0, 0
	}
	for i := 1; i < len(angles); i++ {
		// math.Mod keeps the sign of the dividend, so wrap into [0,360)
		// before shifting back to [-180,180)
		diff := math.Mod(math.Mod(angles[i]-angles[i-1]+180.0, 360.0)+360.0, 360.0) - 180.0
		turnSum += math.Abs(diff)
	}
	sorted := append([]float64(nil), angles...)
	sort.Float64s(sorted)
	maxGap := sorted[0] + 360.0 - sorted[len(sorted)-1]
	for i := 0; i < len(sorted)-1; i++ {
		if g := sorted[i+1] - sorted[i]; g > maxGap {
			maxGap = g
		}
	}
	return 360.0 - maxGap, turnSum
}

// PointSegmentDistance returns the distance from p to segment a-b on the plane.
func PointSegmentDistance(p, a, b Point) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	if dx == 0 && dy == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / (dx*dx + dy*dy)
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(p.X-(a.X+t*dx), p.Y-(a.Y+t*dy))
}
