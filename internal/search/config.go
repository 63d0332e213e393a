package search

import "busquest/internal/network"

// Config is one challenge objective: presentation fields, constraint knobs
// and the scoring, dominance and acceptance strategy functions.
type Config struct {
	ChallengeID string
	Title       string
	Tagline     string
	ThemeTags   []string
	Badge       string

	RequireQuadrants   bool
	MaxRounds          int
	MinTransferMinutes int

	// Visit caps; zero means unlimited.
	MaxStopVisits           int
	MaxLineVisits           int
	HubMaxVisits            int
	ForbidRepeatsOutsideHub bool

	Score     func(l *Label, m Metrics) float64
	Dominates func(a *Label, ma Metrics, b *Label, mb Metrics) bool
	Accept    func(l *Label, m Metrics) bool
}

// LongestDuration maximizes time spent riding within the 24h window.
func LongestDuration(snap *network.Snapshot) *Config {
	const transferPenalty = 800
	cfg := &Config{
		ChallengeID:        "longest-duration",
		Title:              "24h Long Ride",
		Tagline:            "Start at the hub and keep transferring for a full day of riding.",
		ThemeTags:          []string{"duration", "endurance"},
		Badge:              "longest-ride",
		MaxRounds:          50,
		MinTransferMinutes: 5,
		MaxStopVisits:      3,
		MaxLineVisits:      2,
		HubMaxVisits:       3,
	}
	cfg.Score = func(l *Label, m Metrics) float64 {
		for stop, count := range l.StopCounts {
			limit := cfg.MaxStopVisits
			if snap.HubStop(stop) && cfg.HubMaxVisits > 0 {
				limit = cfg.HubMaxVisits
			}
			if limit > 0 && count > limit {
				return -1.0
			}
		}
		return float64(l.RideMinutes)*10000 +
			m.UniqueLines*600 +
			m.Quadrants*1800 +
			m.AvgRadius*160 +
			m.BoundaryRatio*2200 -
			m.CenterRatio*4000 -
			m.ShortLegRatio*3000 -
			m.RepeatPenalty*500 -
			m.StopRepeatTotal*900 -
			float64(l.Transfers)*transferPenalty
	}
	cfg.Dominates = func(a *Label, ma Metrics, b *Label, mb Metrics) bool {
		if a.RideMinutes >= b.RideMinutes &&
			ma.UniqueLines >= mb.UniqueLines &&
			a.Arrival <= b.Arrival {
			return a.Score >= b.Score
		}
		return false
	}
	cfg.Accept = func(*Label, Metrics) bool { return true }
	return cfg
}

// MostStops maximizes distinct stops visited before returning to the hub.
func MostStops(_ *network.Snapshot) *Config {
	const transferPenalty = 1000
	cfg := &Config{
		ChallengeID:        "most-stops",
		Title:              "Unique Stop Complete",
		Tagline:            "Touch as many distinct stops as possible inside 24 hours.",
		ThemeTags:          []string{"coverage", "hub-return"},
		Badge:              "stop-hunter",
		MaxRounds:          5,
		MinTransferMinutes: 6,
	}
	cfg.Score = func(l *Label, m Metrics) float64 {
		return m.UniqueStops*12000 +
			m.Quadrants*1200 +
			m.AvgRadius*180 +
			l.DistanceKm*40 +
			m.BoundaryRatio*2500 -
			m.CenterRatio*2500 -
			m.RepeatPenalty*600 -
			m.StopRepeatTotal*1600 -
			float64(l.Transfers)*transferPenalty
	}
	cfg.Dominates = func(a *Label, ma Metrics, b *Label, mb Metrics) bool {
		if ma.UniqueStops >= mb.UniqueStops && a.Arrival <= b.Arrival {
			return a.Score >= b.Score
		}
		return false
	}
	cfg.Accept = func(*Label, Metrics) bool { return true }
	return cfg
}

// CityLoop demands full quadrant coverage in one round trip that traces the
// city edge.
func CityLoop(_ *network.Snapshot) *Config {
	const transferPenalty = 900
	cfg := &Config{
		ChallengeID:        "city-loop",
		Title:              "Full City Loop",
		Tagline:            "Sweep the northeast, southeast, southwest and northwest zones in one circuit.",
		ThemeTags:          []string{"loop", "quadrants"},
		Badge:              "loop-master",
		RequireQuadrants:   true,
		MaxRounds:          50,
		MinTransferMinutes: 5,
	}
	cfg.Score = func(l *Label, m Metrics) float64 {
		if m.Quadrants < 4 {
			return m.Quadrants*1200 +
				m.AvgRadius*80 +
				m.BoundaryRatio*1800 -
				m.StopRepeatTotal*1200
		}
		return m.HullArea*120 +
			m.AvgRadius*220 +
			m.AngleSpan*35 +
			m.TurnSum*25 +
			l.DistanceKm*25 +
			m.BoundaryRatio*8000 +
			m.BoundaryProgress*6000 +
			m.MinQuadrantRadius*1000 -
			m.CenterRatio*4500 -
			m.RepeatPenalty*500 -
			m.StopRepeatTotal*1500 -
			float64(l.Transfers)*transferPenalty
	}
	cfg.Dominates = func(a *Label, ma Metrics, b *Label, mb Metrics) bool {
		if ma.Quadrants >= mb.Quadrants &&
			ma.BoundaryRatio >= mb.BoundaryRatio &&
			ma.HullArea >= mb.HullArea &&
			a.Arrival <= b.Arrival {
			return a.Score >= b.Score
		}
		return false
	}
	cfg.Accept = func(_ *Label, m Metrics) bool {
		return m.Quadrants == 4 &&
			m.HullArea >= 25.0 &&
			m.AvgRadius >= 3.0 &&
			m.AngleSpan >= 180.0 &&
			m.BoundaryRatio >= 0.3
	}
	return cfg
}

// LongestDistance maximizes kilometers ridden.
func LongestDistance(_ *network.Snapshot) *Config {
	const transferPenalty = 900
	cfg := &Config{
		ChallengeID:        "longest-distance",
		Title:              "Longest Distance Tour",
		Tagline:            "Rack up the most kilometers hub to hub inside 24 hours.",
		ThemeTags:          []string{"distance", "endurance"},
		Badge:              "longest-distance",
		MaxRounds:          50,
		MinTransferMinutes: 5,
		MaxStopVisits:      4,
		MaxLineVisits:      2,
	}
	cfg.Score = func(l *Label, m Metrics) float64 {
		return l.DistanceKm*12500 +
			m.AvgLegDistance*1000 +
			m.MaxLegDistance*500 +
			m.UniqueLines*800 +
			m.AvgRadius*220 +
			m.Quadrants*1500 +
			m.HullArea*60 +
			m.BoundaryRatio*2500 -
			m.RepeatPenalty*700 -
			m.CenterRatio*3200 -
			m.StopRepeatTotal*900 -
			float64(l.Transfers)*transferPenalty
	}
	cfg.Dominates = func(a *Label, ma Metrics, b *Label, mb Metrics) bool {
		if a.DistanceKm >= b.DistanceKm &&
			ma.AvgRadius >= mb.AvgRadius &&
			ma.BoundaryRatio >= mb.BoundaryRatio &&
			a.Arrival <= b.Arrival {
			return a.Score >= b.Score
		}
		return false
	}
	cfg.Accept = func(*Label, Metrics) bool { return true }
	return cfg
}

// AllChallenges returns the four built-in objectives for a snapshot.
func AllChallenges(snap *network.Snapshot) []*Config {
	return []*Config{
		LongestDuration(snap),
		MostStops(snap),
		CityLoop(snap),
		LongestDistance(snap),
	}
}
