package network

import (
	"encoding/csv"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"gopkg.in/yaml.v3"

	"busquest/internal/geo"
)

const (
	segmentsPrefix  = "segments_"
	timetablePrefix = "timetable_"
)

// Loader reads the static data directory into a BuildInput. It is stateless
// apart from the directory path; every Load call reads fresh from disk.
type Loader struct {
	DataDir string
}

// freepassFile mirrors freepass_lines.yml.
type freepassFile struct {
	FreepassLines []struct {
		LineID   string `yaml:"line_id"`
		Name     string `yaml:"name"`
		LineName string `yaml:"line_name"`
		Eligible bool   `yaml:"eligible"`
	} `yaml:"freepass_lines"`
}

// Load reads stations, line metadata, the city boundary and the newest edge
// file, then assembles a snapshot. Any failure returns a DataLoadError and
// leaves nothing half-loaded.
func (l *Loader) Load(opts BuildOptions) (*Snapshot, error) {
	stops, err := l.loadStations()
	if err != nil {
		return nil, err
	}
	stopIndex := make(map[string]Stop, len(stops))
	for _, s := range stops {
		stopIndex[s.Code] = s
	}

	lineNames, eligible, err := l.loadLineMeta()
	if err != nil {
		return nil, err
	}
	rings := l.loadCityBoundary()

	dataPath := l.findLatestDataFile()
	if dataPath == "" {
		return nil, loadErr("edges", "no segments_*.csv or timetable_*.csv in "+l.DataDir, nil)
	}

	var (
		edges []TripEdge
		excl  ExclusionStats
	)
	eligibleSet := map[string]struct{}{}
	for _, id := range eligible {
		eligibleSet[id] = struct{}{}
	}
	if strings.HasPrefix(filepath.Base(dataPath), segmentsPrefix) {
		edges, err = l.loadSegmentEdges(dataPath, stopIndex, lineNames, eligibleSet, &excl)
	} else {
		edges, err = l.loadTimetableEdges(dataPath, stopIndex, lineNames, eligibleSet, &excl)
	}
	if err != nil {
		return nil, err
	}
	if len(edges) == 0 {
		return nil, loadErr("edges", "no usable edges in "+filepath.Base(dataPath), nil)
	}
	excl.Kept = len(edges)
	log.Printf("network: loaded %d edges from %s (dropped: line=%d stop=%d time=%d)",
		len(edges), filepath.Base(dataPath), excl.LineNotEligible, excl.UnknownStop, excl.InvalidTime)

	return Build(BuildInput{
		Stops:         stops,
		LineNames:     lineNames,
		EligibleLines: eligible,
		Edges:         edges,
		BoundaryRings: rings,
		Exclusions:    excl,
	}, opts)
}

func (l *Loader) loadStations() ([]Stop, error) {
	path := filepath.Join(l.DataDir, "stations.csv")
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, loadErr("stations", "cannot read stations.csv", err)
	}
	var stops []Stop
	for _, row := range rows {
		code := field(row, header, "ekispert_station_code")
		if code == "" {
			code = field(row, header, "station_code")
		}
		if code == "" {
			continue
		}
		lat, errA := strconv.ParseFloat(field(row, header, "lat"), 64)
		lon, errB := strconv.ParseFloat(field(row, header, "lon"), 64)
		if errA != nil || errB != nil || (lat == 0 && lon == 0) {
			continue
		}
		name := field(row, header, "name")
		if name == "" {
			name = code
		}
		stops = append(stops, Stop{Code: code, Name: name, Lat: lat, Lon: lon})
	}
	if len(stops) == 0 {
		return nil, loadErr("stations", "stations.csv has no valid rows", nil)
	}
	return stops, nil
}

func (l *Loader) loadLineMeta() (map[string]string, []string, error) {
	path := filepath.Join(l.DataDir, "freepass_lines.yml")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, loadErr("lines", "cannot read freepass_lines.yml", err)
	}
	var file freepassFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, nil, loadErr("lines", "freepass_lines.yml is not valid YAML", err)
	}
	names := map[string]string{}
	var eligible []string
	for _, row := range file.FreepassLines {
		if row.LineID == "" {
			continue
		}
		name := row.Name
		if name == "" {
			name = row.LineName
		}
		if name == "" {
			name = row.LineID
		}
		names[row.LineID] = name
		if row.Eligible {
			eligible = append(eligible, row.LineID)
		}
	}
	if len(eligible) == 0 {
		return nil, nil, loadErr("lines", "freepass_lines.yml lists no eligible lines", nil)
	}
	sort.Strings(eligible)
	return names, eligible, nil
}

// loadCityBoundary reads the city polygon. A missing or broken boundary file
// degrades loop planning but never fails the whole load.
func (l *Loader) loadCityBoundary() [][]geo.Point {
	path := filepath.Join(l.DataDir, "city_boundary.geojson")
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Printf("network: %s not found; city loop may degrade", filepath.Base(path))
		return nil
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		log.Printf("network: city boundary is not valid GeoJSON: %v", err)
		return nil
	}
	var rings [][]orb.Ring
	for _, f := range fc.Features {
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			if len(g) > 0 {
				rings = append(rings, []orb.Ring{g[0]})
			}
		case orb.MultiPolygon:
			for _, poly := range g {
				if len(poly) > 0 {
					rings = append(rings, []orb.Ring{poly[0]})
				}
			}
		}
	}
	var out [][]geo.Point
	for _, group := range rings {
		for _, ring := range group {
			if len(ring) < 2 {
				continue
			}
			pts := make([]geo.Point, 0, len(ring))
			for _, pos := range ring {
				// Stored raw in lat/lon order; projected onto the hub
				// plane once the hub coordinate is known.
				pts = append(pts, geo.Point{X: pos.Lat(), Y: pos.Lon()})
			}
			out = append(out, pts)
		}
	}
	if len(out) == 0 {
		log.Printf("network: city boundary has no polygon data")
	}
	return out
}

// findLatestDataFile prefers segment exports over raw timetables, newest
// mtime first within each prefix.
func (l *Loader) findLatestDataFile() string {
	for _, prefix := range []string{segmentsPrefix, timetablePrefix} {
		matches, err := filepath.Glob(filepath.Join(l.DataDir, prefix+"*.csv"))
		if err != nil || len(matches) == 0 {
			continue
		}
		sort.Slice(matches, func(i, j int) bool {
			fi, errI := os.Stat(matches[i])
			fj, errJ := os.Stat(matches[j])
			if errI != nil || errJ != nil {
				return matches[i] > matches[j]
			}
			if !fi.ModTime().Equal(fj.ModTime()) {
				return fi.ModTime().After(fj.ModTime())
			}
			return matches[i] > matches[j]
		})
		return matches[0]
	}
	return ""
}

func (l *Loader) loadSegmentEdges(path string, stops map[string]Stop, lineNames map[string]string, eligible map[string]struct{}, excl *ExclusionStats) ([]TripEdge, error) {
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, loadErr("edges", "cannot read "+filepath.Base(path), err)
	}
	for _, col := range []string{"line_id", "direction", "service_date", "segment_id", "from_stop", "to_stop", "depart", "arrive"} {
		if _, ok := header[col]; !ok {
			return nil, loadErr("edges", "segments CSV is missing column "+col, nil)
		}
	}
	var edges []TripEdge
	for _, row := range rows {
		lineID := field(row, header, "line_id")
		if _, ok := eligible[lineID]; !ok {
			excl.LineNotEligible++
			continue
		}
		fromCode := field(row, header, "from_stop")
		toCode := field(row, header, "to_stop")
		stA, okA := stops[fromCode]
		stB, okB := stops[toCode]
		if !okA || !okB {
			excl.UnknownStop++
			continue
		}
		depart, okD := parseClockMinutes(field(row, header, "depart"))
		arrive, okR := parseClockMinutes(field(row, header, "arrive"))
		if !okD || !okR {
			excl.InvalidTime++
			continue
		}
		if arrive <= depart {
			arrive += 1440
		}
		tripID := field(row, header, "trip_id")
		if tripID == "" {
			tripID = field(row, header, "segment_id")
		}
		if tripID == "" {
			tripID = lineID + "-" + fromCode + "-" + toCode
		}
		name := lineNames[lineID]
		if name == "" {
			name = lineID
		}
		fromName := field(row, header, "from_name")
		if fromName == "" {
			fromName = stA.Name
		}
		toName := field(row, header, "to_name")
		if toName == "" {
			toName = stB.Name
		}
		edges = append(edges, TripEdge{
			LineID:      lineID,
			LineName:    name,
			TripID:      tripID,
			Direction:   field(row, header, "direction"),
			ServiceDate: field(row, header, "service_date"),
			FromCode:    fromCode,
			FromName:    fromName,
			ToCode:      toCode,
			ToName:      toName,
			Depart:      depart,
			Arrive:      arrive,
			DistanceKm:  geo.HaversineKm(stA.Lat, stA.Lon, stB.Lat, stB.Lon),
			FromLat:     stA.Lat,
			FromLon:     stA.Lon,
			ToLat:       stB.Lat,
			ToLon:       stB.Lon,
		})
	}
	return edges, nil
}

func (l *Loader) loadTimetableEdges(path string, stops map[string]Stop, lineNames map[string]string, eligible map[string]struct{}, excl *ExclusionStats) ([]TripEdge, error) {
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, loadErr("edges", "cannot read "+filepath.Base(path), err)
	}
	type tripKey struct {
		line, dir, date, trip string
	}
	type stopRow struct {
		seq     int
		station string
		dep     string
		arr     string
	}
	byTrip := map[tripKey][]stopRow{}
	var order []tripKey
	for _, row := range rows {
		lineID := field(row, header, "operationLineCode")
		if _, ok := eligible[lineID]; !ok {
			excl.LineNotEligible++
			continue
		}
		station := field(row, header, "station_code")
		if _, ok := stops[station]; !ok {
			excl.UnknownStop++
			continue
		}
		seq, _ := strconv.Atoi(field(row, header, "stop_seq"))
		k := tripKey{
			line: lineID,
			dir:  field(row, header, "direction"),
			date: field(row, header, "service_date"),
			trip: field(row, header, "trip_id"),
		}
		if _, ok := byTrip[k]; !ok {
			order = append(order, k)
		}
		byTrip[k] = append(byTrip[k], stopRow{
			seq:     seq,
			station: station,
			dep:     field(row, header, "dep"),
			arr:     field(row, header, "arr"),
		})
	}
	if len(byTrip) == 0 {
		return nil, loadErr("edges", "timetable contains no usable trips", nil)
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

	var edges []TripEdge
	for _, k := range order {
		trip := byTrip[k]
		sort.SliceStable(trip, func(i, j int) bool { return trip[i].seq < trip[j].seq })

		// Normalize each trip's clock strings to minutes, rolling over
		// midnight when the clock jumps backwards by more than 10 hours.
		prev := -1
		rollover := 0
		normalize := func(raw string) (int, bool) {
			m, ok := parseClockMinutes(raw)
			if !ok {
				return 0, false
			}
			if prev >= 0 && m+rollover+600 < prev {
				rollover += 1440
			}
			m += rollover
			prev = m
			return m, true
		}
		type timed struct {
			station  string
			dep, arr int
			okD, okA bool
		}
		seq := make([]timed, 0, len(trip))
		for _, r := range trip {
			t := timed{station: r.station}
			t.dep, t.okD = normalize(r.dep)
			t.arr, t.okA = normalize(r.arr)
			seq = append(seq, t)
		}
		name := lineNames[k.line]
		if name == "" {
			name = k.line
		}
		for i := 0; i+1 < len(seq); i++ {
			from, to := seq[i], seq[i+1]
			if !from.okD || !to.okA || to.arr <= from.dep {
				excl.InvalidTime++
				continue
			}
			stA := stops[from.station]
			stB := stops[to.station]
			edges = append(edges, TripEdge{
				LineID:      k.line,
				LineName:    name,
				TripID:      k.trip,
				Direction:   k.dir,
				ServiceDate: k.date,
				FromCode:    from.station,
				FromName:    stA.Name,
				ToCode:      to.station,
				ToName:      stB.Name,
				Depart:      from.dep,
				Arrive:      to.arr,
				DistanceKm:  geo.HaversineKm(stA.Lat, stA.Lon, stB.Lat, stB.Lon),
				FromLat:     stA.Lat,
				FromLon:     stA.Lon,
				ToLat:       stB.Lat,
				ToLon:       stB.Lon,
			})
		}
	}
	return edges, nil
}

// parseClockMinutes parses "HH:MM" (optionally with seconds or a leading
// date) into minutes since midnight.
func parseClockMinutes(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	if i := strings.LastIndexByte(s, ' '); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		s = s[i+1:]
	}
	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return 0, false
	}
	h, errH := strconv.Atoi(parts[0])
	m, errM := strconv.Atoi(parts[1])
	if errH != nil || errM != nil || h < 0 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

func readCSV(path string) ([][]string, map[string]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	head, err := r.Read()
	if err != nil {
		return nil, nil, err
	}
	header := make(map[string]int, len(head))
	for i, h := range head {
		header[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, rec)
	}
	return rows, header, nil
}

func field(row []string, header map[string]int, name string) string {
	idx, ok := header[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
