package wrs

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/dgketchum/Landsat578/internal/landsat"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// feature is a vector feature in lon/lat with its attribute table.
type feature struct {
	geometry orb.Geometry
	attrs    map[string]string
}

type tile struct {
	pr      landsat.PathRow
	shape   orb.MultiPolygon
	bound   orb.Bound
	wrapped bool
}

// grid is an immutable set of tile polygons for one reference system.
type grid struct {
	name  landsat.Grid
	tiles []tile
}

func newGrid(name landsat.Grid, features []feature) (*grid, error) {
	g := &grid{name: name}
	for i, f := range features {
		pr, ok := pathRowOf(f.attrs)
		if !ok {
			return nil, fmt.Errorf("feature %d has no PATH/ROW attributes", i)
		}
		var shape orb.MultiPolygon
		switch geom := f.geometry.(type) {
		case orb.Polygon:
			shape = orb.MultiPolygon{geom}
		case orb.MultiPolygon:
			shape = geom
		default:
			continue
		}
		t := tile{pr: pr, shape: shape.Clone()}
		t.bound = t.shape.Bound()
		if t.bound.Max[0]-t.bound.Min[0] > 180 {
			unwrap(t.shape)
			t.bound = t.shape.Bound()
			t.wrapped = true
		}
		g.tiles = append(g.tiles, t)
	}
	if len(g.tiles) == 0 {
		return nil, fmt.Errorf("no polygon features in %s grid", name)
	}
	return g, nil
}

// unwrap moves western hemisphere vertices of an antimeridian-crossing polygon
// to [180, 360) so the ring is continuous.
func unwrap(mp orb.MultiPolygon) {
	for _, poly := range mp {
		for _, ring := range poly {
			for i := range ring {
				if ring[i][0] < 0 {
					ring[i][0] += 360
				}
			}
		}
	}
}

func (t tile) contains(p orb.Point) bool {
	if t.wrapped && p[0] < 0 {
		p[0] += 360
	}
	return t.bound.Contains(p) && planar.MultiPolygonContains(t.shape, p)
}

// containing returns every tile whose polygon contains p, sorted.
func (g *grid) containing(p orb.Point) []landsat.PathRow {
	var out []landsat.PathRow
	for _, t := range g.tiles {
		if t.contains(p) {
			out = append(out, t.pr)
		}
	}
	return sortTiles(out)
}

// intersecting approximates polygon overlap by testing vertices both ways.
func (g *grid) intersecting(geom orb.Geometry) []landsat.PathRow {
	if p, ok := geom.(orb.Point); ok {
		return g.containing(p)
	}
	vertices := collectPoints(geom)
	polygon, _ := asMultiPolygon(geom)
	var out []landsat.PathRow
	for _, t := range g.tiles {
		if t.hitsAny(vertices) || (polygon != nil && containsAny(polygon, collectPoints(t.shape))) {
			out = append(out, t.pr)
		}
	}
	return sortTiles(out)
}

func (t tile) hitsAny(points []orb.Point) bool {
	for _, p := range points {
		if t.contains(p) {
			return true
		}
	}
	return false
}

func containsAny(mp orb.MultiPolygon, points []orb.Point) bool {
	for _, p := range points {
		if planar.MultiPolygonContains(mp, p) {
			return true
		}
	}
	return false
}

func (g *grid) footprint(pr landsat.PathRow) (orb.MultiPolygon, bool) {
	for _, t := range g.tiles {
		if t.pr == pr {
			return t.shape, true
		}
	}
	return nil, false
}

func asMultiPolygon(geom orb.Geometry) (orb.MultiPolygon, bool) {
	switch v := geom.(type) {
	case orb.Polygon:
		return orb.MultiPolygon{v}, true
	case orb.MultiPolygon:
		return v, true
	}
	return nil, false
}

func collectPoints(geom orb.Geometry) []orb.Point {
	switch v := geom.(type) {
	case orb.Point:
		return []orb.Point{v}
	case orb.MultiPoint:
		return v
	case orb.LineString:
		return v
	case orb.Ring:
		return v
	case orb.MultiLineString:
		var out []orb.Point
		for _, ls := range v {
			out = append(out, ls...)
		}
		return out
	case orb.Polygon:
		var out []orb.Point
		for _, r := range v {
			out = append(out, r...)
		}
		return out
	case orb.MultiPolygon:
		var out []orb.Point
		for _, p := range v {
			out = append(out, collectPoints(p)...)
		}
		return out
	case orb.Collection:
		var out []orb.Point
		for _, g := range v {
			out = append(out, collectPoints(g)...)
		}
		return out
	}
	return nil
}

func sortTiles(tiles []landsat.PathRow) []landsat.PathRow {
	sort.Slice(tiles, func(i, j int) bool { return tiles[i].Less(tiles[j]) })
	out := tiles[:0]
	for _, t := range tiles {
		if len(out) == 0 || t != out[len(out)-1] {
			out = append(out, t)
		}
	}
	return out
}

// pathRowOf reads PATH/ROW (or WRS_PATH/WRS_ROW) attributes, ignoring case.
func pathRowOf(attrs map[string]string) (landsat.PathRow, bool) {
	path, okP := intAttr(attrs, "PATH", "WRS_PATH")
	row, okR := intAttr(attrs, "ROW", "WRS_ROW")
	if !okP || !okR {
		return landsat.PathRow{}, false
	}
	return landsat.PathRow{Path: path, Row: row}, true
}

// intAttr returns the first numeric value among names, tried in order.
func intAttr(attrs map[string]string, names ...string) (int, bool) {
	keys := make([]string, 0, len(attrs))
	for key := range attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, name := range names {
		for _, key := range keys {
			if !strings.EqualFold(key, name) {
				continue
			}
			f, err := strconv.ParseFloat(strings.TrimSpace(attrs[key]), 64)
			if err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
				return int(f), true
			}
		}
	}
	return 0, false
}

// readGeoJSON loads a FeatureCollection, flattening properties to strings.
func readGeoJSON(path string) ([]feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	features := make([]feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		attrs := make(map[string]string, len(f.Properties))
		for k, v := range f.Properties {
			attrs[k] = fmt.Sprint(v)
		}
		features = append(features, feature{geometry: f.Geometry, attrs: attrs})
	}
	return features, nil
}
