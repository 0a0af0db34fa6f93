package wrs

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb/encoding/wkb"
)

var registerDrivers sync.Once

// readVectorFile reads any vector format: GeoJSON directly through orb,
// everything else (shapefile, geopackage, ...) through GDAL/OGR.
func readVectorFile(path string) ([]feature, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		return readGeoJSON(path)
	}
	return readOGR(path)
}

// readOGR reads every feature of every layer, reprojected to EPSG:4326.
func readOGR(path string) ([]feature, error) {
	registerDrivers.Do(godal.RegisterAll)

	ds, err := godal.Open(path, godal.VectorOnly())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer ds.Close()

	wgs84, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return nil, fmt.Errorf("create EPSG:4326 reference: %w", err)
	}
	defer wgs84.Close()

	var features []feature
	for _, layer := range ds.Layers() {
		for {
			feat := layer.NextFeature()
			if feat == nil {
				break
			}
			f, err := convertFeature(feat, wgs84)
			feat.Close()
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", path, err)
			}
			if f.geometry != nil {
				features = append(features, f)
			}
		}
	}
	return features, nil
}

func convertFeature(feat *godal.Feature, wgs84 *godal.SpatialRef) (feature, error) {
	attrs := make(map[string]string)
	for name, field := range feat.Fields() {
		attrs[name] = field.String()
	}

	geom := feat.Geometry()
	defer geom.Close()
	if geom.Empty() {
		return feature{attrs: attrs}, nil
	}
	if sr := geom.SpatialRef(); sr != nil && !sr.IsSame(wgs84) {
		if err := geom.Reproject(wgs84); err != nil {
			return feature{}, fmt.Errorf("reproject geometry: %w", err)
		}
	}
	raw, err := geom.WKB()
	if err != nil {
		return feature{}, fmt.Errorf("encode geometry: %w", err)
	}
	g, err := wkb.Unmarshal(raw)
	if err != nil {
		return feature{}, fmt.Errorf("decode geometry: %w", err)
	}
	return feature{geometry: g, attrs: attrs}, nil
}
