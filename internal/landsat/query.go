package landsat

import (
	"fmt"
	"strings"
	"time"
)

// Location is where a query looks. It is one of TileLocation, PointLocation,
// PointSetLocation or BoundaryLocation.
type Location interface {
	isLocation()
	String() string
}

type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (p Point) String() string {
	return fmt.Sprintf("(%.4f, %.4f)", p.Lat, p.Lon)
}

func (p Point) validate() error {
	if !within(p.Lat, -90, 90) {
		return &InvalidQueryError{Reason: fmt.Sprintf("latitude %v outside [-90, 90]", p.Lat)}
	}
	if !within(p.Lon, -180, 180) {
		return &InvalidQueryError{Reason: fmt.Sprintf("longitude %v outside [-180, 180]", p.Lon)}
	}
	return nil
}

// within is false for NaN.
func within(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}

type TileLocation struct {
	PathRow
}

type PointLocation struct {
	Point
}

type PointSetLocation struct {
	Points []Point
}

// BoundaryLocation references a vector dataset on disk.
type BoundaryLocation struct {
	Source string
}

func (TileLocation) isLocation()     {}
func (PointLocation) isLocation()    {}
func (PointSetLocation) isLocation() {}
func (BoundaryLocation) isLocation() {}

func (l TileLocation) String() string  { return "tile " + l.PathRow.String() }
func (l PointLocation) String() string { return "point " + l.Point.String() }

func (l PointSetLocation) String() string {
	parts := make([]string, len(l.Points))
	for i, p := range l.Points {
		parts[i] = p.String()
	}
	return "points [" + strings.Join(parts, " ") + "]"
}

func (l BoundaryLocation) String() string { return "boundary " + l.Source }

const DefaultCloudCeiling = 100.0

// Query is a caller request for scenes. Start and End are both inclusive
// calendar days.
type Query struct {
	Sensor       Sensor
	Start        time.Time
	End          time.Time
	Location     Location
	CloudCeiling *float64
	// Count thins the result to this many scenes when positive.
	Count int
}

// Ceiling returns the cloud ceiling, defaulting to 100.
func (q Query) Ceiling() float64 {
	if q.CloudCeiling == nil {
		return DefaultCloudCeiling
	}
	return *q.CloudCeiling
}

// Window returns the half-open acquisition window [Start, End+1 day).
func (q Query) Window() (time.Time, time.Time) {
	return q.Start, q.End.AddDate(0, 0, 1)
}

func (q Query) Validate() error {
	if !q.Sensor.Valid() {
		return &InvalidQueryError{Reason: fmt.Sprintf("unsupported sensor %q", q.Sensor)}
	}
	if q.Start.IsZero() || q.End.IsZero() {
		return &InvalidQueryError{Reason: "start and end dates are required"}
	}
	if q.Start.After(q.End) {
		return &InvalidQueryError{Reason: fmt.Sprintf("start %s is after end %s",
			q.Start.Format(DateLayout), q.End.Format(DateLayout))}
	}
	if c := q.Ceiling(); !within(c, 0, 100) {
		return &InvalidQueryError{Reason: fmt.Sprintf("cloud ceiling %v outside [0, 100]", c)}
	}
	if q.Count < 0 {
		return &InvalidQueryError{Reason: "count must not be negative"}
	}
	switch loc := q.Location.(type) {
	case nil:
		return &InvalidQueryError{Reason: "a tile or a location is required"}
	case TileLocation:
		return nil
	case PointLocation:
		return loc.validate()
	case PointSetLocation:
		if len(loc.Points) == 0 {
			return &InvalidQueryError{Reason: "point set is empty"}
		}
		for _, p := range loc.Points {
			if err := p.validate(); err != nil {
				return err
			}
		}
	case BoundaryLocation:
		if loc.Source == "" {
			return &InvalidQueryError{Reason: "boundary source is empty"}
		}
	}
	return nil
}

// LocationFrom builds a location from the optional tile and point arguments
// accepted by the command line and config documents. Exactly one of the
// pairs must be set.
func LocationFrom(path, row *int, lat, lon *float64) (Location, error) {
	hasTile := path != nil || row != nil
	hasPoint := lat != nil || lon != nil
	switch {
	case hasTile && hasPoint:
		return nil, &InvalidQueryError{Reason: "give either path/row or latitude/longitude, not both"}
	case hasTile:
		if path == nil || row == nil {
			return nil, &InvalidQueryError{Reason: "path and row must be given together"}
		}
		return TileLocation{PathRow{Path: *path, Row: *row}}, nil
	case hasPoint:
		if lat == nil || lon == nil {
			return nil, &InvalidQueryError{Reason: "latitude and longitude must be given together"}
		}
		return PointLocation{Point{Lat: *lat, Lon: *lon}}, nil
	}
	return nil, &InvalidQueryError{Reason: "a tile or a location is required"}
}
