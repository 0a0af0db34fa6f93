package landsat

import (
	"fmt"
	"regexp"
	"time"
)

const DateLayout = "2006-01-02"

type PathRow struct {
	Path int `json:"path"`
	Row  int `json:"row"`
}

func (pr PathRow) String() string {
	return fmt.Sprintf("%03d/%03d", pr.Path, pr.Row)
}

// Less orders tiles by path then row.
func (pr PathRow) Less(other PathRow) bool {
	if pr.Path != other.Path {
		return pr.Path < other.Path
	}
	return pr.Row < other.Row
}

// Tile is a path/row on a specific sensor's grid.
type Tile struct {
	Sensor Sensor
	PathRow
}

// SceneRecord is one row of archive metadata. Records are produced by a
// metadata refresh and never modified afterwards.
type SceneRecord struct {
	SceneID            string
	ProductID          string
	Sensor             Sensor
	SensorID           string
	Tile               PathRow
	AcquisitionDate    time.Time
	CloudCover         *float64
	Locator            string
	CollectionNumber   string
	CollectionCategory string
	TotalSize          int64
	North, South       float64
	East, West         float64
}

// HasCloudCover reports whether the archive published a cloud estimate.
func (r SceneRecord) HasCloudCover() bool {
	return r.CloudCover != nil
}

// CloudBelow reports whether cloud cover is known and strictly below ceiling.
func (r SceneRecord) CloudBelow(ceiling float64) bool {
	return r.CloudCover != nil && *r.CloudCover < ceiling
}

// Date formats the acquisition date as YYYY-MM-DD.
func (r SceneRecord) Date() string {
	return r.AcquisitionDate.Format(DateLayout)
}

// Collection 1+ product ids, e.g. LC08_L1TP_039027_20130531_20170310_01_T1.
var productIDPattern = regexp.MustCompile(`^L[COTEM]0[1-8]_L[0-9A-Z]{3}_\d{6}_\d{8}_\d{8}_\d{2}_(T1|T2|RT)$`)

// ValidProductID reports whether id is a well formed collection product id.
// The archive keeps empty or truncated placeholders for withdrawn scenes.
func ValidProductID(id string) bool {
	return productIDPattern.MatchString(id)
}

// ParseDate parses an ISO YYYY-MM-DD date as UTC midnight.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, &InvalidQueryError{Reason: fmt.Sprintf("invalid date %q, want YYYY-MM-DD", value)}
	}
	return t, nil
}

// Float is a helper for optional cloud cover values.
func Float(v float64) *float64 {
	return &v
}
