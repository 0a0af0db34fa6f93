package landsat

import (
	"fmt"
	"strconv"
	"strings"
)

// Sensor identifies a Landsat generation. Its value is the SPACECRAFT_ID used
// by the archive index.
type Sensor string

const (
	Landsat1 Sensor = "LANDSAT_1"
	Landsat2 Sensor = "LANDSAT_2"
	Landsat3 Sensor = "LANDSAT_3"
	Landsat4 Sensor = "LANDSAT_4"
	Landsat5 Sensor = "LANDSAT_5"
	Landsat7 Sensor = "LANDSAT_7"
	Landsat8 Sensor = "LANDSAT_8"
)

// Sensors lists every supported generation in launch order.
var Sensors = []Sensor{Landsat1, Landsat2, Landsat3, Landsat4, Landsat5, Landsat7, Landsat8}

var shortCodes = map[Sensor]string{
	Landsat1: "LM1",
	Landsat2: "LM2",
	Landsat3: "LM3",
	Landsat4: "LT4",
	Landsat5: "LT5",
	Landsat7: "LE7",
	Landsat8: "LC8",
}

// Grid is a Worldwide Reference System tiling.
type Grid string

const (
	WRS1 Grid = "WRS1"
	WRS2 Grid = "WRS2"
)

// MaxPath is the highest valid path on the grid.
func (g Grid) MaxPath() int {
	if g == WRS1 {
		return 251
	}
	return 233
}

// MaxRow is the highest valid row on the grid.
func (g Grid) MaxRow() int {
	return 248
}

func (s Sensor) String() string {
	return string(s)
}

// Number is the satellite number, e.g. 5 for LANDSAT_5.
func (s Sensor) Number() int {
	n, err := strconv.Atoi(strings.TrimPrefix(string(s), "LANDSAT_"))
	if err != nil {
		return 0
	}
	return n
}

// Short returns the three letter code used in scene ids, e.g. LT5.
func (s Sensor) Short() string {
	return shortCodes[s]
}

// Instrument names the primary imaging instrument.
func (s Sensor) Instrument() string {
	switch s {
	case Landsat1, Landsat2, Landsat3:
		return "MSS"
	case Landsat4, Landsat5:
		return "TM"
	case Landsat7:
		return "ETM"
	case Landsat8:
		return "OLI_TIRS"
	}
	return ""
}

func (s Sensor) Grid() Grid {
	switch s {
	case Landsat1, Landsat2, Landsat3:
		return WRS1
	}
	return WRS2
}

func (s Sensor) Valid() bool {
	_, ok := shortCodes[s]
	return ok
}

// Validate checks that the path/row lies on this sensor's grid.
func (s Sensor) Validate(pr PathRow) error {
	g := s.Grid()
	if pr.Path < 1 || pr.Path > g.MaxPath() || pr.Row < 1 || pr.Row > g.MaxRow() {
		return &InvalidTileError{Sensor: s, Tile: pr}
	}
	return nil
}

// ParseSensor accepts a spacecraft id (LANDSAT_5), a short code (LT5, LT05),
// a satellite number (5) or a compact name (landsat5).
func ParseSensor(value string) (Sensor, error) {
	v := strings.ToUpper(strings.TrimSpace(value))
	if v == "" {
		return "", &InvalidQueryError{Reason: "sensor is required"}
	}
	if s := Sensor(v); s.Valid() {
		return s, nil
	}
	for s, code := range shortCodes {
		if v == code {
			return s, nil
		}
	}
	// LT05 / LC08 style
	if len(v) == 4 && v[2] == '0' {
		if s, err := ParseSensor(v[:2] + v[3:]); err == nil {
			return s, nil
		}
	}
	num := strings.TrimPrefix(strings.TrimPrefix(v, "LANDSAT"), "_")
	if n, err := strconv.Atoi(num); err == nil {
		if s := Sensor(fmt.Sprintf("LANDSAT_%d", n)); s.Valid() {
			return s, nil
		}
	}
	return "", &InvalidQueryError{Reason: fmt.Sprintf("unsupported sensor %q", value)}
}
