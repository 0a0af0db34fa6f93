package landsat

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestParseSensor(t *testing.T) {
	tests := []struct {
		in   string
		want Sensor
	}{
		{"LANDSAT_5", Landsat5},
		{"LT5", Landsat5},
		{"lt05", Landsat5},
		{"5", Landsat5},
		{"landsat5", Landsat5},
		{"LE7", Landsat7},
		{"LC8", Landsat8},
		{"LC08", Landsat8},
		{"LM1", Landsat1},
		{"3", Landsat3},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSensor(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "6", "LANDSAT_6", "S2A", "LX9"} {
		_, err := ParseSensor(bad)
		assert.ErrorIs(t, err, ErrInvalidQuery, bad)
	}
}

func TestSensorGrid(t *testing.T) {
	assert.Equal(t, WRS1, Landsat2.Grid())
	assert.Equal(t, WRS2, Landsat4.Grid())
	assert.Equal(t, WRS2, Landsat8.Grid())
	assert.Equal(t, "LT5", Landsat5.Short())
	assert.Equal(t, 7, Landsat7.Number())
	assert.Equal(t, "TM", Landsat5.Instrument())
}

func TestSensorValidate(t *testing.T) {
	require.NoError(t, Landsat5.Validate(PathRow{37, 27}))
	require.NoError(t, Landsat8.Validate(PathRow{233, 248}))
	require.NoError(t, Landsat1.Validate(PathRow{251, 1}))

	for _, pr := range []PathRow{{0, 27}, {234, 27}, {37, 0}, {37, 249}} {
		err := Landsat5.Validate(pr)
		var tileErr *InvalidTileError
		require.True(t, errors.As(err, &tileErr), pr.String())
		assert.Equal(t, pr, tileErr.Tile)
		assert.ErrorIs(t, err, ErrInvalidTile)
	}
	// valid on WRS-1 only
	assert.Error(t, Landsat5.Validate(PathRow{240, 27}))
	assert.NoError(t, Landsat3.Validate(PathRow{240, 27}))
}

func TestValidProductID(t *testing.T) {
	assert.True(t, ValidProductID("LC08_L1TP_039027_20130531_20170310_01_T1"))
	assert.True(t, ValidProductID("LT05_L1TP_037027_20070501_20160910_01_T1"))
	assert.True(t, ValidProductID("LE07_L1GT_036028_20100101_20161215_01_T2"))
	assert.False(t, ValidProductID(""))
	assert.False(t, ValidProductID("LC08_L1TP_039027"))
	assert.False(t, ValidProductID("LC80390272013151LGN02"))
}

func TestQueryValidate(t *testing.T) {
	start := date(t, "2007-05-01")
	end := date(t, "2007-05-30")
	tile := TileLocation{PathRow{37, 27}}

	valid := Query{Sensor: Landsat5, Start: start, End: end, Location: tile}
	require.NoError(t, valid.Validate())
	assert.Equal(t, 100.0, valid.Ceiling())

	sameDay := valid
	sameDay.End = start
	require.NoError(t, sameDay.Validate())

	tests := []struct {
		name   string
		mutate func(q *Query)
	}{
		{"start after end", func(q *Query) { q.Start, q.End = end, start }},
		{"missing location", func(q *Query) { q.Location = nil }},
		{"ceiling too high", func(q *Query) { q.CloudCeiling = Float(101) }},
		{"ceiling negative", func(q *Query) { q.CloudCeiling = Float(-1) }},
		{"ceiling NaN", func(q *Query) { q.CloudCeiling = Float(math.NaN()) }},
		{"ceiling infinite", func(q *Query) { q.CloudCeiling = Float(math.Inf(1)) }},
		{"latitude NaN", func(q *Query) { q.Location = PointLocation{Point{Lat: math.NaN(), Lon: 0}} }},
		{"longitude NaN in point set", func(q *Query) {
			q.Location = PointSetLocation{Points: []Point{{Lat: 1, Lon: 1}, {Lat: 0, Lon: math.NaN()}}}
		}},
		{"latitude", func(q *Query) { q.Location = PointLocation{Point{Lat: 91, Lon: 0}} }},
		{"longitude", func(q *Query) { q.Location = PointLocation{Point{Lat: 0, Lon: -181}} }},
		{"empty point set", func(q *Query) { q.Location = PointSetLocation{} }},
		{"empty boundary", func(q *Query) { q.Location = BoundaryLocation{} }},
		{"unknown sensor", func(q *Query) { q.Sensor = "LANDSAT_6" }},
		{"negative count", func(q *Query) { q.Count = -2 }},
		{"zero dates", func(q *Query) { q.Start = time.Time{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := valid
			tt.mutate(&q)
			err := q.Validate()
			var qe *InvalidQueryError
			require.True(t, errors.As(err, &qe), "got %v", err)
		})
	}
}

func TestQueryWindow(t *testing.T) {
	q := Query{Start: date(t, "2007-05-01"), End: date(t, "2007-05-30")}
	from, to := q.Window()
	assert.Equal(t, date(t, "2007-05-01"), from)
	assert.Equal(t, date(t, "2007-05-31"), to)
}

func TestLocationFrom(t *testing.T) {
	p, r := 37, 27
	lat, lon := 47.4545, -107.9514

	loc, err := LocationFrom(&p, &r, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, TileLocation{PathRow{37, 27}}, loc)

	loc, err = LocationFrom(nil, nil, &lat, &lon)
	require.NoError(t, err)
	assert.Equal(t, PointLocation{Point{Lat: lat, Lon: lon}}, loc)

	_, err = LocationFrom(&p, &r, &lat, &lon)
	assert.ErrorIs(t, err, ErrInvalidQuery)
	_, err = LocationFrom(nil, nil, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidQuery)
	_, err = LocationFrom(&p, nil, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidQuery)
	_, err = LocationFrom(nil, nil, &lat, nil)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestSceneRecordCloud(t *testing.T) {
	r := SceneRecord{CloudCover: Float(19.9)}
	assert.True(t, r.CloudBelow(20))
	assert.False(t, r.CloudBelow(19.9))
	assert.False(t, SceneRecord{}.CloudBelow(100))
	assert.False(t, SceneRecord{}.HasCloudCover())
}

func TestErrorsMatchSentinels(t *testing.T) {
	cause := errors.New("boom")
	err := &MetadataUnavailableError{Sensor: Landsat8, Err: cause}
	assert.ErrorIs(t, err, ErrMetadataUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, &NoCoverageError{Grid: WRS2, Location: "x"}, ErrNoCoverage)
	assert.NotErrorIs(t, &NoCoverageError{}, ErrInvalidTile)
}
