package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dgketchum/Landsat578/internal/landsat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "job.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadTileJob(t *testing.T) {
	path := writeConfig(t, `
satellite: LT5
start: "2007-05-01"
end: "2007-05-30"
path: 37
row: 27
output_path: /tmp/out
return_list: true
`)
	job, err := Load(path)
	require.NoError(t, err)
	assert.True(t, job.ReturnList)
	assert.Equal(t, "/tmp/out", job.OutputPath)

	q, err := job.Query()
	require.NoError(t, err)
	assert.Equal(t, landsat.Landsat5, q.Sensor)
	assert.Equal(t, landsat.TileLocation{PathRow: landsat.PathRow{Path: 37, Row: 27}}, q.Location)
	assert.Equal(t, 100.0, q.Ceiling())
	assert.Equal(t, "2007-05-30", q.End.Format(landsat.DateLayout))
}

func TestLoadPointJob(t *testing.T) {
	path := writeConfig(t, `
satellite: "7"
start: "2010-01-01"
end: "2010-12-31"
latitude: 45.6
longitude: -107.5
max_cloud_percent: 20
count: 4
`)
	job, err := Load(path)
	require.NoError(t, err)
	q, err := job.Query()
	require.NoError(t, err)
	assert.Equal(t, landsat.Landsat7, q.Sensor)
	assert.Equal(t, landsat.PointLocation{Point: landsat.Point{Lat: 45.6, Lon: -107.5}}, q.Location)
	assert.Equal(t, 20.0, q.Ceiling())
	assert.Equal(t, 4, q.Count)
}

func TestJobQueryInvalid(t *testing.T) {
	tests := map[string]string{
		"both locations": "satellite: LC8\nstart: \"2013-01-01\"\nend: \"2013-02-01\"\npath: 39\nrow: 27\nlatitude: 45\nlongitude: -100\n",
		"no location":    "satellite: LC8\nstart: \"2013-01-01\"\nend: \"2013-02-01\"\n",
		"reversed dates": "satellite: LC8\nstart: \"2013-03-01\"\nend: \"2013-02-01\"\npath: 39\nrow: 27\n",
		"bad date":       "satellite: LC8\nstart: \"03/01/2013\"\nend: \"2013-02-01\"\npath: 39\nrow: 27\n",
		"bad satellite":  "satellite: LX9\nstart: \"2013-01-01\"\nend: \"2013-02-01\"\npath: 39\nrow: 27\n",
		"boundary mix":   "satellite: LC8\nstart: \"2013-01-01\"\nend: \"2013-02-01\"\nboundary: a.shp\npath: 39\nrow: 27\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			job, err := Load(writeConfig(t, body))
			require.NoError(t, err)
			_, err = job.Query()
			assert.ErrorIs(t, err, landsat.ErrInvalidQuery)
		})
	}
}

func TestLoadMalformed(t *testing.T) {
	_, err := Load(writeConfig(t, "satellite: [unterminated"))
	assert.Error(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestWriteTemplateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteTemplate(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, TemplateName), path)

	job, err := Load(path)
	require.NoError(t, err)
	q, err := job.Query()
	require.NoError(t, err)
	assert.Equal(t, landsat.Landsat8, q.Sensor)
	assert.Equal(t, 20.0, q.Ceiling())
}
