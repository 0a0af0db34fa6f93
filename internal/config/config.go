package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgketchum/Landsat578/internal/landsat"
	"gopkg.in/yaml.v3"
)

// TemplateName is the file written by WriteTemplate when given a directory.
const TemplateName = "downloader_config.yml"

// Job is a saved download request.
type Job struct {
	Satellite       string   `yaml:"satellite"`
	Start           string   `yaml:"start"`
	End             string   `yaml:"end"`
	Path            *int     `yaml:"path,omitempty"`
	Row             *int     `yaml:"row,omitempty"`
	Latitude        *float64 `yaml:"latitude,omitempty"`
	Longitude       *float64 `yaml:"longitude,omitempty"`
	Boundary        string   `yaml:"boundary,omitempty"`
	MaxCloudPercent *float64 `yaml:"max_cloud_percent,omitempty"`
	Count           int      `yaml:"count,omitempty"`
	OutputPath      string   `yaml:"output_path,omitempty"`
	PymetricRoot    string   `yaml:"pymetric_root,omitempty"`
	ReturnList      bool     `yaml:"return_list,omitempty"`
	Zipped          bool     `yaml:"zipped,omitempty"`
}

func Load(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var job Job
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &job, nil
}

// Query converts the job into a validated query.
func (j *Job) Query() (landsat.Query, error) {
	sensor, err := landsat.ParseSensor(j.Satellite)
	if err != nil {
		return landsat.Query{}, err
	}
	start, err := landsat.ParseDate(j.Start)
	if err != nil {
		return landsat.Query{}, err
	}
	end, err := landsat.ParseDate(j.End)
	if err != nil {
		return landsat.Query{}, err
	}

	var loc landsat.Location
	if j.Boundary != "" {
		if j.Path != nil || j.Row != nil || j.Latitude != nil || j.Longitude != nil {
			return landsat.Query{}, &landsat.InvalidQueryError{Reason: "boundary cannot be combined with path/row or latitude/longitude"}
		}
		loc = landsat.BoundaryLocation{Source: j.Boundary}
	} else if loc, err = landsat.LocationFrom(j.Path, j.Row, j.Latitude, j.Longitude); err != nil {
		return landsat.Query{}, err
	}

	q := landsat.Query{
		Sensor:       sensor,
		Start:        start,
		End:          end,
		Location:     loc,
		CloudCeiling: j.MaxCloudPercent,
		Count:        j.Count,
	}
	if err := q.Validate(); err != nil {
		return landsat.Query{}, err
	}
	return q, nil
}

const template = `# Landsat download configuration
# satellite: LT5, LE7, LC8 or a satellite number (1-5, 7, 8)
satellite: LC8
# inclusive acquisition dates, YYYY-MM-DD
start: "2013-05-15"
end: "2013-10-15"
# give either path/row or latitude/longitude
path: 39
row: 27
# latitude: 47.4545
# longitude: -107.9514
# boundary: /path/to/tiles.shp
max_cloud_percent: 20
# count: 3
output_path: /path/to/scenes
# pymetric_root: /path/to/pymetric
return_list: false
zipped: false
`

// WriteTemplate writes a commented example job. When path is a directory the
// file is named TemplateName inside it. It returns the written file.
func WriteTemplate(path string) (string, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, TemplateName)
	}
	if err := os.WriteFile(path, []byte(template), 0o644); err != nil {
		return "", fmt.Errorf("write config template: %w", err)
	}
	return path, nil
}
