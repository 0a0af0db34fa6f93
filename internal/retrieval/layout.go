package retrieval

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dgketchum/Landsat578/internal/landsat"
)

// Layout places a scene's files under a download root.
type Layout interface {
	Dir(root string, scene landsat.SceneRecord) string
}

// SceneLayout stores scenes as <root>/<SPACECRAFT>_<path>_<row>/<scene id>.
type SceneLayout struct{}

func (SceneLayout) Dir(root string, scene landsat.SceneRecord) string {
	tile := fmt.Sprintf("%s_%d_%d", scene.Sensor, scene.Tile.Path, scene.Tile.Row)
	return filepath.Join(root, tile, scene.SceneID)
}

// PyMetricLayout stores scenes as <root>/landsat/<ppp>/<rrr>/<yyyy>/<id>
// where id is the short LC08_039027_20130531 form.
type PyMetricLayout struct{}

func (PyMetricLayout) Dir(root string, scene landsat.SceneRecord) string {
	return filepath.Join(root, "landsat",
		fmt.Sprintf("%03d", scene.Tile.Path),
		fmt.Sprintf("%03d", scene.Tile.Row),
		scene.AcquisitionDate.Format("2006"),
		PyMetricID(scene))
}

// PyMetricID returns the short scene name, e.g. LC08_039027_20130531.
func PyMetricID(scene landsat.SceneRecord) string {
	prefix := scene.ProductID
	if i := strings.IndexByte(prefix, '_'); i > 0 {
		prefix = prefix[:i]
	} else {
		prefix = fmt.Sprintf("L%c%02d", instrumentLetter(scene.Sensor), scene.Sensor.Number())
	}
	return fmt.Sprintf("%s_%03d%03d_%s", prefix, scene.Tile.Path, scene.Tile.Row,
		scene.AcquisitionDate.Format("20060102"))
}

func instrumentLetter(s landsat.Sensor) byte {
	short := s.Short()
	if len(short) < 2 {
		return 'X'
	}
	return short[1]
}
