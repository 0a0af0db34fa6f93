package retrieval

import "github.com/dgketchum/Landsat578/internal/landsat"

var mssBands = []string{"B1.TIF", "B2.TIF", "B3.TIF", "B4.TIF", "B5.TIF", "B6.TIF", "B7.TIF", "MTL.txt"}

// Collection products of Landsat 7 only carry the two gain variants of the
// thermal band.
var bandSuffixes = map[landsat.Sensor][]string{
	landsat.Landsat1: mssBands,
	landsat.Landsat2: mssBands,
	landsat.Landsat3: mssBands,
	landsat.Landsat4: mssBands,
	landsat.Landsat5: mssBands,
	landsat.Landsat7: {"B1.TIF", "B2.TIF", "B3.TIF", "B4.TIF", "B5.TIF",
		"B6_VCID_1.TIF", "B6_VCID_2.TIF", "B7.TIF", "B8.TIF", "MTL.txt"},
	landsat.Landsat8: {"B1.TIF", "B2.TIF", "B3.TIF", "B4.TIF", "B5.TIF", "B6.TIF",
		"B7.TIF", "B8.TIF", "B9.TIF", "B10.TIF", "B11.TIF", "BQA.TIF", "MTL.txt"},
}

// BandSuffixes lists the file suffixes published for a sensor's products.
func BandSuffixes(s landsat.Sensor) []string {
	return append([]string(nil), bandSuffixes[s]...)
}

// SceneFiles returns the file names making up a scene, e.g.
// LC08_L1TP_039027_20130531_20170310_01_T1_B1.TIF.
func SceneFiles(scene landsat.SceneRecord) []string {
	name := scene.ProductID
	if name == "" {
		name = scene.SceneID
	}
	suffixes := bandSuffixes[scene.Sensor]
	files := make([]string, len(suffixes))
	for i, suffix := range suffixes {
		files[i] = name + "_" + suffix
	}
	return files
}
