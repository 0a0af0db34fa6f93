package retrieval

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgketchum/Landsat578/internal/landsat"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func l8Scene(t *testing.T) landsat.SceneRecord {
	t.Helper()
	d, err := landsat.ParseDate("2013-05-31")
	require.NoError(t, err)
	return landsat.SceneRecord{
		SceneID:         "LC80390272013151LGN02",
		ProductID:       "LC08_L1TP_039027_20130531_20170310_01_T1",
		Sensor:          landsat.Landsat8,
		Tile:            landsat.PathRow{Path: 39, Row: 27},
		AcquisitionDate: d,
		CloudCover:      landsat.Float(5.2),
		Locator:         "gs://gcp-public-data-landsat/LC08/01/039/027/LC08_L1TP_039027_20130531_20170310_01_T1",
	}
}

type scriptedFetcher struct {
	calls  []string
	status map[string]Status
	panics map[string]bool
}

func (f *scriptedFetcher) Fetch(ctx context.Context, scene landsat.SceneRecord, dest string) Outcome {
	f.calls = append(f.calls, scene.SceneID)
	if f.panics[scene.SceneID] {
		panic("boom")
	}
	switch f.status[scene.SceneID] {
	case StatusFailed:
		return Failed(scene, dest, "mirror returned 403")
	case StatusAlreadyPresent:
		return AlreadyPresent(scene, dest, []string{filepath.Join(dest, "x")})
	}
	return Delivered(scene, dest, []string{filepath.Join(dest, "x")})
}

type fetchRecorder struct {
	statuses []string
}

func (r *fetchRecorder) ObserveFetch(status string, elapsed time.Duration) {
	r.statuses = append(r.statuses, status)
}

func batch(t *testing.T, ids ...string) []landsat.SceneRecord {
	base := l8Scene(t)
	out := make([]landsat.SceneRecord, len(ids))
	for i, id := range ids {
		out[i] = base
		out[i].SceneID = id
	}
	return out
}

func TestRetrieveContinuesAfterFailures(t *testing.T) {
	fetcher := &scriptedFetcher{
		status: map[string]Status{"b": StatusFailed, "c": StatusAlreadyPresent},
		panics: map[string]bool{"d": true},
	}
	rec := &fetchRecorder{}
	var progress bytes.Buffer
	o := NewOrchestrator(fetcher, WithRecorder(rec), WithProgress(&progress))

	root := t.TempDir()
	outcomes := o.Retrieve(context.Background(), batch(t, "a", "b", "c", "d", "e"), root)
	require.Len(t, outcomes, 5)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, fetcher.calls)

	var got []Status
	for i, out := range outcomes {
		got = append(got, out.Status)
		assert.Equal(t, []string{"a", "b", "c", "d", "e"}[i], out.Scene.SceneID)
		assert.Equal(t, filepath.Join(root, "LANDSAT_8_39_27", out.Scene.SceneID), out.Destination)
	}
	assert.Equal(t, []Status{StatusDelivered, StatusFailed, StatusAlreadyPresent, StatusFailed, StatusDelivered}, got)
	assert.Equal(t, "mirror returned 403", outcomes[1].Reason)
	assert.NotEmpty(t, outcomes[3].Reason)
	assert.Equal(t, Summary{Delivered: 2, AlreadyPresent: 1, Failed: 2}, Summarize(outcomes))
	assert.Equal(t, []string{"delivered", "failed", "already_present", "failed", "delivered"}, rec.statuses)
	assert.NotZero(t, progress.Len())
}

func TestRetrieveCanceled(t *testing.T) {
	fetcher := &scriptedFetcher{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := NewOrchestrator(fetcher, WithLogger(zerolog.Nop())).Retrieve(ctx, batch(t, "a", "b"), t.TempDir())
	require.Len(t, outcomes, 2)
	for _, out := range outcomes {
		assert.Equal(t, StatusFailed, out.Status)
		assert.False(t, out.OK())
	}
	assert.Empty(t, fetcher.calls)
}

func TestRetrieveEmptyBatch(t *testing.T) {
	outcomes := NewOrchestrator(&scriptedFetcher{}).Retrieve(context.Background(), nil, t.TempDir())
	assert.Empty(t, outcomes)
	assert.Zero(t, Summarize(outcomes).Total())
}

func TestLayouts(t *testing.T) {
	scene := l8Scene(t)
	assert.Equal(t, filepath.Join("/data", "LANDSAT_8_39_27", "LC80390272013151LGN02"), SceneLayout{}.Dir("/data", scene))
	assert.Equal(t, filepath.Join("/pm", "landsat", "039", "027", "2013", "LC08_039027_20130531"), PyMetricLayout{}.Dir("/pm", scene))

	legacy := scene
	legacy.ProductID = ""
	legacy.Sensor = landsat.Landsat5
	assert.Equal(t, "LT05_039027_20130531", PyMetricID(legacy))
}

func TestSceneFiles(t *testing.T) {
	files := SceneFiles(l8Scene(t))
	require.Len(t, files, 13)
	assert.Equal(t, "LC08_L1TP_039027_20130531_20170310_01_T1_B1.TIF", files[0])
	assert.Equal(t, "LC08_L1TP_039027_20130531_20170310_01_T1_MTL.txt", files[12])

	l7 := BandSuffixes(landsat.Landsat7)
	assert.Contains(t, l7, "B6_VCID_1.TIF")
	assert.NotContains(t, l7, "B6.TIF")
	assert.Len(t, BandSuffixes(landsat.Landsat5), 8)

	l7[0] = "changed"
	assert.Equal(t, "B1.TIF", BandSuffixes(landsat.Landsat7)[0])
}
