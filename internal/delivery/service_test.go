package delivery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgketchum/Landsat578/internal/landsat"
	"github.com/dgketchum/Landsat578/internal/observability"
	"github.com/dgketchum/Landsat578/internal/properties"
	"github.com/dgketchum/Landsat578/internal/report"
	"github.com/dgketchum/Landsat578/internal/retrieval"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mirror serves any requested file and records the paths it was asked for.
type mirror struct {
	*httptest.Server
	mu     sync.Mutex
	paths  []string
	broken string
}

func newMirror(t *testing.T) *mirror {
	t.Helper()
	m := &mirror{}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.paths = append(m.paths, r.URL.Path)
		broken := m.broken
		m.mu.Unlock()
		if broken != "" && strings.Contains(r.URL.Path, broken) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("band data"))
	}))
	t.Cleanup(m.Close)
	return m
}

func (m *mirror) requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.paths)
}

func testSettings(t *testing.T, mirrorURL string) *properties.Settings {
	t.Helper()
	root := t.TempDir()
	grid, err := os.ReadFile(filepath.Join("..", "wrs", "testdata", "wrs2.geojson"))
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "wrs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "wrs", "WRS2.geojson"), grid, 0o644))

	index, err := filepath.Abs(filepath.Join("..", "metadata", "testdata", "index.csv"))
	require.NoError(t, err)
	return &properties.Settings{
		RootPath:  root,
		IndexURL:  index,
		MirrorURL: mirrorURL,
		Workers:   4,
		RateLimit: 1000,
		Retries:   0,
		Timeout:   10 * time.Second,
	}
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := landsat.ParseDate(s)
	require.NoError(t, err)
	return d
}

// summerQuery covers path 39 row 27 during the 2013 growing season.
func summerQuery(t *testing.T) landsat.Query {
	return landsat.Query{
		Sensor:       landsat.Landsat8,
		Start:        day(t, "2013-05-01"),
		End:          day(t, "2013-09-30"),
		Location:     landsat.PointLocation{Point: landsat.Point{Lat: 47.5, Lon: -111.0}},
		CloudCeiling: landsat.Float(20),
	}
}

func TestCandidates(t *testing.T) {
	svc, err := New(testSettings(t, "http://unused.invalid"))
	require.NoError(t, err)
	ctx := context.Background()

	tiles, err := svc.Resolve(ctx, summerQuery(t))
	require.NoError(t, err)
	assert.Equal(t, []landsat.PathRow{{Path: 39, Row: 27}}, tiles)

	low, err := svc.Candidates(ctx, summerQuery(t), false)
	require.NoError(t, err)
	ids := make([]string, len(low))
	for i, r := range low {
		ids[i] = r.SceneID
	}
	assert.Equal(t, []string{
		"LC80390272013151LGN02",
		"LC80390272013183LGN01",
		"LC80390272013215LGN01",
	}, ids)

	all, err := svc.Candidates(ctx, summerQuery(t), true)
	require.NoError(t, err)
	assert.Len(t, all, 6)

	q := summerQuery(t)
	q.Count = 2
	thinned, err := svc.Candidates(ctx, q, true)
	require.NoError(t, err)
	assert.Len(t, thinned, 2)

	// buckets span the whole season: clearest of the first three, then of the last three
	thinnedLow, err := svc.Candidates(ctx, q, false)
	require.NoError(t, err)
	require.Len(t, thinnedLow, 2)
	assert.Equal(t, "LC80390272013183LGN01", thinnedLow[0].SceneID)
	assert.Equal(t, "LC80390272013215LGN01", thinnedLow[1].SceneID)
}

func TestDownloadDeliversThenSkips(t *testing.T) {
	m := newMirror(t)
	metrics, err := observability.NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)
	svc, err := New(testSettings(t, m.URL), WithHTTPClient(m.Client()), WithMetrics(metrics))
	require.NoError(t, err)

	dest := t.TempDir()
	reportPath := filepath.Join(dest, "reports", "downloads.csv")
	ctx := context.Background()

	batch, err := svc.Download(ctx, summerQuery(t), DownloadOptions{Root: dest, PyMetric: true, Report: reportPath})
	require.NoError(t, err)
	require.Len(t, batch.Outcomes, 3)
	assert.NotEmpty(t, batch.RunID)
	assert.Equal(t, retrieval.Summary{Delivered: 3}, batch.Summary)
	bands := len(retrieval.BandSuffixes(landsat.Landsat8))
	assert.Equal(t, 3*bands, m.requests())
	assert.Contains(t, m.paths, "/gcp-public-data-landsat/LC08/01/039/027/LC08_L1TP_039027_20130531_20170310_01_T1/LC08_L1TP_039027_20130531_20170310_01_T1_B4.TIF")

	sceneDir := filepath.Join(dest, "landsat", "039", "027", "2013", "LC08_039027_20130531")
	assert.Equal(t, sceneDir, batch.Outcomes[0].Destination)
	assert.FileExists(t, filepath.Join(sceneDir, "LC08_L1TP_039027_20130531_20170310_01_T1_MTL.txt"))

	again, err := svc.Download(ctx, summerQuery(t), DownloadOptions{Root: dest, PyMetric: true, Report: reportPath})
	require.NoError(t, err)
	assert.Equal(t, retrieval.Summary{AlreadyPresent: 3}, again.Summary)
	assert.Equal(t, 3*bands, m.requests())
	assert.NotEqual(t, batch.RunID, again.RunID)

	rows, err := report.ReadOutcomes(reportPath)
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, batch.RunID, rows[0].RunID)
	assert.Equal(t, "already_present", rows[5].Status)

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.Fetches.WithLabelValues("delivered")))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.Fetches.WithLabelValues("already_present")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Selections.WithLabelValues("LANDSAT_8")))
}

func TestDownloadKeepsGoingAfterFailure(t *testing.T) {
	m := newMirror(t)
	m.broken = "20130702"
	svc, err := New(testSettings(t, m.URL), WithHTTPClient(m.Client()))
	require.NoError(t, err)

	batch, err := svc.Download(context.Background(), summerQuery(t), DownloadOptions{Root: t.TempDir()})
	require.NoError(t, err)
	require.Len(t, batch.Outcomes, 3)
	assert.Equal(t, retrieval.Summary{Delivered: 2, Failed: 1}, batch.Summary)
	assert.Equal(t, retrieval.StatusFailed, batch.Outcomes[1].Status)
	assert.Equal(t, "LC80390272013183LGN01", batch.Outcomes[1].Scene.SceneID)
	assert.Contains(t, batch.Outcomes[1].Reason, "404")
}

func TestDownloadNothingSelected(t *testing.T) {
	m := newMirror(t)
	svc, err := New(testSettings(t, m.URL), WithHTTPClient(m.Client()))
	require.NoError(t, err)

	q := summerQuery(t)
	q.CloudCeiling = landsat.Float(0.5)
	batch, err := svc.Download(context.Background(), q, DownloadOptions{Root: t.TempDir()})
	require.NoError(t, err)
	assert.Empty(t, batch.Outcomes)
	assert.Zero(t, m.requests())
}

func TestDownloadInvalidQuery(t *testing.T) {
	svc, err := New(testSettings(t, "http://unused.invalid"))
	require.NoError(t, err)

	q := summerQuery(t)
	q.End = q.Start.AddDate(0, 0, -1)
	_, err = svc.Download(context.Background(), q, DownloadOptions{Root: t.TempDir()})
	assert.ErrorIs(t, err, landsat.ErrInvalidQuery)
}

func TestRefreshAndStatus(t *testing.T) {
	metrics, err := observability.NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)
	svc, err := New(testSettings(t, "http://unused.invalid"), WithMetrics(metrics))
	require.NoError(t, err)

	for _, st := range svc.Status() {
		assert.False(t, st.Present, st.Sensor)
	}
	stats, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, stats.Written[landsat.Landsat8])
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Refreshes.WithLabelValues("ok")))

	status := svc.Status()
	require.Len(t, status, len(landsat.Sensors))
	for _, st := range status {
		if st.Sensor == landsat.Landsat8 {
			assert.True(t, st.Present)
			require.NotNil(t, st.Manifest)
			assert.Equal(t, 6, st.Manifest.Rows)
		}
	}
}

func TestDrawFootprints(t *testing.T) {
	svc, err := New(testSettings(t, "http://unused.invalid"))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "tiles.png")
	q := summerQuery(t)
	q.Location = landsat.PointSetLocation{Points: []landsat.Point{{Lat: 47.5, Lon: -111.0}, {Lat: 47.4, Lon: -108.5}}}
	tiles, err := svc.DrawFootprints(context.Background(), q, path)
	require.NoError(t, err)
	assert.Len(t, tiles, 3)
	assert.FileExists(t, path)
}

func TestS3FetcherChosenFromSettings(t *testing.T) {
	settings := testSettings(t, "http://unused.invalid")
	settings.S3Endpoint = "localhost:9000"
	settings.S3Bucket = "landsat"
	svc, err := New(settings)
	require.NoError(t, err)
	assert.IsType(t, &retrieval.S3Fetcher{}, svc.Fetcher)

	_, err = svc.Download(context.Background(), summerQuery(t), DownloadOptions{Root: t.TempDir(), Bundles: true})
	assert.ErrorIs(t, err, landsat.ErrInvalidQuery, "bundles need the HTTP mirror")

	settings.S3Endpoint = ""
	svc, err = New(settings)
	require.NoError(t, err)
	assert.IsType(t, &retrieval.MirrorFetcher{}, svc.Fetcher)
}
