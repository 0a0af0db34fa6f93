package metadata

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgketchum/Landsat578/internal/cache"
	"github.com/dgketchum/Landsat578/internal/landsat"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Manifest describes the last successful refresh of a sensor snapshot.
type Manifest struct {
	Sensor      landsat.Sensor `json:"sensor"`
	Rows        int            `json:"rows"`
	Skipped     int            `json:"skipped"`
	Source      string         `json:"source"`
	RefreshedAt time.Time      `json:"refreshed_at"`
}

type Status struct {
	Sensor   landsat.Sensor
	Path     string
	Present  bool
	Loaded   bool
	Manifest *Manifest
}

// Store is a local mirror of the archive index, one parquet snapshot per
// sensor. Snapshots are only ever replaced whole; loaded snapshots are
// immutable and shared between readers.
type Store struct {
	dir       string
	indexURL  string
	client    *http.Client
	logger    zerolog.Logger
	progress  bool
	manifests *cache.FileCache[Manifest]

	refreshMu sync.Mutex

	mu        sync.RWMutex
	snapshots map[landsat.Sensor]*snapshot
	gens      map[landsat.Sensor]int
	loads     singleflight.Group
}

type Option func(*Store)

func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) { s.client = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithProgress shows a progress bar while downloading the index.
func WithProgress(enabled bool) Option {
	return func(s *Store) { s.progress = enabled }
}

// New creates a store rooted at dir. indexURL may be an http(s) URL or a
// local file path, gzipped or not.
func New(dir, indexURL string, opts ...Option) *Store {
	s := &Store{
		dir:       dir,
		indexURL:  indexURL,
		client:    http.DefaultClient,
		logger:    zerolog.Nop(),
		manifests: cache.NewFileCache[Manifest](filepath.Join(dir, "manifests")),
		snapshots: make(map[landsat.Sensor]*snapshot),
		gens:      make(map[landsat.Sensor]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) snapshotPath(sensor landsat.Sensor) string {
	return filepath.Join(s.dir, "snapshots", string(sensor)+".parquet")
}

// Query returns the sensor's records for tile acquired in [start, end),
// ordered by acquisition date. A missing snapshot is refreshed first; an
// existing one is used as is, however old.
func (s *Store) Query(ctx context.Context, sensor landsat.Sensor, tile landsat.PathRow, start, end time.Time) ([]landsat.SceneRecord, error) {
	if !sensor.Valid() {
		return nil, &landsat.InvalidQueryError{Reason: fmt.Sprintf("unsupported sensor %q", sensor)}
	}
	snap, err := s.snapshot(ctx, sensor)
	if err != nil {
		return nil, err
	}
	return snap.window(tile, start, end), nil
}

func (s *Store) snapshot(ctx context.Context, sensor landsat.Sensor) (*snapshot, error) {
	s.mu.RLock()
	snap, ok := s.snapshots[sensor]
	s.mu.RUnlock()
	if ok {
		return snap, nil
	}

	v, err, _ := s.loads.Do(string(sensor), func() (interface{}, error) {
		path := s.snapshotPath(sensor)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			s.logger.Info().Str("sensor", string(sensor)).Msg("no local snapshot, refreshing")
			if err := s.Refresh(ctx, sensor); err != nil {
				return nil, err
			}
		}

		s.mu.RLock()
		gen := s.gens[sensor]
		s.mu.RUnlock()

		rows, err := readSnapshot(path)
		if err != nil {
			return nil, &landsat.MetadataUnavailableError{Sensor: sensor, Err: err}
		}
		snap := buildSnapshot(sensor, rows)

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gens[sensor] == gen {
			s.snapshots[sensor] = snap
		}
		s.logger.Debug().Str("sensor", string(sensor)).Int("rows", snap.rows).Int("dropped", snap.dropped).
			Int("tiles", len(snap.tiles)).Msg("loaded snapshot")
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*snapshot), nil
}

// swap invalidates the in-memory snapshot after its file was replaced.
func (s *Store) swap(sensor landsat.Sensor) {
	s.mu.Lock()
	delete(s.snapshots, sensor)
	s.gens[sensor]++
	s.mu.Unlock()
}

func (s *Store) Status(sensor landsat.Sensor) Status {
	st := Status{Sensor: sensor, Path: s.snapshotPath(sensor)}
	if _, err := os.Stat(st.Path); err == nil {
		st.Present = true
	}
	s.mu.RLock()
	_, st.Loaded = s.snapshots[sensor]
	s.mu.RUnlock()
	if m, ok := s.manifests.Get(string(sensor)); ok {
		st.Manifest = &m
	}
	return st
}
