package wrs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dgketchum/Landsat578/internal/landsat"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Index resolves query locations to path/row tiles. Grid boundaries are read
// from dir, fetched on first use when missing, and then kept in memory.
type Index struct {
	dir     string
	fetcher BoundaryFetcher
	logger  zerolog.Logger
	read    func(path string) ([]feature, error)

	mu    sync.RWMutex
	grids map[landsat.Grid]*grid
	group singleflight.Group
}

type Option func(*Index)

func WithFetcher(f BoundaryFetcher) Option {
	return func(ix *Index) { ix.fetcher = f }
}

func WithLogger(l zerolog.Logger) Option {
	return func(ix *Index) { ix.logger = l }
}

func New(dir string, opts ...Option) *Index {
	ix := &Index{
		dir:    dir,
		logger: zerolog.Nop(),
		read:   readVectorFile,
		grids:  make(map[landsat.Grid]*grid),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Resolve returns the sorted set of tiles covering loc on the sensor's grid.
func (ix *Index) Resolve(ctx context.Context, loc landsat.Location, sensor landsat.Sensor) ([]landsat.PathRow, error) {
	switch l := loc.(type) {
	case landsat.TileLocation:
		return ix.resolveTile(l, sensor)
	case landsat.PointLocation:
		return ix.resolvePoints(ctx, []landsat.Point{l.Point}, sensor, l)
	case landsat.PointSetLocation:
		return ix.resolvePoints(ctx, l.Points, sensor, l)
	case landsat.BoundaryLocation:
		return ix.resolveBoundary(ctx, l, sensor)
	case nil:
		return nil, &landsat.InvalidQueryError{Reason: "a tile or a location is required"}
	}
	return nil, &landsat.InvalidQueryError{Reason: fmt.Sprintf("unsupported location %T", loc)}
}

func (ix *Index) resolveTile(l landsat.TileLocation, sensor landsat.Sensor) ([]landsat.PathRow, error) {
	if err := sensor.Validate(l.PathRow); err != nil {
		return nil, err
	}
	return []landsat.PathRow{l.PathRow}, nil
}

func (ix *Index) resolvePoints(ctx context.Context, points []landsat.Point, sensor landsat.Sensor, loc landsat.Location) ([]landsat.PathRow, error) {
	g, err := ix.grid(ctx, sensor.Grid())
	if err != nil {
		return nil, err
	}
	var tiles []landsat.PathRow
	for _, p := range points {
		hits := g.containing(orb.Point{p.Lon, p.Lat})
		if len(hits) == 0 {
			ix.logger.Warn().Str("grid", string(g.name)).Stringer("point", p).Msg("point outside grid coverage")
		}
		tiles = append(tiles, hits...)
	}
	if len(tiles) == 0 {
		return nil, &landsat.NoCoverageError{Grid: g.name, Location: loc.String()}
	}
	return sortTiles(tiles), nil
}

// resolveBoundary uses PATH/ROW attributes when a feature carries them and
// falls back to the feature geometry otherwise.
func (ix *Index) resolveBoundary(ctx context.Context, l landsat.BoundaryLocation, sensor landsat.Sensor) ([]landsat.PathRow, error) {
	features, err := ix.read(l.Source)
	if err != nil {
		return nil, &landsat.InvalidQueryError{Reason: fmt.Sprintf("boundary source: %v", err)}
	}

	var tiles []landsat.PathRow
	var g *grid
	for _, f := range features {
		if pr, ok := pathRowOf(f.attrs); ok {
			if err := sensor.Validate(pr); err != nil {
				return nil, err
			}
			tiles = append(tiles, pr)
			continue
		}
		if f.geometry == nil {
			continue
		}
		if g == nil {
			if g, err = ix.grid(ctx, sensor.Grid()); err != nil {
				return nil, err
			}
		}
		tiles = append(tiles, g.intersecting(f.geometry)...)
	}
	if len(tiles) == 0 {
		return nil, &landsat.NoCoverageError{Grid: sensor.Grid(), Location: l.String()}
	}
	return sortTiles(tiles), nil
}

// Footprint returns the boundary polygon of a tile, loading the grid if needed.
func (ix *Index) Footprint(ctx context.Context, sensor landsat.Sensor, pr landsat.PathRow) (orb.MultiPolygon, error) {
	g, err := ix.grid(ctx, sensor.Grid())
	if err != nil {
		return nil, err
	}
	shape, ok := g.footprint(pr)
	if !ok {
		return nil, &landsat.InvalidTileError{Sensor: sensor, Tile: pr}
	}
	return shape, nil
}

// LoadFile replaces the in-memory boundaries of a grid with the given file.
func (ix *Index) LoadFile(name landsat.Grid, path string) error {
	g, err := ix.load(name, path)
	if err != nil {
		return err
	}
	ix.mu.Lock()
	ix.grids[name] = g
	ix.mu.Unlock()
	return nil
}

func (ix *Index) grid(ctx context.Context, name landsat.Grid) (*grid, error) {
	ix.mu.RLock()
	g, ok := ix.grids[name]
	ix.mu.RUnlock()
	if ok {
		return g, nil
	}

	v, err, _ := ix.group.Do(string(name), func() (interface{}, error) {
		ix.mu.RLock()
		g, ok := ix.grids[name]
		ix.mu.RUnlock()
		if ok {
			return g, nil
		}

		path, found := ix.localFile(name)
		if !found {
			if ix.fetcher == nil {
				return nil, &landsat.MetadataUnavailableError{Err: fmt.Errorf("%s boundaries not found in %s", name, ix.dir)}
			}
			var err error
			if path, err = ix.fetcher.FetchBoundaries(ctx, name, ix.dir); err != nil {
				return nil, &landsat.MetadataUnavailableError{Err: err}
			}
		}
		g, err := ix.load(name, path)
		if err != nil {
			return nil, &landsat.MetadataUnavailableError{Err: err}
		}
		ix.mu.Lock()
		ix.grids[name] = g
		ix.mu.Unlock()
		ix.logger.Debug().Str("grid", string(name)).Int("tiles", len(g.tiles)).Str("path", path).Msg("loaded tile boundaries")
		return g, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*grid), nil
}

func (ix *Index) load(name landsat.Grid, path string) (*grid, error) {
	features, err := ix.read(path)
	if err != nil {
		return nil, err
	}
	return newGrid(name, features)
}

// localFile looks for <dir>/<grid>.geojson, then any vector file in <dir>/<grid>/.
func (ix *Index) localFile(name landsat.Grid) (string, bool) {
	direct := filepath.Join(ix.dir, string(name)+".geojson")
	if _, err := os.Stat(direct); err == nil {
		return direct, true
	}
	return findVectorFile(filepath.Join(ix.dir, string(name)))
}
