package selection

import (
	"context"
	"sort"
	"time"

	"github.com/dgketchum/Landsat578/internal/landsat"
	"github.com/rs/zerolog"
)

// TileResolver maps a location to the tiles of a sensor's grid.
type TileResolver interface {
	Resolve(ctx context.Context, loc landsat.Location, sensor landsat.Sensor) ([]landsat.PathRow, error)
}

// SceneSource returns a tile's archive records acquired in [start, end).
type SceneSource interface {
	Query(ctx context.Context, sensor landsat.Sensor, tile landsat.PathRow, start, end time.Time) ([]landsat.SceneRecord, error)
}

// Recorder receives a summary of every successful selection.
type Recorder interface {
	ObserveSelection(sensor landsat.Sensor, tiles, all, lowCloud int)
}

// CandidateResult holds the candidates of one tile. LowCloud is a
// subsequence of All.
type CandidateResult struct {
	All      []landsat.SceneRecord `json:"all"`
	LowCloud []landsat.SceneRecord `json:"low_cloud"`
}

// Result maps each resolved tile to its candidates. Tiles are never merged
// since a scene belongs to exactly one tile.
type Result map[landsat.PathRow]CandidateResult

// Tiles returns the result's tiles ordered by path then row.
func (r Result) Tiles() []landsat.PathRow {
	tiles := make([]landsat.PathRow, 0, len(r))
	for pr := range r {
		tiles = append(tiles, pr)
	}
	sort.Slice(tiles, func(i, j int) bool { return tiles[i].Less(tiles[j]) })
	return tiles
}

// Empty reports whether no tile has any candidate.
func (r Result) Empty() bool {
	for _, c := range r {
		if len(c.All) > 0 {
			return false
		}
	}
	return true
}

// Scenes concatenates the chosen list of every tile in tile order. When n
// is positive each tile's All list is thinned to n scenes first, and the
// low cloud view keeps only the thinned scenes that are also in LowCloud.
func (r Result) Scenes(lowCloud bool, n int) []landsat.SceneRecord {
	var out []landsat.SceneRecord
	for _, pr := range r.Tiles() {
		if n > 0 {
			all, low := r[pr].Thinned(n)
			if lowCloud {
				all = low
			}
			out = append(out, all...)
			continue
		}
		recs := r[pr].All
		if lowCloud {
			recs = r[pr].LowCloud
		}
		out = append(out, recs...)
	}
	return out
}

// Thinned thins All to n scenes and returns it together with the thinned
// scenes that pass the cloud ceiling.
func (c CandidateResult) Thinned(n int) (all, lowCloud []landsat.SceneRecord) {
	all = Thin(c.All, n)
	keep := make(map[string]struct{}, len(c.LowCloud))
	for _, rec := range c.LowCloud {
		keep[rec.SceneID] = struct{}{}
	}
	lowCloud = make([]landsat.SceneRecord, 0, len(all))
	for _, rec := range all {
		if _, ok := keep[rec.SceneID]; ok {
			lowCloud = append(lowCloud, rec)
		}
	}
	return all, lowCloud
}

type Selector struct {
	tiles    TileResolver
	store    SceneSource
	logger   zerolog.Logger
	recorder Recorder
}

type Option func(*Selector)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Selector) { s.logger = l }
}

func WithRecorder(r Recorder) Option {
	return func(s *Selector) { s.recorder = r }
}

func New(tiles TileResolver, store SceneSource, opts ...Option) *Selector {
	s := &Selector{tiles: tiles, store: store, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select validates q, resolves its location and queries every tile
// independently. An empty answer is a normal result, not an error.
func (s *Selector) Select(ctx context.Context, q landsat.Query) (Result, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	tiles, err := s.tiles.Resolve(ctx, q.Location, q.Sensor)
	if err != nil {
		return nil, err
	}

	start, end := q.Window()
	ceiling := q.Ceiling()
	result := make(Result, len(tiles))
	var all, low int
	for _, pr := range tiles {
		recs, err := s.store.Query(ctx, q.Sensor, pr, start, end)
		if err != nil {
			return nil, err
		}
		if recs == nil {
			recs = []landsat.SceneRecord{}
		}
		c := CandidateResult{
			All:      recs,
			LowCloud: make([]landsat.SceneRecord, 0, len(recs)),
		}
		for _, rec := range recs {
			if rec.CloudBelow(ceiling) {
				c.LowCloud = append(c.LowCloud, rec)
			}
		}
		if len(c.All) == 0 {
			s.logger.Warn().
				Str("sensor", string(q.Sensor)).
				Str("tile", pr.String()).
				Str("start", q.Start.Format(landsat.DateLayout)).
				Str("end", q.End.Format(landsat.DateLayout)).
				Msg("no coverage for constraints")
		}
		result[pr] = c
		all += len(c.All)
		low += len(c.LowCloud)
	}

	s.logger.Debug().Str("sensor", string(q.Sensor)).Str("location", q.Location.String()).
		Int("tiles", len(tiles)).Int("all", all).Int("low_cloud", low).Msg("selected candidates")
	if s.recorder != nil {
		s.recorder.ObserveSelection(q.Sensor, len(tiles), all, low)
	}
	return result, nil
}
