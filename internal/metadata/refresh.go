package metadata

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgketchum/Landsat578/internal/landsat"
	"github.com/gocarina/gocsv"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

// RefreshStats summarises one pass over the archive index.
type RefreshStats struct {
	Read    int
	Written map[landsat.Sensor]int
	Skipped int
}

// Refresh downloads the archive index and rewrites the snapshots of the given
// sensors, or of every sensor when none are given. On failure the previous
// snapshots are left untouched.
func (s *Store) Refresh(ctx context.Context, sensors ...landsat.Sensor) error {
	_, err := s.RefreshStats(ctx, sensors...)
	return err
}

func (s *Store) RefreshStats(ctx context.Context, sensors ...landsat.Sensor) (RefreshStats, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if len(sensors) == 0 {
		sensors = landsat.Sensors
	}
	unavailable := func(err error) error {
		if len(sensors) == 1 {
			return &landsat.MetadataUnavailableError{Sensor: sensors[0], Err: err}
		}
		return &landsat.MetadataUnavailableError{Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(s.snapshotPath(landsat.Landsat8)), 0o755); err != nil {
		return RefreshStats{}, unavailable(err)
	}

	writers := make(map[landsat.Sensor]*snapshotWriter, len(sensors))
	abort := func() {
		for _, w := range writers {
			w.abort()
		}
	}
	for _, sensor := range sensors {
		if !sensor.Valid() {
			abort()
			return RefreshStats{}, &landsat.InvalidQueryError{Reason: fmt.Sprintf("unsupported sensor %q", sensor)}
		}
		w, err := newSnapshotWriter(s.snapshotPath(sensor))
		if err != nil {
			abort()
			return RefreshStats{}, unavailable(err)
		}
		writers[sensor] = w
	}

	started := time.Now()
	body, err := s.openIndex(ctx)
	if err != nil {
		abort()
		return RefreshStats{}, unavailable(err)
	}
	stats, err := s.split(body, writers)
	body.Close()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		abort()
		return stats, unavailable(err)
	}

	var g errgroup.Group
	for _, w := range writers {
		w := w
		g.Go(w.finish)
	}
	if err := g.Wait(); err != nil {
		for _, w := range writers {
			os.Remove(w.tmp)
		}
		return stats, unavailable(err)
	}

	for _, sensor := range landsat.Sensors {
		w, ok := writers[sensor]
		if !ok {
			continue
		}
		if err := w.commit(); err != nil {
			for _, w := range writers {
				os.Remove(w.tmp)
			}
			return stats, unavailable(err)
		}
		s.swap(sensor)
		m := Manifest{
			Sensor:      sensor,
			Rows:        w.rows,
			Skipped:     stats.Skipped,
			Source:      s.indexURL,
			RefreshedAt: time.Now().UTC(),
		}
		if err := s.manifests.Set(string(sensor), m); err != nil {
			s.logger.Warn().Err(err).Str("sensor", string(sensor)).Msg("failed to record snapshot manifest")
		}
		s.logger.Info().Str("sensor", string(sensor)).Int("rows", w.rows).Msg("snapshot replaced")
	}
	s.logger.Info().Int("read", stats.Read).Int("skipped", stats.Skipped).
		Dur("elapsed", time.Since(started)).Msg("archive index refreshed")
	return stats, nil
}

// split streams index rows into the writer of their spacecraft. Rows of
// sensors not being refreshed are ignored; rows that cannot be parsed are
// counted and skipped.
func (s *Store) split(r io.Reader, writers map[landsat.Sensor]*snapshotWriter) (RefreshStats, error) {
	stats := RefreshStats{Written: make(map[landsat.Sensor]int)}

	br := bufio.NewReaderSize(r, 1<<16)
	header, err := br.ReadString('\n')
	if err != nil && header == "" {
		return stats, fmt.Errorf("read index header: %w", err)
	}
	if err := checkHeader(header); err != nil {
		return stats, err
	}

	var writeErr error
	handle := func(row indexRow) {
		if writeErr != nil {
			return
		}
		stats.Read++
		w, ok := writers[landsat.Sensor(strings.TrimSpace(row.SpacecraftID))]
		if !ok {
			return
		}
		out, err := toSnapshotRow(row)
		if err != nil {
			stats.Skipped++
			s.logger.Debug().Err(err).Str("scene", row.SceneID).Msg("skipping index row")
			return
		}
		if err := w.write(out); err != nil {
			writeErr = err
			return
		}
		stats.Written[landsat.Sensor(out.SpacecraftID)]++
	}

	rows := make(chan indexRow, 1024)
	errc := make(chan error, 1)
	go func() {
		errc <- gocsv.UnmarshalToChan(io.MultiReader(strings.NewReader(header), br), rows)
	}()
	for {
		select {
		case row, ok := <-rows:
			if !ok {
				if err := <-errc; err != nil {
					return stats, fmt.Errorf("parse index: %w", err)
				}
				return stats, writeErr
			}
			handle(row)
		case err := <-errc:
			// the decoder has returned, so whatever is buffered is all there is
			for drained := false; !drained; {
				select {
				case row, ok := <-rows:
					if !ok {
						drained = true
						continue
					}
					handle(row)
				default:
					drained = true
				}
			}
			if err != nil {
				return stats, fmt.Errorf("parse index: %w", err)
			}
			return stats, writeErr
		}
	}
}

func checkHeader(line string) error {
	present := map[string]bool{}
	for _, col := range strings.Split(strings.TrimSpace(line), ",") {
		present[strings.Trim(strings.TrimSpace(col), `"`)] = true
	}
	var missing []string
	for _, col := range requiredColumns {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("index is missing columns %s", strings.Join(missing, ", "))
	}
	return nil
}

// openIndex opens the configured index, transparently decompressing gzip.
func (s *Store) openIndex(ctx context.Context) (io.ReadCloser, error) {
	raw, err := s.openSource(ctx)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReader(raw)
	magic, err := br.Peek(2)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("read index: %w", err)
	}
	if magic[0] != 0x1f || magic[1] != 0x8b {
		return readCloser{Reader: br, closers: []io.Closer{raw}}, nil
	}
	gz, err := gzip.NewReader(br)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("decompress index: %w", err)
	}
	return readCloser{Reader: gz, closers: []io.Closer{gz, raw}}, nil
}

func (s *Store) openSource(ctx context.Context) (io.ReadCloser, error) {
	u, err := url.Parse(s.indexURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		path := strings.TrimPrefix(s.indexURL, "file://")
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open index: %w", err)
		}
		return f, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.indexURL, nil)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("url", s.indexURL).Msg("downloading archive index")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download index: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download index: unexpected status %d", resp.StatusCode)
	}
	if !s.progress {
		return resp.Body, nil
	}
	bar := progressbar.DefaultBytes(resp.ContentLength, "downloading index")
	return readCloser{Reader: io.TeeReader(resp.Body, bar), closers: []io.Closer{resp.Body}}, nil
}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (rc readCloser) Close() error {
	var first error
	for _, c := range rc.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
