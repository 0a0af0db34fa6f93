package delivery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/dgketchum/Landsat578/internal/landsat"
	"github.com/dgketchum/Landsat578/internal/metadata"
	"github.com/dgketchum/Landsat578/internal/notification"
	"github.com/dgketchum/Landsat578/internal/observability"
	"github.com/dgketchum/Landsat578/internal/properties"
	"github.com/dgketchum/Landsat578/internal/report"
	"github.com/dgketchum/Landsat578/internal/retrieval"
	"github.com/dgketchum/Landsat578/internal/selection"
	"github.com/dgketchum/Landsat578/internal/wrs"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
)

// Service runs the discovery and download use cases against one set of
// settings. It is safe for concurrent use.
type Service struct {
	settings   *properties.Settings
	logger     zerolog.Logger
	metrics    *observability.Collector
	notifier   *notification.Discord
	progress   io.Writer
	httpClient *http.Client

	Tiles    *wrs.Index
	Store    *metadata.Store
	Selector *selection.Selector
	Fetcher  retrieval.Fetcher
}

type Option func(*Service)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithMetrics(c *observability.Collector) Option {
	return func(s *Service) { s.metrics = c }
}

// WithProgress shows progress bars for index and scene downloads on w.
func WithProgress(w io.Writer) Option {
	return func(s *Service) { s.progress = w }
}

// WithFetcher replaces the fetcher chosen from the settings.
func WithFetcher(f retrieval.Fetcher) Option {
	return func(s *Service) { s.Fetcher = f }
}

// WithHTTPClient sets the client used for index, boundary and mirror
// downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.httpClient = c }
}

// New wires the components described by settings.
func New(settings *properties.Settings, opts ...Option) (*Service, error) {
	s := &Service{settings: settings, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	client := s.httpClient
	if client == nil {
		client = &http.Client{Timeout: settings.Timeout}
	}

	s.Tiles = wrs.New(settings.BoundaryDir(),
		wrs.WithLogger(s.logger),
		wrs.WithFetcher(&wrs.HTTPFetcher{
			Client: client,
			URLs: map[landsat.Grid]string{
				landsat.WRS1: settings.WRS1URL,
				landsat.WRS2: settings.WRS2URL,
			},
			Logger:   s.logger,
			Progress: s.progress != nil,
		}),
	)
	s.Store = metadata.New(settings.MetadataDir(), settings.IndexURL,
		metadata.WithHTTPClient(client),
		metadata.WithLogger(s.logger),
		metadata.WithProgress(s.progress != nil),
	)
	s.Selector = selection.New(s.Tiles, s.Store,
		selection.WithLogger(s.logger),
		selection.WithRecorder(s.metrics),
	)
	s.notifier = &notification.Discord{
		ErrorURL:   settings.DiscordErrorURL,
		SuccessURL: settings.DiscordSuccessURL,
		Client:     client,
	}

	if s.Fetcher == nil {
		f, err := newFetcher(settings, client, s.logger)
		if err != nil {
			return nil, err
		}
		s.Fetcher = f
	}
	return s, nil
}

func newFetcher(settings *properties.Settings, client *http.Client, logger zerolog.Logger) (retrieval.Fetcher, error) {
	if settings.S3Endpoint != "" {
		return retrieval.NewS3Fetcher(retrieval.S3Config{
			Endpoint:  settings.S3Endpoint,
			AccessKey: settings.S3AccessKey,
			SecretKey: settings.S3SecretKey,
			Region:    settings.S3Region,
			UseSSL:    settings.S3UseSSL,
			Bucket:    settings.S3Bucket,
		}, logger)
	}
	auth := retrieval.Auth{
		Token:        settings.OAuthToken,
		ClientID:     settings.OAuthClientID,
		ClientSecret: settings.OAuthClientSecret,
		TokenURL:     settings.OAuthTokenURL,
	}
	return &retrieval.MirrorFetcher{
		BaseURL:    settings.MirrorURL,
		Downloader: retrieval.NewDownloader(auth.HTTPClient(context.Background(), client), settings.RateLimit, settings.Retries),
		Workers:    settings.Workers,
		Logger:     logger,
	}, nil
}

func (s *Service) Notifier() *notification.Discord {
	return s.notifier
}

// Refresh rebuilds the snapshots of the given sensors, or all of them.
func (s *Service) Refresh(ctx context.Context, sensors ...landsat.Sensor) (metadata.RefreshStats, error) {
	stats, err := s.Store.RefreshStats(ctx, sensors...)
	s.metrics.ObserveRefresh(err)
	return stats, err
}

func (s *Service) Status() []metadata.Status {
	out := make([]metadata.Status, len(landsat.Sensors))
	for i, sensor := range landsat.Sensors {
		out[i] = s.Store.Status(sensor)
	}
	return out
}

// Resolve returns the tiles covering the query location.
func (s *Service) Resolve(ctx context.Context, q landsat.Query) ([]landsat.PathRow, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return s.Tiles.Resolve(ctx, q.Location, q.Sensor)
}

func (s *Service) Select(ctx context.Context, q landsat.Query) (selection.Result, error) {
	return s.Selector.Select(ctx, q)
}

// Candidates returns the scenes a query would download: the low cloud list
// unless all is set, thinned per tile to q.Count when positive.
func (s *Service) Candidates(ctx context.Context, q landsat.Query, all bool) ([]landsat.SceneRecord, error) {
	result, err := s.Selector.Select(ctx, q)
	if err != nil {
		return nil, err
	}
	return result.Scenes(!all, q.Count), nil
}

type DownloadOptions struct {
	// Root is the destination directory, the settings' scenes dir when empty.
	Root string
	// PyMetric switches to the <root>/landsat/<path>/<row>/<year> layout.
	PyMetric bool
	// Bundles fetches one <product>.tar.gz per scene instead of band files.
	// Only the HTTP mirror serves bundles.
	Bundles bool
	// All downloads every candidate instead of the low cloud ones.
	All bool
	// Report appends the outcomes to this CSV file when set.
	Report string
}

type Batch struct {
	RunID    string
	Scenes   []landsat.SceneRecord
	Outcomes []retrieval.Outcome
	Summary  retrieval.Summary
}

// Download selects the query's candidates and fetches them. Per-scene
// failures are part of the batch; only selection errors are returned.
func (s *Service) Download(ctx context.Context, q landsat.Query, opts DownloadOptions) (*Batch, error) {
	if _, mirror := s.Fetcher.(*retrieval.MirrorFetcher); opts.Bundles && !mirror {
		return nil, &landsat.InvalidQueryError{Reason: "compressed bundles are only served by the HTTP mirror"}
	}
	scenes, err := s.Candidates(ctx, q, opts.All)
	if err != nil {
		return nil, err
	}
	batch := &Batch{RunID: uuid.NewString(), Scenes: scenes}
	if len(scenes) == 0 {
		s.logger.Warn().Str("run", batch.RunID).Msg("no scenes to download")
		return batch, nil
	}

	root := opts.Root
	if root == "" {
		root = s.settings.ScenesDir()
	}
	var layout retrieval.Layout = retrieval.SceneLayout{}
	if opts.PyMetric {
		layout = retrieval.PyMetricLayout{}
	}
	fetchList := scenes
	if opts.Bundles {
		fetchList = make([]landsat.SceneRecord, len(scenes))
		for i, sc := range scenes {
			sc.Locator = bundleLocator(sc.Locator)
			fetchList[i] = sc
		}
	}

	orch := retrieval.NewOrchestrator(s.Fetcher,
		retrieval.WithLayout(layout),
		retrieval.WithLogger(s.logger.With().Str("run", batch.RunID).Logger()),
		retrieval.WithRecorder(s.metrics),
		retrieval.WithProgress(s.progress),
	)
	started := time.Now()
	batch.Outcomes = orch.Retrieve(ctx, fetchList, root)
	batch.Summary = retrieval.Summarize(batch.Outcomes)
	s.logger.Info().Str("run", batch.RunID).
		Int("delivered", batch.Summary.Delivered).
		Int("already_present", batch.Summary.AlreadyPresent).
		Int("failed", batch.Summary.Failed).
		Dur("elapsed", time.Since(started)).
		Msg("download batch finished")

	if opts.Report != "" {
		if err := report.AppendOutcomes(opts.Report, batch.RunID, batch.Outcomes, time.Now()); err != nil {
			s.logger.Warn().Err(err).Str("report", opts.Report).Msg("failed to write download report")
		}
	}
	if err := s.notifier.SendBatch(ctx, batch.RunID, batch.Outcomes); err != nil {
		s.logger.Warn().Err(err).Msg("failed to send batch notification")
	}
	return batch, nil
}

func bundleLocator(locator string) string {
	if filepath.Ext(locator) == ".gz" {
		return locator
	}
	return locator + ".tar.gz"
}

// DrawFootprints renders the tiles covering the query location to a PNG.
func (s *Service) DrawFootprints(ctx context.Context, q landsat.Query, path string) ([]landsat.PathRow, error) {
	tiles, err := s.Resolve(ctx, q)
	if err != nil {
		return nil, err
	}
	shapes := make(map[landsat.PathRow]orb.MultiPolygon, len(tiles))
	for _, pr := range tiles {
		mp, err := s.Tiles.Footprint(ctx, q.Sensor, pr)
		if err != nil {
			return nil, fmt.Errorf("footprint of %s: %w", pr, err)
		}
		shapes[pr] = mp
	}
	var points []landsat.Point
	switch loc := q.Location.(type) {
	case landsat.PointLocation:
		points = []landsat.Point{loc.Point}
	case landsat.PointSetLocation:
		points = loc.Points
	}
	return tiles, report.DrawFootprints(path, shapes, points)
}
