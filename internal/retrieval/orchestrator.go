package retrieval

import (
	"context"
	"io"
	"time"

	"github.com/dgketchum/Landsat578/internal/landsat"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
)

// Recorder receives the outcome of every fetched scene.
type Recorder interface {
	ObserveFetch(status string, elapsed time.Duration)
}

// Orchestrator fetches a batch of scenes one after the other. A failing
// scene is recorded and the batch moves on.
type Orchestrator struct {
	fetcher  Fetcher
	layout   Layout
	logger   zerolog.Logger
	progress io.Writer
	recorder Recorder
}

type Option func(*Orchestrator)

func WithLayout(l Layout) Option {
	return func(o *Orchestrator) { o.layout = l }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithProgress renders a progress bar for the batch on w.
func WithProgress(w io.Writer) Option {
	return func(o *Orchestrator) { o.progress = w }
}

func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

func NewOrchestrator(f Fetcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{fetcher: f, layout: SceneLayout{}, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Retrieve returns one outcome per scene, in input order.
func (o *Orchestrator) Retrieve(ctx context.Context, scenes []landsat.SceneRecord, root string) []Outcome {
	var bar *progressbar.ProgressBar
	if o.progress != nil && len(scenes) > 0 {
		bar = progressbar.NewOptions(len(scenes),
			progressbar.OptionSetWriter(o.progress),
			progressbar.OptionSetDescription("downloading scenes"),
			progressbar.OptionShowCount(),
		)
		defer bar.Finish()
	}

	outcomes := make([]Outcome, len(scenes))
	for i, scene := range scenes {
		dest := o.layout.Dir(root, scene)
		start := time.Now()
		if err := ctx.Err(); err != nil {
			outcomes[i] = Failed(scene, dest, err.Error())
		} else {
			outcomes[i] = o.fetch(ctx, scene, dest)
		}
		out := outcomes[i]

		ev := o.logger.Info()
		if out.Status == StatusFailed {
			ev = o.logger.Warn().Str("reason", out.Reason)
		}
		ev.Str("scene", scene.SceneID).Str("status", string(out.Status)).
			Str("destination", dest).Int("files", len(out.Files)).Msg("scene fetched")
		if o.recorder != nil {
			o.recorder.ObserveFetch(string(out.Status), time.Since(start))
		}
		if bar != nil {
			bar.Add(1)
		}
	}
	return outcomes
}

// fetch shields the batch from a panicking fetcher.
func (o *Orchestrator) fetch(ctx context.Context, scene landsat.SceneRecord, dest string) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().Interface("panic", r).Str("scene", scene.SceneID).Msg("fetcher panicked")
			out = Failed(scene, dest, "internal error while fetching")
		}
	}()
	out = o.fetcher.Fetch(ctx, scene, dest)
	out.Scene = scene
	out.Destination = dest
	return out
}
