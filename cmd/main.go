package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/dgketchum/Landsat578/internal/config"
	"github.com/dgketchum/Landsat578/internal/delivery"
	"github.com/dgketchum/Landsat578/internal/landsat"
	"github.com/dgketchum/Landsat578/internal/logging"
	"github.com/dgketchum/Landsat578/internal/observability"
	"github.com/dgketchum/Landsat578/internal/properties"
	"github.com/dgketchum/Landsat578/internal/report"
	"github.com/dgketchum/Landsat578/internal/server"
	"github.com/dgketchum/Landsat578/internal/ui"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type app struct {
	envFiles []string
	logLevel string
	quiet    bool

	settings *properties.Settings
	logger   zerolog.Logger
	metrics  *observability.Collector
	service  *delivery.Service
}

// queryFlags are shared by every command that takes a query.
type queryFlags struct {
	configPath string
	job        config.Job
	path, row  int
	lat, lon   float64
	maxCloud   float64
}

func (f *queryFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "YAML job document; flags override its values")
	fl.StringVarP(&f.job.Satellite, "satellite", "s", "", "satellite, e.g. LT5, LE7, LC8 or 5")
	fl.StringVar(&f.job.Start, "start", "", "first acquisition date, YYYY-MM-DD")
	fl.StringVar(&f.job.End, "end", "", "last acquisition date (inclusive), YYYY-MM-DD")
	fl.IntVarP(&f.path, "path", "p", 0, "WRS path")
	fl.IntVarP(&f.row, "row", "r", 0, "WRS row")
	fl.Float64Var(&f.lat, "lat", 0, "latitude of a point of interest")
	fl.Float64Var(&f.lon, "lon", 0, "longitude of a point of interest")
	fl.StringVar(&f.job.Boundary, "boundary", "", "vector file with PATH/ROW attributes or geometries")
	fl.Float64Var(&f.maxCloud, "max-cloud", landsat.DefaultCloudCeiling, "cloud cover ceiling in percent")
	fl.IntVarP(&f.job.Count, "count", "n", 0, "thin each tile to this many scenes")
}

// query merges the config document with the flags set on cmd.
func (f *queryFlags) query(cmd *cobra.Command) (landsat.Query, *config.Job, error) {
	job := f.job
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return landsat.Query{}, nil, err
		}
		fl := cmd.Flags()
		for name, set := range map[string]func(){
			"satellite": func() { loaded.Satellite = f.job.Satellite },
			"start":     func() { loaded.Start = f.job.Start },
			"end":       func() { loaded.End = f.job.End },
			"boundary":  func() { loaded.Boundary = f.job.Boundary },
			"count":     func() { loaded.Count = f.job.Count },
		} {
			if fl.Changed(name) {
				set()
			}
		}
		job = *loaded
	}
	fl := cmd.Flags()
	if fl.Changed("path") {
		job.Path = &f.path
	}
	if fl.Changed("row") {
		job.Row = &f.row
	}
	if fl.Changed("lat") {
		job.Latitude = &f.lat
	}
	if fl.Changed("lon") {
		job.Longitude = &f.lon
	}
	if fl.Changed("max-cloud") || job.MaxCloudPercent == nil {
		job.MaxCloudPercent = &f.maxCloud
	}
	q, err := job.Query()
	return q, &job, err
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	settings, err := properties.Load(a.envFiles...)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		settings.LogLevel = a.logLevel
	}
	a.settings = settings
	if a.logger, err = logging.Setup(logging.Config{Level: settings.LogLevel, Format: settings.LogFormat}); err != nil {
		return err
	}
	if a.metrics, err = observability.NewCollector(prometheus.NewRegistry()); err != nil {
		return err
	}
	opts := []delivery.Option{delivery.WithLogger(a.logger), delivery.WithMetrics(a.metrics)}
	if !a.quiet {
		opts = append(opts, delivery.WithProgress(os.Stderr))
	}
	a.service, err = delivery.New(settings, opts...)
	return err
}

func main() {
	a := &app{}
	defer a.recoverPanic()

	root := &cobra.Command{
		Use:           "landsat",
		Short:         "Find and download Landsat scenes from the public archive index",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringSliceVar(&a.envFiles, "env", []string{".env", "../.env"}, "environment files to load")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override LOG_LEVEL")
	root.PersistentFlags().BoolVarP(&a.quiet, "quiet", "q", false, "hide banner and progress bars")

	root.AddCommand(
		a.refreshCmd(),
		a.statusCmd(),
		a.tilesCmd(),
		a.scenesCmd(),
		a.downloadCmd(),
		a.serveCmd(),
		initConfigCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}

func (a *app) recoverPanic() {
	r := recover()
	if r == nil {
		return
	}
	location := "unknown location"
	if pc, file, line, ok := runtime.Caller(3); ok {
		location = fmt.Sprintf("%s:%d in %s", file, line, runtime.FuncForPC(pc).Name())
	}
	ui.PrintError(fmt.Sprintf("PANIC: %v\nLocation: %s", r, location))

	if a.service != nil {
		msg := fmt.Sprintf("Landsat CLI panic:\n\n%v\n\nLocation: %s\n\nStack trace:\n%s", r, location, debug.Stack())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.service.Notifier().SendError(ctx, msg); err != nil {
			ui.PrintError("failed to send notification: " + err.Error())
		}
	}
	os.Exit(2)
}

func (a *app) refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "refresh [SATELLITE...]",
		Short:   "Download the archive index and rebuild the local snapshots",
		PreRunE: a.setup,
		RunE: func(cmd *cobra.Command, args []string) error {
			var sensors []landsat.Sensor
			for _, arg := range args {
				s, err := landsat.ParseSensor(arg)
				if err != nil {
					return err
				}
				sensors = append(sensors, s)
			}
			stats, err := a.service.Refresh(cmd.Context(), sensors...)
			if err != nil {
				return err
			}
			ui.PrintSuccess(fmt.Sprintf("Index refreshed: %d rows read, %d skipped.", stats.Read, stats.Skipped))
			ui.PrintStatus(a.service.Status(), time.Now())
			return nil
		},
	}
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show the age of the local metadata snapshots",
		PreRunE: a.setup,
		RunE: func(cmd *cobra.Command, args []string) error {
			ui.PrintStatus(a.service.Status(), time.Now())
			return nil
		},
	}
}

func (a *app) tilesCmd() *cobra.Command {
	var qf queryFlags
	var image string
	cmd := &cobra.Command{
		Use:     "tiles",
		Short:   "Resolve a location to WRS path/rows",
		PreRunE: a.setup,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, _, err := qf.query(cmd)
			if err != nil {
				return err
			}
			if image != "" {
				tiles, err := a.service.DrawFootprints(cmd.Context(), q, image)
				if err != nil {
					return err
				}
				ui.PrintTiles(q.Sensor, tiles)
				ui.PrintSuccess("Footprints written to " + image)
				return nil
			}
			tiles, err := a.service.Resolve(cmd.Context(), q)
			if err != nil {
				return err
			}
			ui.PrintTiles(q.Sensor, tiles)
			return nil
		},
	}
	qf.register(cmd)
	cmd.Flags().StringVar(&image, "image", "", "also draw the tile footprints to this PNG")
	return cmd
}

func (a *app) scenesCmd() *cobra.Command {
	var qf queryFlags
	var all, ids bool
	var csvPath string
	cmd := &cobra.Command{
		Use:     "scenes",
		Short:   "List candidate scenes without downloading",
		PreRunE: a.setup,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, _, err := qf.query(cmd)
			if err != nil {
				return err
			}
			return a.listScenes(cmd.Context(), q, all, ids, csvPath)
		},
	}
	qf.register(cmd)
	cmd.Flags().BoolVar(&all, "all", false, "include scenes over the cloud ceiling")
	cmd.Flags().BoolVar(&ids, "ids", false, "print bare scene ids, one per line")
	cmd.Flags().StringVar(&csvPath, "csv", "", "write the list as CSV to this file")
	return cmd
}

func (a *app) listScenes(ctx context.Context, q landsat.Query, all, ids bool, csvPath string) error {
	scenes, err := a.service.Candidates(ctx, q, all)
	if err != nil {
		return err
	}
	if csvPath != "" {
		f, err := os.Create(csvPath)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := report.WriteScenes(f, scenes, q.Ceiling()); err != nil {
			return err
		}
	}
	if ids {
		return report.WriteSceneIDs(os.Stdout, scenes)
	}
	ui.PrintScenes(scenes, q.Ceiling())
	return nil
}

func (a *app) downloadCmd() *cobra.Command {
	var qf queryFlags
	var opts delivery.DownloadOptions
	var list, update bool
	cmd := &cobra.Command{
		Use:     "download",
		Short:   "Download the candidate scenes of a query",
		PreRunE: a.setup,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, job, err := qf.query(cmd)
			if err != nil {
				return err
			}
			if update {
				if _, err := a.service.Refresh(cmd.Context(), q.Sensor); err != nil {
					return err
				}
			}
			if list || job.ReturnList {
				return a.listScenes(cmd.Context(), q, opts.All, true, "")
			}
			fl := cmd.Flags()
			if !fl.Changed("output") && job.OutputPath != "" {
				opts.Root = job.OutputPath
			}
			if !fl.Changed("pymetric-root") && job.PymetricRoot != "" {
				opts.Root = job.PymetricRoot
				opts.PyMetric = true
			}
			if !fl.Changed("zipped") {
				opts.Bundles = opts.Bundles || job.Zipped
			}

			if !a.quiet {
				ui.PrintBanner()
			}
			batch, err := a.service.Download(cmd.Context(), q, opts)
			if err != nil {
				return err
			}
			if len(batch.Outcomes) == 0 {
				ui.PrintWarning("No scenes match the query.")
				return nil
			}
			ui.PrintOutcomes(batch.Outcomes)
			if batch.Summary.Failed > 0 {
				return fmt.Errorf("%d of %d scenes failed", batch.Summary.Failed, batch.Summary.Total())
			}
			return nil
		},
	}
	qf.register(cmd)
	fl := cmd.Flags()
	fl.StringVarP(&opts.Root, "output", "o", "", "destination directory (default $LANDSAT_ROOT/scenes)")
	fl.Func("pymetric-root", "use the <root>/landsat/<path>/<row>/<year> layout under this directory", func(v string) error {
		opts.Root, opts.PyMetric = v, true
		return nil
	})
	fl.BoolVar(&opts.Bundles, "zipped", false, "fetch one compressed bundle per scene and extract it")
	fl.BoolVar(&opts.All, "all", false, "download scenes over the cloud ceiling too")
	fl.StringVar(&opts.Report, "report", "", "append outcomes to this CSV report")
	fl.BoolVar(&list, "list", false, "print the scene ids instead of downloading")
	fl.BoolVar(&update, "update-scenes", false, "refresh the satellite's metadata first")
	return cmd
}

func (a *app) serveCmd() *cobra.Command {
	var grpcPort, httpPort int
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Serve tile and scene discovery over gRPC and HTTP",
		PreRunE: a.setup,
		RunE: func(cmd *cobra.Command, args []string) error {
			fl := cmd.Flags()
			if !fl.Changed("grpc-port") {
				grpcPort = a.settings.GrpcPort
			}
			if !fl.Changed("http-port") {
				httpPort = a.settings.HTTPPort
			}
			if !a.quiet {
				ui.PrintBanner()
			}
			return server.Run(cmd.Context(), server.Config{
				GRPCAddr: fmt.Sprintf(":%d", grpcPort),
				HTTPAddr: fmt.Sprintf(":%d", httpPort),
			}, a.service, a.service, a.logger, a.metrics)
		},
	}
	cmd.Flags().IntVar(&grpcPort, "grpc-port", properties.DefaultGrpcPort, "gRPC listen port")
	cmd.Flags().IntVar(&httpPort, "http-port", properties.DefaultHTTPPort, "HTTP listen port")
	return cmd
}

func initConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [DIR|FILE]",
		Short: "Write an example job document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := "."
			if len(args) == 1 {
				target = args[0]
			}
			path, err := config.WriteTemplate(target)
			if err != nil {
				return err
			}
			ui.PrintSuccess("Template written to " + path)
			ui.PrintInfo(strings.Join([]string{
				"Edit it, then run:",
				"  landsat download --config " + path,
			}, "\n"))
			return nil
		},
	}
}
