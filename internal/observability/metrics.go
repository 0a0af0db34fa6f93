package observability

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgketchum/Landsat578/internal/landsat"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Collector bundles the Prometheus metrics of scene discovery and retrieval.
// A nil *Collector is valid and records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	Selections     *prometheus.CounterVec
	Candidates     *prometheus.CounterVec
	Fetches        *prometheus.CounterVec
	FetchDurations *prometheus.HistogramVec
	Refreshes      *prometheus.CounterVec
	RPCRequests    *prometheus.CounterVec
	RPCDurations   *prometheus.HistogramVec
	HTTPRequests   *prometheus.CounterVec
}

// NewCollector registers the metrics against reg, defaulting to the global
// registry when nil. Registering twice on one registry reuses the existing
// collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	c := &Collector{gatherer: gatherer}

	var err error
	if c.Selections, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "landsat_selections_total",
		Help: "Candidate selections served, by sensor.",
	}, []string{"sensor"})); err != nil {
		return nil, err
	}
	if c.Candidates, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "landsat_candidates_total",
		Help: "Candidate scenes returned, by sensor and list (all or low_cloud).",
	}, []string{"sensor", "list"})); err != nil {
		return nil, err
	}
	if c.Fetches, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "landsat_scene_fetches_total",
		Help: "Scene fetch outcomes by status.",
	}, []string{"status"})); err != nil {
		return nil, err
	}
	if c.FetchDurations, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "landsat_scene_fetch_duration_seconds",
		Help:    "Time spent fetching one scene.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"status"})); err != nil {
		return nil, err
	}
	if c.Refreshes, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "landsat_metadata_refreshes_total",
		Help: "Archive index refreshes by result.",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if c.RPCRequests, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "landsat_rpc_requests_total",
		Help: "Handled RPCs, labeled by method and gRPC status code.",
	}, []string{"method", "code"})); err != nil {
		return nil, err
	}
	if c.RPCDurations, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "landsat_rpc_duration_seconds",
		Help:    "RPC latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"method"})); err != nil {
		return nil, err
	}
	if c.HTTPRequests, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "landsat_http_requests_total",
		Help: "Handled HTTP requests by route and status code.",
	}, []string{"route", "code"})); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Collector) ObserveSelection(sensor landsat.Sensor, tiles, all, lowCloud int) {
	if c == nil {
		return
	}
	c.Selections.WithLabelValues(string(sensor)).Inc()
	c.Candidates.WithLabelValues(string(sensor), "all").Add(float64(all))
	c.Candidates.WithLabelValues(string(sensor), "low_cloud").Add(float64(lowCloud))
}

func (c *Collector) ObserveFetch(status string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Fetches.WithLabelValues(status).Inc()
	c.FetchDurations.WithLabelValues(status).Observe(elapsed.Seconds())
}

func (c *Collector) ObserveRefresh(err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.Refreshes.WithLabelValues(result).Inc()
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *Collector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if c == nil {
			return resp, err
		}
		method := "unknown"
		if info != nil {
			method = MethodName(info.FullMethod)
		}
		c.RPCRequests.WithLabelValues(method, status.Code(err).String()).Inc()
		c.RPCDurations.WithLabelValues(method).Observe(time.Since(start).Seconds())
		return resp, err
	}
}

// Middleware counts HTTP requests under the given route label.
func (c *Collector) Middleware(route string, next http.Handler) http.Handler {
	if c == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		c.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
	})
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	if c == nil || c.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// MethodName returns the last element of a fully qualified gRPC method.
func MethodName(fullMethod string) string {
	fullMethod = strings.Trim(fullMethod, "/")
	if i := strings.LastIndex(fullMethod, "/"); i >= 0 {
		fullMethod = fullMethod[i+1:]
	}
	if fullMethod == "" {
		return "unknown"
	}
	return fullMethod
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector already registered with incompatible type: %w", err)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector already registered with incompatible type: %w", err)
		}
		return nil, err
	}
	return vec, nil
}
