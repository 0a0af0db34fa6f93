package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dgketchum/Landsat578/internal/metadata"
	"github.com/dgketchum/Landsat578/internal/observability"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// StatusSource reports the state of the local snapshots.
type StatusSource interface {
	Status() []metadata.Status
}

type handlers struct {
	discovery Discovery
	status    StatusSource
	logger    zerolog.Logger
}

// NewRouter serves discovery over plain HTTP:
//
//	GET /tiles?satellite=&lat=&lon=|path=&row=&start=&end=
//	GET /scenes?...&max_cloud=&count=
//	GET /status
//	GET /metrics
func NewRouter(d Discovery, st StatusSource, logger zerolog.Logger, metrics *observability.Collector) *mux.Router {
	h := &handlers{discovery: d, status: st, logger: logger}
	router := mux.NewRouter()
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	router.Handle("/tiles", metrics.Middleware("tiles", http.HandlerFunc(h.tiles))).Methods(http.MethodGet)
	router.Handle("/scenes", metrics.Middleware("scenes", http.HandlerFunc(h.scenes))).Methods(http.MethodGet)
	router.Handle("/status", metrics.Middleware("status", http.HandlerFunc(h.snapshots))).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler())
	return router
}

func (h *handlers) tiles(w http.ResponseWriter, r *http.Request) {
	q, err := ParseQuery(r.FormValue)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	tiles, err := h.discovery.Resolve(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"satellite": string(q.Sensor),
		"tiles":     tilesPayload(tiles),
	})
}

func (h *handlers) scenes(w http.ResponseWriter, r *http.Request) {
	q, err := ParseQuery(r.FormValue)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.discovery.Select(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resultPayload(q, res))
}

type snapshotStatus struct {
	Sensor      string     `json:"sensor"`
	Present     bool       `json:"present"`
	Loaded      bool       `json:"loaded"`
	Rows        int        `json:"rows"`
	Skipped     int        `json:"skipped"`
	RefreshedAt *time.Time `json:"refreshed_at,omitempty"`
}

func (h *handlers) snapshots(w http.ResponseWriter, r *http.Request) {
	var out []snapshotStatus
	for _, st := range h.status.Status() {
		s := snapshotStatus{Sensor: string(st.Sensor), Present: st.Present, Loaded: st.Loaded}
		if m := st.Manifest; m != nil {
			s.Rows, s.Skipped = m.Rows, m.Skipped
			refreshed := m.RefreshedAt
			s.RefreshedAt = &refreshed
		}
		out = append(out, s)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := httpStatus(err)
	ev := h.logger.Warn()
	if code >= http.StatusInternalServerError {
		ev = h.logger.Error()
	}
	ev.Err(err).Str("path", r.URL.Path).Int("status", code).Msg("request failed")
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// writeJSON encodes before writing the header so an unencodable value
// becomes a 500 instead of an empty 200.
func writeJSON(w http.ResponseWriter, code int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(append(body, '\n'))
}
