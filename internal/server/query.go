package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgketchum/Landsat578/internal/landsat"
	"github.com/dgketchum/Landsat578/internal/selection"
	"google.golang.org/grpc/codes"
)

// Discovery is the read side of the pipeline exposed over the network.
type Discovery interface {
	Resolve(ctx context.Context, q landsat.Query) ([]landsat.PathRow, error)
	Select(ctx context.Context, q landsat.Query) (selection.Result, error)
}

// ParseQuery builds a query from named string parameters: satellite, start,
// end, path, row, lat, lon, max_cloud and count. Dates are YYYY-MM-DD.
func ParseQuery(get func(string) string) (landsat.Query, error) {
	var q landsat.Query
	var err error
	if q.Sensor, err = landsat.ParseSensor(get("satellite")); err != nil {
		return q, err
	}
	if q.Start, err = parseDate("start", get("start")); err != nil {
		return q, err
	}
	if q.End, err = parseDate("end", get("end")); err != nil {
		return q, err
	}

	path, err := optionalInt("path", get("path"))
	if err != nil {
		return q, err
	}
	row, err := optionalInt("row", get("row"))
	if err != nil {
		return q, err
	}
	lat, err := optionalFloat("lat", get("lat"))
	if err != nil {
		return q, err
	}
	lon, err := optionalFloat("lon", get("lon"))
	if err != nil {
		return q, err
	}
	if q.Location, err = landsat.LocationFrom(path, row, lat, lon); err != nil {
		return q, err
	}

	if q.CloudCeiling, err = optionalFloat("max_cloud", get("max_cloud")); err != nil {
		return q, err
	}
	count, err := optionalInt("count", get("count"))
	if err != nil {
		return q, err
	}
	if count != nil {
		q.Count = *count
	}
	return q, q.Validate()
}

func parseDate(name, v string) (t time.Time, err error) {
	if strings.TrimSpace(v) == "" {
		return t, &landsat.InvalidQueryError{Reason: name + " date is required"}
	}
	if t, err = landsat.ParseDate(v); err != nil {
		return t, &landsat.InvalidQueryError{Reason: fmt.Sprintf("%s date %q is not YYYY-MM-DD", name, v)}
	}
	return t, nil
}

func optionalInt(name, v string) (*int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, &landsat.InvalidQueryError{Reason: fmt.Sprintf("%s %q is not an integer", name, v)}
	}
	return &n, nil
}

func optionalFloat(name, v string) (*float64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, &landsat.InvalidQueryError{Reason: fmt.Sprintf("%s %q is not a number", name, v)}
	}
	return &f, nil
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, landsat.ErrInvalidQuery), errors.Is(err, landsat.ErrInvalidTile):
		return http.StatusBadRequest
	case errors.Is(err, landsat.ErrNoCoverage):
		return http.StatusNotFound
	case errors.Is(err, landsat.ErrMetadataUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func grpcCode(err error) codes.Code {
	switch {
	case errors.Is(err, landsat.ErrInvalidQuery), errors.Is(err, landsat.ErrInvalidTile):
		return codes.InvalidArgument
	case errors.Is(err, landsat.ErrNoCoverage):
		return codes.NotFound
	case errors.Is(err, landsat.ErrMetadataUnavailable):
		return codes.Unavailable
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	}
	return codes.Internal
}

// scenePayload flattens a record into the JSON-compatible shape shared by
// the HTTP and gRPC responses.
func scenePayload(r landsat.SceneRecord) map[string]any {
	var cloud any
	if r.CloudCover != nil {
		cloud = *r.CloudCover
	}
	return map[string]any{
		"scene_id":    r.SceneID,
		"product_id":  r.ProductID,
		"spacecraft":  string(r.Sensor),
		"path":        r.Tile.Path,
		"row":         r.Tile.Row,
		"date":        r.Date(),
		"cloud_cover": cloud,
		"locator":     r.Locator,
	}
}

func scenesPayload(recs []landsat.SceneRecord) []any {
	out := make([]any, len(recs))
	for i, r := range recs {
		out[i] = scenePayload(r)
	}
	return out
}

func tilesPayload(tiles []landsat.PathRow) []any {
	out := make([]any, len(tiles))
	for i, pr := range tiles {
		out[i] = map[string]any{"path": pr.Path, "row": pr.Row}
	}
	return out
}

// resultPayload lists each tile with its candidates. A positive count thins
// the full list and low_cloud is the thinned scenes under the ceiling.
func resultPayload(q landsat.Query, res selection.Result) map[string]any {
	tiles := res.Tiles()
	items := make([]any, len(tiles))
	for i, pr := range tiles {
		c := res[pr]
		all, low := c.All, c.LowCloud
		if q.Count > 0 {
			all, low = c.Thinned(q.Count)
		}
		items[i] = map[string]any{
			"path":      pr.Path,
			"row":       pr.Row,
			"all":       scenesPayload(all),
			"low_cloud": scenesPayload(low),
		}
	}
	return map[string]any{
		"satellite": string(q.Sensor),
		"start":     q.Start.Format(landsat.DateLayout),
		"end":       q.End.Format(landsat.DateLayout),
		"max_cloud": q.Ceiling(),
		"tiles":     items,
	}
}
