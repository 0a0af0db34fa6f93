package metadata

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dgketchum/Landsat578/internal/landsat"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
)

// snapshotRow is the columnar layout of a sensor snapshot.
type snapshotRow struct {
	SceneID            string   `parquet:"name=scene_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	ProductID          string   `parquet:"name=product_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	SpacecraftID       string   `parquet:"name=spacecraft_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	SensorID           string   `parquet:"name=sensor_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	WRSPath            int32    `parquet:"name=wrs_path, type=INT32"`
	WRSRow             int32    `parquet:"name=wrs_row, type=INT32"`
	DateAcquired       int32    `parquet:"name=date_acquired, type=INT32, convertedtype=DATE"`
	CloudCover         *float64 `parquet:"name=cloud_cover, type=DOUBLE, repetitiontype=OPTIONAL"`
	CollectionNumber   string   `parquet:"name=collection_number, type=BYTE_ARRAY, convertedtype=UTF8"`
	CollectionCategory string   `parquet:"name=collection_category, type=BYTE_ARRAY, convertedtype=UTF8"`
	TotalSize          int64    `parquet:"name=total_size, type=INT64"`
	NorthLat           float64  `parquet:"name=north_lat, type=DOUBLE"`
	SouthLat           float64  `parquet:"name=south_lat, type=DOUBLE"`
	WestLon            float64  `parquet:"name=west_lon, type=DOUBLE"`
	EastLon            float64  `parquet:"name=east_lon, type=DOUBLE"`
	BaseURL            string   `parquet:"name=base_url, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// indexRow is one line of the archive index CSV.
type indexRow struct {
	SceneID            string `csv:"SCENE_ID"`
	ProductID          string `csv:"PRODUCT_ID"`
	SpacecraftID       string `csv:"SPACECRAFT_ID"`
	SensorID           string `csv:"SENSOR_ID"`
	DateAcquired       string `csv:"DATE_ACQUIRED"`
	CollectionNumber   string `csv:"COLLECTION_NUMBER"`
	CollectionCategory string `csv:"COLLECTION_CATEGORY"`
	WRSPath            string `csv:"WRS_PATH"`
	WRSRow             string `csv:"WRS_ROW"`
	CloudCover         string `csv:"CLOUD_COVER"`
	NorthLat           string `csv:"NORTH_LAT"`
	SouthLat           string `csv:"SOUTH_LAT"`
	WestLon            string `csv:"WEST_LON"`
	EastLon            string `csv:"EAST_LON"`
	TotalSize          string `csv:"TOTAL_SIZE"`
	BaseURL            string `csv:"BASE_URL"`
}

var requiredColumns = []string{
	"SCENE_ID", "PRODUCT_ID", "SPACECRAFT_ID", "WRS_PATH", "WRS_ROW", "DATE_ACQUIRED", "CLOUD_COVER", "BASE_URL",
}

const secondsPerDay = 24 * 60 * 60

func toSnapshotRow(in indexRow) (snapshotRow, error) {
	path, err := strconv.Atoi(strings.TrimSpace(in.WRSPath))
	if err != nil {
		return snapshotRow{}, fmt.Errorf("WRS_PATH %q: %w", in.WRSPath, err)
	}
	row, err := strconv.Atoi(strings.TrimSpace(in.WRSRow))
	if err != nil {
		return snapshotRow{}, fmt.Errorf("WRS_ROW %q: %w", in.WRSRow, err)
	}
	date := strings.TrimSpace(in.DateAcquired)
	if len(date) > 10 {
		date = date[:10]
	}
	acquired, err := time.Parse(landsat.DateLayout, date)
	if err != nil {
		return snapshotRow{}, fmt.Errorf("DATE_ACQUIRED %q: %w", in.DateAcquired, err)
	}

	out := snapshotRow{
		SceneID:            strings.TrimSpace(in.SceneID),
		ProductID:          strings.TrimSpace(in.ProductID),
		SpacecraftID:       strings.TrimSpace(in.SpacecraftID),
		SensorID:           strings.TrimSpace(in.SensorID),
		WRSPath:            int32(path),
		WRSRow:             int32(row),
		DateAcquired:       int32(acquired.Unix() / secondsPerDay),
		CollectionNumber:   strings.TrimSpace(in.CollectionNumber),
		CollectionCategory: strings.TrimSpace(in.CollectionCategory),
		BaseURL:            strings.TrimSpace(in.BaseURL),
	}
	// the archive publishes -1 when no estimate exists
	if cc, err := strconv.ParseFloat(strings.TrimSpace(in.CloudCover), 64); err == nil && cc >= 0 {
		out.CloudCover = &cc
	}
	out.TotalSize, _ = strconv.ParseInt(strings.TrimSpace(in.TotalSize), 10, 64)
	out.NorthLat = parseFloat(in.NorthLat)
	out.SouthLat = parseFloat(in.SouthLat)
	out.WestLon = parseFloat(in.WestLon)
	out.EastLon = parseFloat(in.EastLon)
	return out, nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

func (r snapshotRow) record() landsat.SceneRecord {
	rec := landsat.SceneRecord{
		SceneID:            r.SceneID,
		ProductID:          r.ProductID,
		Sensor:             landsat.Sensor(r.SpacecraftID),
		SensorID:           r.SensorID,
		Tile:               landsat.PathRow{Path: int(r.WRSPath), Row: int(r.WRSRow)},
		AcquisitionDate:    time.Unix(int64(r.DateAcquired)*secondsPerDay, 0).UTC(),
		Locator:            r.BaseURL,
		CollectionNumber:   r.CollectionNumber,
		CollectionCategory: r.CollectionCategory,
		TotalSize:          r.TotalSize,
		North:              r.NorthLat,
		South:              r.SouthLat,
		West:               r.WestLon,
		East:               r.EastLon,
	}
	if r.CloudCover != nil {
		rec.CloudCover = landsat.Float(*r.CloudCover)
	}
	return rec
}

// snapshotWriter writes a snapshot to a temporary file that only becomes
// visible under its final name on commit.
type snapshotWriter struct {
	final string
	tmp   string
	file  source.ParquetFile
	pw    *writer.ParquetWriter
	rows  int
}

func newSnapshotWriter(final string) (*snapshotWriter, error) {
	tmp := fmt.Sprintf("%s.tmp-%d", final, time.Now().UnixNano())
	fw, err := local.NewLocalFileWriter(tmp)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", tmp, err)
	}
	pw, err := writer.NewParquetWriter(fw, new(snapshotRow), 2)
	if err != nil {
		fw.Close()
		os.Remove(tmp)
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	return &snapshotWriter{final: final, tmp: tmp, file: fw, pw: pw}, nil
}

func (w *snapshotWriter) write(row snapshotRow) error {
	if err := w.pw.Write(row); err != nil {
		return fmt.Errorf("write %s: %w", w.final, err)
	}
	w.rows++
	return nil
}

// finish flushes and closes the temporary file.
func (w *snapshotWriter) finish() error {
	if err := w.pw.WriteStop(); err != nil {
		w.file.Close()
		return fmt.Errorf("flush %s: %w", w.tmp, err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", w.tmp, err)
	}
	return nil
}

func (w *snapshotWriter) commit() error {
	if err := os.Rename(w.tmp, w.final); err != nil {
		return fmt.Errorf("swap %s: %w", w.final, err)
	}
	return nil
}

func (w *snapshotWriter) abort() {
	w.pw.WriteStop()
	w.file.Close()
	os.Remove(w.tmp)
}

const readBatch = 50000

// readSnapshot decodes a snapshot file into rows.
func readSnapshot(path string) ([]snapshotRow, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(snapshotRow), 4)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	defer pr.ReadStop()

	total := int(pr.GetNumRows())
	rows := make([]snapshotRow, 0, total)
	for len(rows) < total {
		n := total - len(rows)
		if n > readBatch {
			n = readBatch
		}
		batch := make([]snapshotRow, n)
		if err := pr.Read(&batch); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		rows = append(rows, batch...)
	}
	return rows, nil
}

// snapshot is the immutable in-memory form of one sensor's snapshot,
// partitioned by tile with each partition sorted by date then scene id.
type snapshot struct {
	sensor   landsat.Sensor
	tiles    map[landsat.PathRow][]landsat.SceneRecord
	rows     int
	dropped  int
	loadedAt time.Time
}

func buildSnapshot(sensor landsat.Sensor, rows []snapshotRow) *snapshot {
	snap := &snapshot{
		sensor:   sensor,
		tiles:    make(map[landsat.PathRow][]landsat.SceneRecord),
		rows:     len(rows),
		loadedAt: time.Now(),
	}
	for _, r := range rows {
		if !landsat.ValidProductID(r.ProductID) {
			snap.dropped++
			continue
		}
		rec := r.record()
		snap.tiles[rec.Tile] = append(snap.tiles[rec.Tile], rec)
	}
	for _, recs := range snap.tiles {
		sort.Slice(recs, func(i, j int) bool {
			if !recs[i].AcquisitionDate.Equal(recs[j].AcquisitionDate) {
				return recs[i].AcquisitionDate.Before(recs[j].AcquisitionDate)
			}
			return recs[i].SceneID < recs[j].SceneID
		})
	}
	return snap
}

// window returns copies of the tile's records acquired in [start, end).
func (s *snapshot) window(tile landsat.PathRow, start, end time.Time) []landsat.SceneRecord {
	recs := s.tiles[tile]
	lo := sort.Search(len(recs), func(i int) bool { return !recs[i].AcquisitionDate.Before(start) })
	hi := sort.Search(len(recs), func(i int) bool { return !recs[i].AcquisitionDate.Before(end) })
	if hi <= lo {
		return []landsat.SceneRecord{}
	}
	out := make([]landsat.SceneRecord, hi-lo)
	copy(out, recs[lo:hi])
	for i := range out {
		if out[i].CloudCover != nil {
			out[i].CloudCover = landsat.Float(*out[i].CloudCover)
		}
	}
	return out
}
