package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgketchum/Landsat578/internal/landsat"
	"github.com/dgketchum/Landsat578/internal/retrieval"
	"github.com/gocarina/gocsv"
)

// SceneRow is one line of a scene list export.
type SceneRow struct {
	SceneID    string `csv:"SCENE_ID"`
	ProductID  string `csv:"PRODUCT_ID"`
	Spacecraft string `csv:"SPACECRAFT_ID"`
	Path       int    `csv:"WRS_PATH"`
	Row        int    `csv:"WRS_ROW"`
	Date       string `csv:"DATE_ACQUIRED"`
	CloudCover string `csv:"CLOUD_COVER"`
	LowCloud   bool   `csv:"LOW_CLOUD"`
	Locator    string `csv:"BASE_URL"`
}

// OutcomeRow is one line of a download report.
type OutcomeRow struct {
	RunID       string `csv:"run_id"`
	SceneID     string `csv:"scene_id"`
	Status      string `csv:"status"`
	Destination string `csv:"destination"`
	Files       int    `csv:"files"`
	Reason      string `csv:"reason"`
	FinishedAt  string `csv:"finished_at"`
}

func cloud(r landsat.SceneRecord) string {
	if r.CloudCover == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", *r.CloudCover)
}

// SceneRows flattens records, flagging those under the cloud ceiling.
func SceneRows(recs []landsat.SceneRecord, ceiling float64) []*SceneRow {
	rows := make([]*SceneRow, len(recs))
	for i, r := range recs {
		rows[i] = &SceneRow{
			SceneID:    r.SceneID,
			ProductID:  r.ProductID,
			Spacecraft: string(r.Sensor),
			Path:       r.Tile.Path,
			Row:        r.Tile.Row,
			Date:       r.Date(),
			CloudCover: cloud(r),
			LowCloud:   r.CloudBelow(ceiling),
			Locator:    r.Locator,
		}
	}
	return rows
}

func WriteScenes(w io.Writer, recs []landsat.SceneRecord, ceiling float64) error {
	rows := SceneRows(recs, ceiling)
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("write scene list: %w", err)
	}
	return nil
}

// WriteSceneIDs writes one scene id per line, the plain list mode output.
func WriteSceneIDs(w io.Writer, recs []landsat.SceneRecord) error {
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.SceneID
	}
	if len(ids) == 0 {
		return nil
	}
	_, err := io.WriteString(w, strings.Join(ids, "\n")+"\n")
	return err
}

func OutcomeRows(runID string, outcomes []retrieval.Outcome, now time.Time) []*OutcomeRow {
	rows := make([]*OutcomeRow, len(outcomes))
	for i, o := range outcomes {
		rows[i] = &OutcomeRow{
			RunID:       runID,
			SceneID:     o.Scene.SceneID,
			Status:      string(o.Status),
			Destination: o.Destination,
			Files:       len(o.Files),
			Reason:      o.Reason,
			FinishedAt:  now.UTC().Format(time.RFC3339),
		}
	}
	return rows
}

// AppendOutcomes adds a batch to the report at path, writing the header
// only when the file is new.
func AppendOutcomes(path, runID string, outcomes []retrieval.Outcome, now time.Time) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	_, statErr := os.Stat(path)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	rows := OutcomeRows(runID, outcomes, now)
	if os.IsNotExist(statErr) {
		err = gocsv.MarshalFile(&rows, file)
	} else {
		err = gocsv.MarshalWithoutHeaders(&rows, file)
	}
	if err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}

// ReadOutcomes loads a report written by AppendOutcomes.
func ReadOutcomes(path string) ([]*OutcomeRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	var rows []*OutcomeRow
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, fmt.Errorf("read report %s: %w", path, err)
	}
	return rows, nil
}
