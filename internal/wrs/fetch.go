package wrs

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgketchum/Landsat578/internal/landsat"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
)

// BoundaryFetcher makes the boundary dataset of a grid available under dir
// and returns the vector file to read.
type BoundaryFetcher interface {
	FetchBoundaries(ctx context.Context, grid landsat.Grid, dir string) (string, error)
}

// HTTPFetcher downloads grid boundaries, either a zipped shapefile as
// published by USGS or a plain GeoJSON file.
type HTTPFetcher struct {
	Client   *http.Client
	URLs     map[landsat.Grid]string
	Logger   zerolog.Logger
	Progress bool
}

func (f *HTTPFetcher) FetchBoundaries(ctx context.Context, grid landsat.Grid, dir string) (string, error) {
	url, ok := f.URLs[grid]
	if !ok || url == "" {
		return "", fmt.Errorf("no download location configured for %s", grid)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create boundary directory: %w", err)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	f.Logger.Info().Str("grid", string(grid)).Str("url", url).Msg("downloading tile boundaries")
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s boundaries: %w", grid, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s boundaries: unexpected status %d", grid, resp.StatusCode)
	}

	isZip := strings.HasSuffix(strings.ToLower(url), ".zip") || resp.Header.Get("Content-Type") == "application/zip"
	ext := ".geojson"
	if isZip {
		ext = ".zip"
	}
	target := filepath.Join(dir, string(grid)+ext)
	tmp := target + ".tmp"

	out, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	var w io.Writer = out
	if f.Progress {
		w = io.MultiWriter(out, progressbar.DefaultBytes(resp.ContentLength, "downloading "+string(grid)+" grid"))
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		out.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("download %s boundaries: %w", grid, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if !isZip {
		return target, nil
	}

	extracted := filepath.Join(dir, string(grid))
	if err := extractZip(target, extracted); err != nil {
		return "", err
	}
	os.Remove(target)
	path, ok := findVectorFile(extracted)
	if !ok {
		return "", fmt.Errorf("no vector dataset in %s archive", grid)
	}
	return path, nil
}

func extractZip(archive, dest string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("open %s: %w", archive, err)
	}
	defer r.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	root := filepath.Clean(dest) + string(os.PathSeparator)
	for _, zf := range r.File {
		target := filepath.Join(dest, zf.Name)
		if !strings.HasPrefix(target, root) {
			return fmt.Errorf("illegal path %q in %s", zf.Name, archive)
		}
		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := extractZipFile(zf, target); err != nil {
			return err
		}
	}
	return nil
}

func extractZipFile(zf *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	src, err := zf.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

var vectorExtensions = []string{".shp", ".gpkg", ".geojson", ".json"}

// findVectorFile returns the first vector dataset under dir, preferring
// shapefiles.
func findVectorFile(dir string) (string, bool) {
	found := map[string]string{}
	filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if _, seen := found[ext]; !seen {
			found[ext] = path
		}
		return nil
	})
	for _, ext := range vectorExtensions {
		if p, ok := found[ext]; ok {
			return p, true
		}
	}
	return "", false
}
