package retrieval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dgketchum/Landsat578/internal/landsat"
	"github.com/gammazero/workerpool"
	"github.com/rs/zerolog"
)

// MirrorFetcher downloads scenes from a public HTTP mirror of the archive
// bucket, one file per band.
type MirrorFetcher struct {
	BaseURL    string
	Downloader *Downloader
	// Workers bounds the concurrent file downloads of one scene.
	Workers int
	Logger  zerolog.Logger
}

// SceneURL maps a gs:// locator onto the mirror. http(s) locators are used
// as they are.
func (f *MirrorFetcher) SceneURL(locator string) (string, error) {
	switch {
	case strings.HasPrefix(locator, "http://"), strings.HasPrefix(locator, "https://"):
		return strings.TrimSuffix(locator, "/"), nil
	case strings.HasPrefix(locator, "gs://"):
		return strings.TrimSuffix(f.BaseURL, "/") + "/" + strings.Trim(strings.TrimPrefix(locator, "gs://"), "/"), nil
	}
	return "", fmt.Errorf("unsupported locator %q", locator)
}

func (f *MirrorFetcher) Fetch(ctx context.Context, scene landsat.SceneRecord, dest string) Outcome {
	base, err := f.SceneURL(scene.Locator)
	if err != nil {
		return Failed(scene, dest, err.Error())
	}
	if isBundle(base) {
		return f.fetchBundle(ctx, scene, base, dest)
	}

	names := SceneFiles(scene)
	if len(names) == 0 {
		return Failed(scene, dest, fmt.Sprintf("no band files known for %s", scene.Sensor))
	}
	files := make([]string, len(names))
	var missing []int
	for i, name := range names {
		files[i] = filepath.Join(dest, name)
		if !present(files[i]) {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return AlreadyPresent(scene, dest, files)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return Failed(scene, dest, err.Error())
	}

	workers := f.Workers
	if workers < 1 {
		workers = 1
	}
	wp := workerpool.New(workers)
	var (
		mu       sync.Mutex
		firstErr error
		failures int
	)
	for _, i := range missing {
		url := base + "/" + names[i]
		path := files[i]
		wp.Submit(func() {
			if ctx.Err() != nil {
				return
			}
			n, err := f.Downloader.Download(ctx, url, path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			f.Logger.Debug().Str("scene", scene.SceneID).Str("file", filepath.Base(path)).Int64("bytes", n).Msg("downloaded")
		})
	}
	wp.StopWait()

	if firstErr == nil && ctx.Err() != nil {
		firstErr = ctx.Err()
	}
	if firstErr != nil {
		reason := firstErr.Error()
		if failures > 1 {
			reason = fmt.Sprintf("%s (and %d more files)", reason, failures-1)
		}
		return Failed(scene, dest, reason)
	}
	return Delivered(scene, dest, files)
}

// fetchBundle downloads a compressed scene archive and unpacks it into dest.
func (f *MirrorFetcher) fetchBundle(ctx context.Context, scene landsat.SceneRecord, url, dest string) Outcome {
	marker := filepath.Join(dest, ".complete")
	if _, err := os.Stat(marker); err == nil {
		files, err := listFiles(dest)
		if err == nil {
			return AlreadyPresent(scene, dest, files)
		}
	}
	archive := filepath.Join(dest, filepath.Base(url))
	if _, err := f.Downloader.Download(ctx, url, archive); err != nil {
		return Failed(scene, dest, err.Error())
	}
	files, err := extractTarGz(archive, dest)
	os.Remove(archive)
	if err != nil {
		return Failed(scene, dest, err.Error())
	}
	if err := os.WriteFile(marker, nil, 0o644); err != nil {
		return Failed(scene, dest, err.Error())
	}
	return Delivered(scene, dest, files)
}

func present(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular() && st.Size() > 0
}

// listFiles returns the regular files under dir except bookkeeping files.
func listFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && !strings.HasPrefix(d.Name(), ".") {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
