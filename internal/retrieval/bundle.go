package retrieval

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

func isBundle(url string) bool {
	return strings.HasSuffix(url, ".tar.gz") || strings.HasSuffix(url, ".tgz")
}

// extractTarGz unpacks the regular files of a gzipped tar archive into dest
// and returns their paths. Entries escaping dest are rejected.
func extractTarGz(archive, dest string) ([]string, error) {
	f, err := os.Open(archive)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open bundle %s: %w", filepath.Base(archive), err)
	}
	defer gz.Close()

	root := filepath.Clean(dest) + string(os.PathSeparator)
	var files []string
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return files, fmt.Errorf("read bundle %s: %w", filepath.Base(archive), err)
		}
		target := filepath.Join(dest, hdr.Name)
		if !strings.HasPrefix(target, root) {
			return files, fmt.Errorf("bundle entry %q escapes %s", hdr.Name, dest)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return files, err
			}
		case tar.TypeReg:
			if err := writeEntry(tr, target); err != nil {
				return files, err
			}
			files = append(files, target)
		}
	}
	return files, nil
}

func writeEntry(r io.Reader, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
