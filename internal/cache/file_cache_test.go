package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manifest struct {
	Rows   int    `json:"rows"`
	Source string `json:"source"`
}

func TestFileCacheSetGet(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	fc := NewFileCache[manifest](dir)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	fc.now = func() time.Time { return fixed }

	_, ok := fc.Get("LANDSAT_8")
	assert.False(t, ok)

	require.NoError(t, fc.Set("LANDSAT_8", manifest{Rows: 42, Source: "index.csv.gz"}))

	got, ok := fc.Get("LANDSAT_8")
	require.True(t, ok)
	assert.Equal(t, manifest{Rows: 42, Source: "index.csv.gz"}, got)

	entry, ok := fc.Entry("LANDSAT_8")
	require.True(t, ok)
	assert.Equal(t, fixed, entry.CreatedAt)

	_, err := os.Stat(filepath.Join(dir, "LANDSAT_8.json.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestFileCacheRejectsTamperedEntry(t *testing.T) {
	dir := t.TempDir()
	fc := NewFileCache[manifest](dir)
	require.NoError(t, fc.Set("k", manifest{Rows: 1}))

	path := filepath.Join(dir, "k.json")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	doc["data"] = map[string]any{"rows": 2, "source": ""}
	tampered, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, tampered, 0o644))

	_, ok := fc.Get("k")
	assert.False(t, ok)
}

func TestFileCacheDelete(t *testing.T) {
	fc := NewFileCache[manifest](t.TempDir())
	require.NoError(t, fc.Set("k", manifest{Rows: 1}))
	require.NoError(t, fc.Delete("k"))
	_, ok := fc.Get("k")
	assert.False(t, ok)
	assert.NoError(t, fc.Delete("k"))
}

func TestGenerateKeyStable(t *testing.T) {
	fc := NewFileCache[manifest](t.TempDir())
	a := fc.GenerateKey("LANDSAT_5", 37, 27)
	assert.Equal(t, a, fc.GenerateKey("LANDSAT_5", 37, 27))
	assert.NotEqual(t, a, fc.GenerateKey("LANDSAT_5", 37, 28))
	assert.Len(t, a, 40)
}
