package cache

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Entry[T any] struct {
	Data      T         `json:"data"`
	CreatedAt time.Time `json:"created_at"`
	Checksum  string    `json:"checksum"`
}

// FileCache stores one JSON document per key. Writes go to a temporary file
// that is renamed into place, so readers see either the old or the new entry.
type FileCache[T any] struct {
	dir string
	now func() time.Time
}

func NewFileCache[T any](dir string) *FileCache[T] {
	return &FileCache[T]{dir: dir, now: time.Now}
}

// GenerateKey hashes params into a file-safe key.
func (fc *FileCache[T]) GenerateKey(params ...interface{}) string {
	var keyData string
	for _, param := range params {
		keyData += fmt.Sprintf("%v_", param)
	}
	h := sha1.New()
	h.Write([]byte(keyData))
	return hex.EncodeToString(h.Sum(nil))
}

func (fc *FileCache[T]) Get(key string) (T, bool) {
	entry, ok := fc.Entry(key)
	return entry.Data, ok
}

// Entry returns the stored entry including its creation time. Entries whose
// checksum does not match their data are treated as missing.
func (fc *FileCache[T]) Entry(key string) (Entry[T], bool) {
	var zero Entry[T]
	data, err := os.ReadFile(fc.path(key))
	if err != nil {
		return zero, false
	}

	var entry Entry[T]
	if err := json.Unmarshal(data, &entry); err != nil {
		return zero, false
	}
	if entry.Checksum != checksum(entry.Data) {
		return zero, false
	}
	return entry, true
}

func (fc *FileCache[T]) Set(key string, data T) error {
	if err := os.MkdirAll(fc.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	entry := Entry[T]{
		Data:      data,
		CreatedAt: fc.now().UTC(),
		Checksum:  checksum(data),
	}
	jsonData, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	cacheFile := fc.path(key)
	tmpFile := cacheFile + ".tmp"
	if err := os.WriteFile(tmpFile, jsonData, 0o644); err != nil {
		return fmt.Errorf("failed to write temp cache file: %w", err)
	}
	if err := os.Rename(tmpFile, cacheFile); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename temp cache file: %w", err)
	}
	return nil
}

func (fc *FileCache[T]) Delete(key string) error {
	err := os.Remove(fc.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

func (fc *FileCache[T]) path(key string) string {
	return filepath.Join(fc.dir, key+".json")
}

func checksum[T any](data T) string {
	jsonData, _ := json.Marshal(data)
	hash := md5.Sum(jsonData)
	return hex.EncodeToString(hash[:])
}
