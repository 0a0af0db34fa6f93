package retrieval

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 answers the subset of the S3 API used by S3Fetcher: ListObjectsV2,
// HEAD and GET on a single bucket.
type fakeS3 struct {
	*httptest.Server
	bucket  string
	objects map[string]string
	gets    atomic.Int32
}

func newFakeS3(t *testing.T, bucket string, objects map[string]string) *fakeS3 {
	t.Helper()
	s := &fakeS3{bucket: bucket, objects: objects}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

const lastModified = "Mon, 10 Mar 2017 12:00:00 GMT"

func (s *fakeS3) serve(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	bucket, key, _ := strings.Cut(path, "/")
	if bucket != s.bucket {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if key == "" && r.URL.Query().Get("list-type") == "2" {
		s.list(w, r.URL.Query().Get("prefix"))
		return
	}
	body, ok := s.objects[key]
	if !ok {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message><Key>%s</Key></Error>`, key)
		return
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Header().Set("ETag", `"9b2cf535f27731c974343645a3985328-1"`)
	w.Header().Set("Last-Modified", lastModified)
	w.Header().Set("Content-Type", "application/octet-stream")
	if r.Method == http.MethodHead {
		return
	}
	s.gets.Add(1)
	w.Write([]byte(body))
}

func (s *fakeS3) list(w http.ResponseWriter, prefix string) {
	var keys []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString(`<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">`)
	fmt.Fprintf(&b, "<Name>%s</Name><Prefix>%s</Prefix><KeyCount>%d</KeyCount><MaxKeys>1000</MaxKeys><IsTruncated>false</IsTruncated>",
		s.bucket, prefix, len(keys))
	for _, k := range keys {
		fmt.Fprintf(&b, `<Contents><Key>%s</Key><LastModified>2017-03-10T12:00:00.000Z</LastModified><ETag>"9b2cf535f27731c974343645a3985328-1"</ETag><Size>%d</Size><StorageClass>STANDARD</StorageClass></Contents>`,
			k, len(s.objects[k]))
	}
	b.WriteString(`</ListBucketResult>`)
	w.Header().Set("Content-Type", "application/xml")
	w.Write([]byte(b.String()))
}

func newTestS3Fetcher(t *testing.T, s *fakeS3) *S3Fetcher {
	t.Helper()
	f, err := NewS3Fetcher(S3Config{
		Endpoint:  s.URL,
		AccessKey: "access",
		SecretKey: "secret",
		Region:    "us-east-1",
		Bucket:    s.bucket,
	}, zerolog.Nop())
	require.NoError(t, err)
	return f
}

func TestS3FetchDeliversThenSkips(t *testing.T) {
	prefix := "LC08/01/039/027/LC08_L1TP_039027_20130531_20170310_01_T1/"
	s := newFakeS3(t, "landsat-mirror", map[string]string{
		prefix + "LC08_L1TP_039027_20130531_20170310_01_T1_B1.TIF":  "band one",
		prefix + "LC08_L1TP_039027_20130531_20170310_01_T1_MTL.txt": "metadata",
		"LC08/01/039/027/OTHER/OTHER_B1.TIF":                        "unrelated",
	})
	f := newTestS3Fetcher(t, s)
	dest := filepath.Join(t.TempDir(), "scene")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	out := f.Fetch(ctx, l8Scene(t), dest)
	require.Equal(t, StatusDelivered, out.Status, out.Reason)
	assert.Equal(t, []string{
		filepath.Join(dest, "LC08_L1TP_039027_20130531_20170310_01_T1_B1.TIF"),
		filepath.Join(dest, "LC08_L1TP_039027_20130531_20170310_01_T1_MTL.txt"),
	}, out.Files)
	data, err := os.ReadFile(out.Files[1])
	require.NoError(t, err)
	assert.Equal(t, "metadata", string(data))
	assert.Equal(t, int32(2), s.gets.Load())

	again := f.Fetch(ctx, l8Scene(t), dest)
	assert.Equal(t, StatusAlreadyPresent, again.Status)
	assert.Equal(t, int32(2), s.gets.Load())
}

func TestS3FetchMissingScene(t *testing.T) {
	s := newFakeS3(t, "landsat-mirror", map[string]string{})
	f := newTestS3Fetcher(t, s)

	out := f.Fetch(context.Background(), l8Scene(t), t.TempDir())
	assert.Equal(t, StatusFailed, out.Status)
	assert.Contains(t, out.Reason, "no objects under s3://landsat-mirror/LC08/01/039/027/")
}

func TestS3FetchRejectsKeysOutsideScene(t *testing.T) {
	prefix := "LC08/01/039/027/LC08_L1TP_039027_20130531_20170310_01_T1/"
	s := newFakeS3(t, "landsat-mirror", map[string]string{
		prefix + "LC08_L1TP_039027_20130531_20170310_01_T1_B1.TIF": "band one",
		prefix + "../../escape.txt":                                 "outside",
	})
	f := newTestS3Fetcher(t, s)
	parent := t.TempDir()
	dest := filepath.Join(parent, "a", "scene")

	out := f.Fetch(context.Background(), l8Scene(t), dest)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Contains(t, out.Reason, "outside the scene directory")
	assert.Equal(t, int32(0), s.gets.Load(), "nothing is fetched once a key escapes")
	assert.NoFileExists(t, filepath.Join(parent, "escape.txt"))
}

func TestObjectPrefix(t *testing.T) {
	p, err := objectPrefix("gs://gcp-public-data-landsat/LC08/01/039/027/X")
	require.NoError(t, err)
	assert.Equal(t, "LC08/01/039/027/X/", p)

	p, err = objectPrefix("s3://bucket/a/b/")
	require.NoError(t, err)
	assert.Equal(t, "a/b/", p)

	_, err = objectPrefix("gs://bucket-only")
	assert.Error(t, err)
	_, err = objectPrefix("https://example.com/x")
	assert.Error(t, err)
}

func TestNewS3FetcherValidates(t *testing.T) {
	_, err := NewS3Fetcher(S3Config{Bucket: "b"}, zerolog.Nop())
	assert.Error(t, err)
	_, err = NewS3Fetcher(S3Config{Endpoint: "localhost:9000"}, zerolog.Nop())
	assert.Error(t, err)
}
