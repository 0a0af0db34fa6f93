package retrieval

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dgketchum/Landsat578/internal/landsat"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
}

// S3Fetcher copies scenes from an S3 compatible bucket that mirrors the
// archive layout, i.e. the object prefix of a scene is its locator path.
type S3Fetcher struct {
	client *minio.Client
	bucket string
	logger zerolog.Logger
}

func NewS3Fetcher(cfg S3Config, logger zerolog.Logger) (*S3Fetcher, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	endpoint, useSSL := cfg.Endpoint, cfg.UseSSL
	if u, err := url.Parse(cfg.Endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}
	opts := &minio.Options{
		Secure: useSSL,
		Region: cfg.Region,
	}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		opts.Creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	} else {
		opts.Creds = credentials.NewEnvAWS()
	}
	client, err := minio.New(endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &S3Fetcher{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

// objectPrefix strips the scheme and source bucket from a gs:// or s3://
// locator.
func objectPrefix(locator string) (string, error) {
	for _, scheme := range []string{"gs://", "s3://"} {
		if rest, ok := strings.CutPrefix(locator, scheme); ok {
			_, key, found := strings.Cut(strings.Trim(rest, "/"), "/")
			if !found || key == "" {
				return "", fmt.Errorf("locator %q has no object path", locator)
			}
			return key + "/", nil
		}
	}
	return "", fmt.Errorf("unsupported locator %q", locator)
}

func (f *S3Fetcher) Fetch(ctx context.Context, scene landsat.SceneRecord, dest string) Outcome {
	prefix, err := objectPrefix(scene.Locator)
	if err != nil {
		return Failed(scene, dest, err.Error())
	}

	var objects []minio.ObjectInfo
	for obj := range f.client.ListObjects(ctx, f.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return Failed(scene, dest, fmt.Sprintf("list s3://%s/%s: %v", f.bucket, prefix, obj.Err))
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		objects = append(objects, obj)
	}
	if len(objects) == 0 {
		return Failed(scene, dest, fmt.Sprintf("no objects under s3://%s/%s", f.bucket, prefix))
	}

	// every key must land inside dest before anything is fetched
	root := filepath.Clean(dest) + string(os.PathSeparator)
	files := make([]string, len(objects))
	for i, obj := range objects {
		target := filepath.Join(dest, filepath.FromSlash(path.Clean(strings.TrimPrefix(obj.Key, prefix))))
		if !strings.HasPrefix(target, root) {
			return Failed(scene, dest, fmt.Sprintf("object %s resolves outside the scene directory", obj.Key))
		}
		files[i] = target
	}

	fetched := 0
	for i, obj := range objects {
		target := files[i]
		if st, err := os.Stat(target); err == nil && st.Size() == obj.Size {
			continue
		}
		if err := f.client.FGetObject(ctx, f.bucket, obj.Key, target, minio.GetObjectOptions{}); err != nil {
			return Failed(scene, dest, fmt.Sprintf("get s3://%s/%s: %v", f.bucket, obj.Key, err))
		}
		fetched++
		f.logger.Debug().Str("scene", scene.SceneID).Str("key", obj.Key).Int64("bytes", obj.Size).Msg("downloaded")
	}
	if fetched == 0 {
		return AlreadyPresent(scene, dest, files)
	}
	return Delivered(scene, dest, files)
}
