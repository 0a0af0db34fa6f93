package properties

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultIndexURL  = "https://storage.googleapis.com/gcp-public-data-landsat/index.csv.gz"
	DefaultMirrorURL = "https://storage.googleapis.com"
	DefaultWRS1URL   = "https://prd-wret.s3.us-west-2.amazonaws.com/assets/palladium/production/s3fs-public/atoms/files/WRS1_descending_0.zip"
	DefaultWRS2URL   = "https://prd-wret.s3.us-west-2.amazonaws.com/assets/palladium/production/s3fs-public/atoms/files/WRS2_descending_0.zip"
	DefaultGrpcPort  = 50051
	DefaultHTTPPort  = 8080
)

// Settings is the process environment. It is read once at startup and
// passed explicitly to the components that need it.
type Settings struct {
	RootPath  string
	IndexURL  string
	MirrorURL string
	WRS1URL   string
	WRS2URL   string

	Workers   int
	RateLimit float64
	Retries   int
	Timeout   time.Duration

	OAuthToken        string
	OAuthClientID     string
	OAuthClientSecret string
	OAuthTokenURL     string

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3Bucket    string
	S3UseSSL    bool

	LogLevel  string
	LogFormat string

	GrpcPort int
	HTTPPort int

	DiscordErrorURL   string
	DiscordSuccessURL string
}

// Load reads the given .env files (missing files are ignored) and then the
// process environment. Variables already set in the environment win.
func Load(envFiles ...string) (*Settings, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	s := &Settings{
		RootPath:          getenv("LANDSAT_ROOT", defaultRoot()),
		IndexURL:          getenv("LANDSAT_INDEX_URL", DefaultIndexURL),
		MirrorURL:         getenv("LANDSAT_MIRROR_URL", DefaultMirrorURL),
		WRS1URL:           getenv("LANDSAT_WRS1_URL", DefaultWRS1URL),
		WRS2URL:           getenv("LANDSAT_WRS2_URL", DefaultWRS2URL),
		OAuthToken:        os.Getenv("LANDSAT_OAUTH_TOKEN"),
		OAuthClientID:     os.Getenv("LANDSAT_OAUTH_CLIENT_ID"),
		OAuthClientSecret: os.Getenv("LANDSAT_OAUTH_CLIENT_SECRET"),
		OAuthTokenURL:     os.Getenv("LANDSAT_OAUTH_TOKEN_URL"),
		S3Endpoint:        os.Getenv("LANDSAT_S3_ENDPOINT"),
		S3AccessKey:       os.Getenv("LANDSAT_S3_ACCESS_KEY"),
		S3SecretKey:       os.Getenv("LANDSAT_S3_SECRET_KEY"),
		S3Region:          getenv("LANDSAT_S3_REGION", "us-west-2"),
		S3Bucket:          os.Getenv("LANDSAT_S3_BUCKET"),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		LogFormat:         getenv("LOG_FORMAT", "text"),
		DiscordErrorURL:   os.Getenv("DISCORD_ERROR_NOTIFICATION_URL"),
		DiscordSuccessURL: os.Getenv("DISCORD_SUCCESS_NOTIFICATION_URL"),
	}

	var err error
	if s.Workers, err = getInt("LANDSAT_WORKERS", 8); err != nil {
		return nil, err
	}
	if s.Retries, err = getInt("LANDSAT_RETRIES", 3); err != nil {
		return nil, err
	}
	if s.GrpcPort, err = getInt("LANDSAT_GRPC_PORT", DefaultGrpcPort); err != nil {
		return nil, err
	}
	if s.HTTPPort, err = getInt("LANDSAT_HTTP_PORT", DefaultHTTPPort); err != nil {
		return nil, err
	}
	if s.RateLimit, err = getFloat("LANDSAT_RATE_LIMIT", 10); err != nil {
		return nil, err
	}
	if s.S3UseSSL, err = getBool("LANDSAT_S3_SSL", true); err != nil {
		return nil, err
	}
	timeout := getenv("LANDSAT_TIMEOUT", "5m")
	if s.Timeout, err = time.ParseDuration(timeout); err != nil {
		return nil, fmt.Errorf("invalid LANDSAT_TIMEOUT %q: %w", timeout, err)
	}
	return s, nil
}

// MetadataDir holds index downloads and snapshots.
func (s *Settings) MetadataDir() string {
	return filepath.Join(s.RootPath, "metadata")
}

// BoundaryDir holds the WRS grid vector files.
func (s *Settings) BoundaryDir() string {
	return filepath.Join(s.RootPath, "wrs")
}

// ScenesDir is the default retrieval destination.
func (s *Settings) ScenesDir() string {
	return filepath.Join(s.RootPath, "scenes")
}

func defaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".landsat"
	}
	return filepath.Join(home, ".landsat")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func getFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return f, nil
}

func getBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}
