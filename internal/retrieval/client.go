package retrieval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

// Auth configures optional credentials for the mirror. A static token wins
// over client credentials.
type Auth struct {
	Token        string
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// HTTPClient returns a client that authenticates with auth, or base itself
// when auth is empty.
func (a Auth) HTTPClient(ctx context.Context, base *http.Client) *http.Client {
	if base == nil {
		base = http.DefaultClient
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	switch {
	case a.Token != "":
		return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: a.Token, TokenType: "Bearer"}))
	case a.ClientID != "" && a.ClientSecret != "" && a.TokenURL != "":
		cfg := &clientcredentials.Config{
			ClientID:     a.ClientID,
			ClientSecret: a.ClientSecret,
			TokenURL:     a.TokenURL,
		}
		return cfg.Client(ctx)
	}
	return base
}

// statusError is a non-200 answer from the mirror.
type statusError struct {
	url  string
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.url, e.code)
}

func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Downloader writes remote files to disk through a shared rate limit,
// retrying transient failures with exponential backoff.
type Downloader struct {
	client  *http.Client
	limiter *rate.Limiter
	retries int
	backoff time.Duration
}

// NewDownloader limits requests to perSecond (unlimited when zero or less).
func NewDownloader(client *http.Client, perSecond float64, retries int) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if retries < 0 {
		retries = 0
	}
	return &Downloader{
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		retries: retries,
		backoff: 500 * time.Millisecond,
	}
}

// Download fetches url into path. The file only appears under its final
// name once complete.
func (d *Downloader) Download(ctx context.Context, url, path string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	var lastErr error
	for attempt := 0; attempt <= d.retries; attempt++ {
		if attempt > 0 {
			wait := d.backoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(wait):
			}
		}
		if err := d.limiter.Wait(ctx); err != nil {
			return 0, fmt.Errorf("rate limiter: %w", err)
		}
		n, err := d.once(ctx, url, path)
		if err == nil {
			return n, nil
		}
		lastErr = err
		if !retryable(err) {
			return 0, err
		}
	}
	return 0, fmt.Errorf("giving up after %d attempts: %w", d.retries+1, lastErr)
}

func (d *Downloader) once(ctx context.Context, url, path string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return 0, &statusError{url: url, code: resp.StatusCode}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("GET %s: %w", url, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return 0, err
	}
	return n, nil
}
