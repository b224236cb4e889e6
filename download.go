package divisions

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DownloadOpts configures an image download.
type DownloadOpts struct {
	MaxBytes  int64         // max response body size (default: 10MiB)
	MinBytes  int           // reject if smaller (default: 0)
	Timeout   time.Duration // per-request timeout (default: 20s)
	UserAgent string        // override config user agent
}

const (
	defaultMaxBytes = 10 << 20 // 10MiB
	defaultTimeout  = 20 * time.Second
)

// DownloadResult holds downloaded image data.
type DownloadResult struct {
	Data     []byte
	MIMEType string
}

// Download fetches an image from url. Tries cfg.StealthClient first (if set),
// falls back to cfg.HTTPClient.
// Returns nil result (not error) on recoverable failures (404, timeout, empty
// body) so callers can treat the photo as missing.
func (cfg *Config) Download(ctx context.Context, url string, opts DownloadOpts) (*DownloadResult, error) {
	cfg.defaults()

	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxBytes
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = cfg.UserAgent
	}

	if cfg.StealthClient != nil {
		r, err := fetchImageData(ctx, cfg.StealthClient, url, ua, opts)
		if err == nil {
			return r, nil
		}
		cfg.Logger.Debug("divisions: stealth download failed, retrying with default client", "url", url, "error", err.Error())
	}

	r, err := fetchImageData(ctx, cfg.HTTPClient, url, ua, opts)
	if err != nil {
		cfg.Logger.Debug("divisions: download failed", "url", url, "error", err.Error())
		return nil, nil
	}
	return r, nil
}

func fetchImageData(ctx context.Context, client *http.Client, imageURL, ua string, opts DownloadOpts) (*DownloadResult, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", ua)

	resp, err := client.Do(req) //nolint:gosec // G704: caller supplies the URL
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, opts.MaxBytes))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || len(data) < opts.MinBytes {
		return nil, fmt.Errorf("body too small: %d bytes", len(data))
	}

	return &DownloadResult{Data: data, MIMEType: mimeType(resp.Header.Get("Content-Type"), data)}, nil
}

// mimeType strips parameters from the Content-Type header and sniffs the body
// when the server did not report an image type.
func mimeType(header string, data []byte) string {
	ct := header
	// "image/jpeg; charset=utf-8" → "image/jpeg"
	if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = ct[:idx]
	}
	ct = strings.TrimSpace(ct)
	if strings.HasPrefix(ct, "image/") {
		return ct
	}
	return http.DetectContentType(data)
}
