// Package downloader fetches product images over HTTP and writes them to
// disk, throttling after each successful download.
package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/aluiziolira/go-scrape-popcultcha/config"
)

// Result describes the outcome of a single image download. A non-success
// HTTP status leaves Err nil; StatusCode carries the cause.
type Result struct {
	URL        string
	Path       string
	StatusCode int
	Bytes      int64
	Written    bool
	Err        error
}

// ImageDownloader issues image GETs with the configured user agent and
// applies a fixed post-download delay.
type ImageDownloader struct {
	client    *http.Client
	userAgent string
	delay     time.Duration
	sleep     func(time.Duration)
}

// New builds a downloader from cfg. A zero download delay disables the
// throttle.
func New(cfg *config.Config) *ImageDownloader {
	return &ImageDownloader{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		userAgent: cfg.UserAgent,
		delay:     cfg.DownloadDelay,
		sleep:     time.Sleep,
	}
}

// WithTransport replaces the HTTP transport used for downloads.
func (d *ImageDownloader) WithTransport(rt http.RoundTripper) {
	d.client.Transport = rt
}

// WithSleeper replaces the sleep function applied after successful
// downloads, so tests can run without wall-clock waits.
func (d *ImageDownloader) WithSleeper(sleep func(time.Duration)) {
	if sleep != nil {
		d.sleep = sleep
	}
}

// Download fetches imageURL and writes the response body to destPath,
// creating or overwriting the file. Only a 200 response produces a file; any
// other status produces no file and no error. The throttle delay runs only
// after a successful write.
func (d *ImageDownloader) Download(ctx context.Context, imageURL, destPath string) Result {
	result := Result{URL: imageURL, Path: destPath}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		result.Err = fmt.Errorf("build request: %w", err)
		return result
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		result.Err = fmt.Errorf("fetch image: %w", err)
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	if resp.StatusCode != http.StatusOK {
		return result
	}

	file, err := os.Create(destPath)
	if err != nil {
		result.Err = fmt.Errorf("create %s: %w", destPath, err)
		return result
	}

	written, err := io.Copy(file, resp.Body)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(destPath)
		result.Err = fmt.Errorf("write %s: %w", destPath, err)
		return result
	}

	result.Bytes = written
	result.Written = true
	if d.delay > 0 {
		d.sleep(d.delay)
	}
	return result
}
