// Package httptools downloads files over HTTP with retries and
// checksum verification, and tracks batch downloads in a SQLite
// database so interrupted runs can resume.
package httptools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dotysan/rsgislib/pkg/errors"
	"github.com/dotysan/rsgislib/pkg/log"
	"github.com/dotysan/rsgislib/tools/filetools"
)

const (
	// DefaultRetries applied when DownloadOpts leaves Retries at zero.
	DefaultRetries = 10
	// incompleteSuffix marks in-flight downloads; the file is renamed
	// into place only after it is complete and verified.
	incompleteSuffix = ".incomplete"
)

// DownloadOpts configures DownloadFile.
type DownloadOpts struct {
	// Retries is the number of attempts before giving up.
	Retries int
	// RetryDelay between attempts.
	RetryDelay time.Duration
	// MD5 is the expected checksum; empty skips verification.
	MD5 string
	// Overwrite re-downloads even when the target already exists.
	Overwrite bool
	// UserAgent sent with each request; empty keeps the Go default.
	UserAgent string
	// Client used for the requests. Defaults to a client with a
	// 10-minute timeout.
	Client *http.Client
}

func (o *DownloadOpts) fillDefaults() {
	if o.Retries <= 0 {
		o.Retries = DefaultRetries
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 5 * time.Second
	}
	if o.Client == nil {
		o.Client = &http.Client{Timeout: 10 * time.Minute}
	}
}

// CheckURLExists probes a URL with a HEAD request.
func CheckURLExists(ctx context.Context, url string, client *http.Client) (bool, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, errors.Wrap(err, "httptools: bad URL")
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, errors.Wrap(err, "httptools: HEAD request failed")
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 400, nil
}

// DownloadFile fetches a URL to outPath. The transfer goes to a
// .incomplete side file which is renamed into place after the checksum
// (when given) verifies, so a crash never leaves a plausible-looking
// partial file.
func DownloadFile(ctx context.Context, url, outPath string, opts DownloadOpts) error {
	opts.fillDefaults()
	logger := log.GetLoggerWithName("httptools.download")

	if !opts.Overwrite && filetools.FileExists(outPath) {
		logger.Debug("Target already present", log.FileKey, outPath)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return errors.NewFileIOError("DownloadFile", outPath, err)
	}

	var lastErr error
	for attempt := 1; attempt <= opts.Retries; attempt++ {
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "httptools: download cancelled")
		default:
		}

		lastErr = downloadOnce(ctx, &opts, url, outPath)
		if lastErr == nil {
			logger.Info("Download complete",
				log.URLKey, url,
				log.FileKey, outPath,
				log.AttemptKey, attempt,
			)
			return nil
		}

		logger.Warn("Download attempt failed",
			log.URLKey, url,
			log.AttemptKey, attempt,
			log.ErrAttrKey, lastErr,
		)
		if attempt < opts.Retries {
			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), "httptools: download cancelled")
			case <-time.After(opts.RetryDelay):
			}
		}
	}
	return errors.Wrapf(lastErr, "httptools: %s failed after %d attempts", url, opts.Retries)
}

func downloadOnce(ctx context.Context, opts *DownloadOpts, url, outPath string) error {
	tmpPath := outPath + incompleteSuffix
	defer os.Remove(tmpPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "httptools: bad URL")
	}
	if opts.UserAgent != "" {
		req.Header.Set("User-Agent", opts.UserAgent)
	}
	resp, err := opts.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	out, err := os.Create(tmpPath)
	if err != nil {
		return errors.NewFileIOError("DownloadFile", tmpPath, err)
	}
	written, err := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if err != nil {
		return err
	}
	if closeErr != nil {
		return errors.NewFileIOError("DownloadFile", tmpPath, closeErr)
	}
	if resp.ContentLength > 0 && written != resp.ContentLength {
		return fmt.Errorf("short read: %d of %d bytes", written, resp.ContentLength)
	}

	if opts.MD5 != "" {
		got, err := filetools.GetMD5Hash(tmpPath)
		if err != nil {
			return err
		}
		if got != opts.MD5 {
			return errors.Wrapf(errors.ErrChecksumMismatch, "got %s, want %s", got, opts.MD5)
		}
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return errors.NewFileIOError("DownloadFile", outPath, err)
	}
	return nil
}
