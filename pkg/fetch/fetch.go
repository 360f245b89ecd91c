// Package fetch is the shared HTTP layer: JSON API calls and streaming
// artifact downloads with progress reporting.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/serverkit/serverkit/pkg/telemetry"
)

// userAgent identifies the tool to upstream APIs.
const userAgent = "serverkit (+https://github.com/serverkit/serverkit)"

// StatusError is returned for non-2xx responses so callers can branch
// on the code (404 vs 410 vs everything else).
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d", e.URL, e.Code)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// Fetcher performs all network IO for one run. Downloads are fully
// sequential; the fetcher is not safe for concurrent use.
type Fetcher struct {
	client      *http.Client
	githubToken string
	tempDir     string
	log         *telemetry.Logger
}

// New creates a fetcher. The github token, when non-empty, is attached
// as a bearer token to requests against github hosts only.
func New(githubToken string, log *telemetry.Logger) *Fetcher {
	return &Fetcher{
		// Downloads can be large; the per-request context carries any
		// deadline instead of a client-wide timeout.
		client:      &http.Client{},
		githubToken: githubToken,
		tempDir:     filepath.Join(os.TempDir(), "serverkit-"+uuid.NewString()),
		log:         log.NewComponentLogger("fetch"),
	}
}

func (f *Fetcher) newRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	if f.githubToken != "" && isGithubHost(req.URL) {
		req.Header.Set("Authorization", "Bearer "+f.githubToken)
	}
	return req, nil
}

func isGithubHost(u *url.URL) bool {
	h := u.Hostname()
	return h == "github.com" || h == "api.github.com" || strings.HasSuffix(h, ".github.com")
}

// GetJSON fetches rawURL and decodes the response body into out.
func (f *Fetcher) GetJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := f.newRequest(ctx, rawURL)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return &StatusError{Code: resp.StatusCode, URL: rawURL}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", rawURL, err)
	}
	return nil
}

// Download streams rawURL to dest, creating parent directories as
// needed. Progress is logged in quarters when the server reports a
// content length.
func (f *Fetcher) Download(ctx context.Context, rawURL, dest string) error {
	return f.DownloadAccept(ctx, rawURL, dest, "")
}

// DownloadAccept is Download with an explicit Accept header. GitHub's
// release asset API serves the binary only for
// "application/octet-stream" and JSON metadata otherwise.
func (f *Fetcher) DownloadAccept(ctx context.Context, rawURL, dest, accept string) error {
	req, err := f.newRequest(ctx, rawURL)
	if err != nil {
		return err
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return &StatusError{Code: resp.StatusCode, URL: rawURL}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dest), err)
	}
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}
	defer out.Close()

	start := time.Now()
	src := io.Reader(resp.Body)
	if resp.ContentLength > 0 {
		src = &progressReader{
			r:     resp.Body,
			total: resp.ContentLength,
			name:  filepath.Base(dest),
			log:   f.log,
		}
	}
	written, err := io.Copy(out, src)
	if err != nil {
		os.Remove(dest)
		return fmt.Errorf("downloading %s: %w", rawURL, err)
	}
	f.log.Debugf("downloaded %s (%d bytes in %s)", filepath.Base(dest), written, time.Since(start).Round(time.Millisecond))
	return nil
}

// DownloadTemp streams rawURL into a fresh temp file and returns its
// path. Temp files live until ClearTemp.
func (f *Fetcher) DownloadTemp(ctx context.Context, rawURL, name string) (string, error) {
	if name == "" {
		name = uuid.NewString()
	}
	dest := filepath.Join(f.tempDir, uuid.NewString(), name)
	if err := f.Download(ctx, rawURL, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// ClearTemp removes every temp file created by DownloadTemp.
func (f *Fetcher) ClearTemp() {
	if err := os.RemoveAll(f.tempDir); err != nil {
		f.log.Warnf("cannot remove temp dir %s: %v", f.tempDir, err)
	}
}

// progressReader logs download progress at each quarter of the total.
type progressReader struct {
	r       io.Reader
	total   int64
	read    int64
	quarter int
	name    string
	log     *telemetry.Logger
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	p.read += int64(n)
	for q := p.quarter + 1; q <= 4; q++ {
		if p.read*4 >= p.total*int64(q) {
			p.quarter = q
			p.log.Debugf("%s: %d%%", p.name, q*25)
		}
	}
	return n, err
}
