// Package report delivers finished analysis files to their
// destination: an io.Writer, a directory, or a remote collector.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cellsentry/cellsentry/internal/config"
)

const (
	uploadPath  = "api/v1/reports"
	contentType = "application/x-ndjson"
)

// Uploader delivers one raw ndjson analysis report.
type Uploader interface {
	Upload(ctx context.Context, raw []byte) error
}

// UploadCloser is an Uploader holding resources that need release.
type UploadCloser interface {
	Uploader
	Close() error
}

// FromConfig selects the uploaders for the reporting configuration:
// one per configured destination, or stdout when none is set. A nil or
// disabled configuration yields no uploaders.
func FromConfig(cfg *config.Reporting) ([]Uploader, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	var ups []Uploader
	if cfg.Dir != "" {
		u, err := NewDirUploader(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("opening report directory: %w", err)
		}
		ups = append(ups, u)
	}
	if cfg.URL != "" {
		u, err := NewCollectorUploader(cfg.URL)
		if err != nil {
			return nil, err
		}
		ups = append(ups, u)
	}
	if len(ups) == 0 {
		ups = append(ups, NewWriteUploader(os.Stdout))
	}
	return ups, nil
}

// CloseAll releases every uploader holding resources, keeping the
// first error.
func CloseAll(ups []Uploader) error {
	var errs []error
	for _, u := range ups {
		if c, ok := u.(UploadCloser); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// WriteUploader copies reports to an io.Writer, stdout by default.
type WriteUploader struct {
	w io.Writer
}

func NewWriteUploader(w io.Writer) WriteUploader {
	return WriteUploader{w: w}
}

func (u WriteUploader) Upload(_ context.Context, raw []byte) error {
	if u.w == nil {
		u.w = os.Stdout
	}
	_, err := u.w.Write(raw)
	return err
}

// DirUploader saves reports as timestamped files inside a directory,
// confined via os.Root.
type DirUploader struct {
	root *os.Root
}

func NewDirUploader(path string) (*DirUploader, error) {
	root, err := os.OpenRoot(path)
	if err != nil {
		return nil, err
	}
	return &DirUploader{root: root}, nil
}

func (u *DirUploader) Upload(_ context.Context, raw []byte) error {
	if u.root == nil {
		return errors.New("uploader already closed")
	}

	path := "cellsentry-" + time.Now().Format("2006-01-02-15-04-05") + ".ndjson"

	f, err := u.root.Create(path)
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	_, err = f.Write(raw)
	if err != nil {
		return fmt.Errorf("saving report: %w", err)
	}
	err = f.Close()
	if err != nil {
		return fmt.Errorf("closing report: %w", err)
	}
	return nil
}

func (u *DirUploader) Close() error {
	if u.root == nil {
		return errors.New("uploader already closed")
	}
	err := u.root.Close()
	u.root = nil
	return err
}

// CollectorUploader POSTs reports to a remote collector.
type CollectorUploader struct {
	requestURL *url.URL
	client     *http.Client
}

// NewCollectorUploader accepts a bare server URL with a scheme and
// without a path, e.g. `https://collector.example.com`.
func NewCollectorUploader(serverURL string) (*CollectorUploader, error) {
	parsedURL, err := url.Parse(serverURL)
	if err != nil {
		return nil, err
	}
	parsedURL.Path = strings.TrimRight(parsedURL.Path, "/")

	if parsedURL.Scheme == "" || parsedURL.Host == "" || parsedURL.Path != "" {
		return nil, errors.New("please define the collector url with a scheme and without path, e.g. `https://collector.example.com`")
	}

	parsedURL.Path = uploadPath

	return &CollectorUploader{
		requestURL: parsedURL,
		client:     &http.Client{},
	}, nil
}

func (u *CollectorUploader) Upload(ctx context.Context, raw []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.requestURL.String(), bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := u.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return decodeUploadResponse(resp)
}

func decodeUploadResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err == nil && mediaType == "application/problem+json" {
		var problemDetail struct {
			Detail string `json:"detail"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&problemDetail); err != nil {
			return fmt.Errorf("decoding json response failed: %w", err)
		}
		return fmt.Errorf("status code: %d, detail: %s", resp.StatusCode, problemDetail.Detail)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return fmt.Errorf("upload rejected, status: %d, body: %s", resp.StatusCode, string(respBody))
}
