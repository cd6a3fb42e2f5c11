package publish

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
)

// ResponseError is returned when the deployment endpoint answers with a
// non-2xx status.
type ResponseError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("publish: upload rejected: %s: %s", e.Status, e.Body)
}

// Uploader streams an archive to a deployment endpoint.
type Uploader struct {
	httpClient *http.Client
	endpoint   string
	username   string
	password   string

	// progress receives the upload progress bar; nil disables it.
	progress io.Writer
}

// NewUploader creates an uploader for a profile.
func NewUploader(p *Profile, progress io.Writer) *Uploader {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Uploader{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   p.Endpoint,
		username:   p.Username,
		password:   p.Password,
		progress:   progress,
	}
}

// Upload PUTs the archive with basic auth.
func (u *Uploader) Upload(ctx context.Context, archivePath string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("publish: open archive: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("publish: stat archive: %w", err)
	}

	var body io.Reader = f
	var bar *progressbar.ProgressBar
	if u.progress != nil {
		bar = progressbar.NewOptions64(info.Size(),
			progressbar.OptionSetWriter(u.progress),
			progressbar.OptionSetDescription("Uploading"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowBytes(true),
			progressbar.OptionClearOnFinish(),
		)
		body = io.TeeReader(f, bar)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u.endpoint, body)
	if err != nil {
		return fmt.Errorf("publish: build request: %w", err)
	}
	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", "application/zip")
	req.SetBasicAuth(u.username, u.password)

	resp, err := u.httpClient.Do(req)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return fmt.Errorf("publish: upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &ResponseError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(raw),
		}
	}
	return nil
}
