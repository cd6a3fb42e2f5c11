// Package publish zips the bot's source tree and uploads it to a
// deployment endpoint.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chopibot/pkg/logger"
	"github.com/capitalize-ai/chopibot/pkg/metrics"
)

// Upload outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Publisher runs archive-then-upload.
type Publisher struct {
	profile  *Profile
	uploader *Uploader
	logger   *logger.Logger
}

// NewPublisher validates the profile and creates a publisher. progress
// receives the upload bar and may be nil.
func NewPublisher(p *Profile, progress io.Writer, log *logger.Logger) (*Publisher, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("publish: invalid profile: %w", err)
	}
	if log == nil {
		log = logger.Global()
	}
	return &Publisher{
		profile:  p,
		uploader: NewUploader(p, progress),
		logger:   log,
	}, nil
}

// Publish archives the root directory and uploads it. callback, if non-nil,
// receives nil on success, a *ResponseError when the endpoint rejects the
// upload, or the archive/transport error. The same error is returned. The
// archive is deleted only after a successful upload.
func (p *Publisher) Publish(ctx context.Context, callback func(error)) error {
	err := p.publish(ctx)
	if callback != nil {
		callback(err)
	}
	return err
}

func (p *Publisher) publish(ctx context.Context) error {
	archivePath, err := p.profile.ArchivePath()
	if err != nil {
		return fmt.Errorf("publish: resolve archive: %w", err)
	}

	files, err := CreateArchive(p.profile.Root, archivePath, p.profile.Exclude)
	if err != nil {
		metrics.RecordUpload(OutcomeError)
		return fmt.Errorf("publish: %w", err)
	}
	p.logger.Info("archive created",
		zap.String("archive", archivePath),
		zap.Int("files", files),
	)

	if err := p.uploader.Upload(ctx, archivePath); err != nil {
		var respErr *ResponseError
		if errors.As(err, &respErr) {
			metrics.RecordUpload(OutcomeRejected)
		} else {
			metrics.RecordUpload(OutcomeError)
		}
		return err
	}
	metrics.RecordUpload(OutcomeSuccess)

	if err := os.Remove(archivePath); err != nil {
		p.logger.Warn("failed to remove archive", zap.String("archive", archivePath), zap.Error(err))
	}
	p.logger.Info("published", zap.String("endpoint", p.profile.Endpoint))
	return nil
}
