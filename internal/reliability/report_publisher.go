package reliability

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// ObjectUploader stores objects in a bucket.
type ObjectUploader interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
}

// ReportPublisher copies run reports to object storage. Each file is written
// under runs/<run id>/ and mirrored under latest/.
type ReportPublisher struct {
	uploader ObjectUploader
	log      zerolog.Logger
}

// NewReportPublisher creates a publisher backed by uploader.
func NewReportPublisher(uploader ObjectUploader, log zerolog.Logger) *ReportPublisher {
	return &ReportPublisher{
		uploader: uploader,
		log:      log.With().Str("service", "report_publisher").Logger(),
	}
}

// Publish uploads files of a run. The first failing upload aborts.
func (p *ReportPublisher) Publish(ctx context.Context, runID string, files []string) error {
	startTime := time.Now()

	for _, file := range files {
		name := filepath.Base(file)
		for _, key := range []string{path.Join("runs", runID, name), path.Join("latest", name)} {
			if err := p.uploadFile(ctx, file, key); err != nil {
				return err
			}
		}
	}

	p.log.Info().
		Str("run_id", runID).
		Int("files", len(files)).
		Dur("duration_ms", time.Since(startTime)).
		Msg("Reports published")
	return nil
}

func (p *ReportPublisher) uploadFile(ctx context.Context, file, key string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", file, err)
	}

	if err := p.uploader.Upload(ctx, key, f, info.Size(), "application/json"); err != nil {
		return fmt.Errorf("failed to publish %s: %w", key, err)
	}
	return nil
}
