package export

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"TTSCurator/internal/curation"
	"TTSCurator/internal/models"
	apperrors "TTSCurator/pkg/errors"
	"TTSCurator/pkg/logger"
	"TTSCurator/pkg/metrics"
	stores "TTSCurator/pkg/storage"
	"TTSCurator/pkg/util"
)

// ObjectExporter copies stored audio into the bucket named by the s3_bucket
// setting.
type ObjectExporter struct {
	settings *curation.SettingsService
	uploader ObjectUploader
	timeout  time.Duration
	metrics  *metrics.Metrics
}

func NewObjectExporter(settings *curation.SettingsService, uploader ObjectUploader, timeout time.Duration, m *metrics.Metrics) *ObjectExporter {
	return &ObjectExporter{settings: settings, uploader: uploader, timeout: timeout, metrics: m}
}

// Export uploads filename, or every stored file when filename is empty.
// In bulk mode files that fail are skipped.
func (e *ObjectExporter) Export(ctx context.Context, filename string) (res *Result, err error) {
	start := time.Now()
	defer func() { e.finish(start, res, err) }()

	bucket, err := e.settings.Get(ctx, curation.KeyS3Bucket)
	if err != nil {
		return nil, err
	}
	if bucket == "" {
		return nil, apperrors.Validation("S3 bucket not configured")
	}
	store, err := e.settings.AudioStore(ctx)
	if err != nil {
		return nil, err
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	if filename != "" {
		if !stores.ValidKey(filename) {
			return nil, apperrors.NotFound("File not found")
		}
		if err := e.uploadOne(ctx, store, bucket, filename); err != nil {
			if errors.Is(err, stores.ErrObjectNotFound) {
				return nil, apperrors.NotFound("File not found")
			}
			return nil, apperrors.External(err, err.Error())
		}
		return &Result{Status: "ok", Uploaded: []string{filename}}, nil
	}

	names, err := store.List(ctx)
	if err != nil {
		return nil, apperrors.Storage(err, "Failed to list recordings")
	}
	uploaded := []string{}
	for _, name := range names {
		if err := e.uploadOne(ctx, store, bucket, name); err != nil {
			logger.Warn("export skipped file", zap.String("file", name), zap.String("target", e.uploader.Name()), zap.Error(err))
			continue
		}
		uploaded = append(uploaded, name)
	}
	return &Result{Status: "ok", Uploaded: uploaded}, nil
}

func (e *ObjectExporter) uploadOne(ctx context.Context, store stores.Store, bucket, name string) error {
	rc, size, err := store.Read(ctx, name)
	if err != nil {
		return err
	}
	defer rc.Close()
	return e.uploader.Upload(ctx, bucket, name, rc, size)
}

func (e *ObjectExporter) finish(start time.Time, res *Result, err error) {
	ev := Event{Target: e.uploader.Name(), Status: "ok"}
	if err != nil {
		ev.Status = "error"
		ev.Detail = apperrors.GetMessage(err)
	} else if res != nil {
		ev.Count = len(res.Uploaded)
	}
	if e.metrics != nil {
		e.metrics.RecordExport(ev.Target, ev.Status, time.Since(start))
	}
	util.Sig().Emit(models.SigExportFinished, e, ev)
}
