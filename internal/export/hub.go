package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"TTSCurator/internal/curation"
	"TTSCurator/internal/models"
	"TTSCurator/pkg/config"
	apperrors "TTSCurator/pkg/errors"
	"TTSCurator/pkg/logger"
	"TTSCurator/pkg/metrics"
	"TTSCurator/pkg/util"
)

// HubExporter pushes the recordings of a project to a private dataset
// repository in audiofolder layout: data/<file>.wav plus data/metadata.csv.
type HubExporter struct {
	db       *gorm.DB
	settings *curation.SettingsService
	client   *HubClient
	cfg      config.HubConfig
	metrics  *metrics.Metrics
}

func NewHubExporter(db *gorm.DB, settings *curation.SettingsService, client *HubClient, cfg config.HubConfig, m *metrics.Metrics) *HubExporter {
	return &HubExporter{db: db, settings: settings, client: client, cfg: cfg, metrics: m}
}

// DatasetName derives the dataset repository of a project.
func DatasetName(repo, projectName string) string {
	return repo + "-" + strings.ReplaceAll(strings.ToLower(projectName), " ", "-")
}

// Export 导出项目到数据集仓库
func (e *HubExporter) Export(ctx context.Context, projectID uint) (res *Result, err error) {
	start := time.Now()
	defer func() {
		ev := Event{Target: "huggingface", Status: "ok", ProjectID: projectID}
		if err != nil {
			ev.Status = "error"
			ev.Detail = apperrors.GetMessage(err)
		} else {
			ev.Count = len(res.Uploaded)
			ev.DatasetName = res.DatasetName
		}
		if e.metrics != nil {
			e.metrics.RecordExport(ev.Target, ev.Status, time.Since(start))
		}
		util.Sig().Emit(models.SigExportFinished, e, ev)
	}()

	token, repo, err := e.credentials(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" || repo == "" {
		return nil, apperrors.Validation("Hugging Face token or repo not configured")
	}

	db := e.db.WithContext(ctx)
	project, err := models.GetProject(db, projectID)
	if err != nil {
		return nil, err
	}
	views, err := models.ListRecordingViews(db, projectID)
	if err != nil {
		return nil, apperrors.Internal(err, "Failed to list recordings")
	}
	if len(views) == 0 {
		return nil, apperrors.Validation("No audio files found for this project")
	}

	store, err := e.settings.AudioStore(ctx)
	if err != nil {
		return nil, err
	}
	metadata, err := buildMetadata(views)
	if err != nil {
		return nil, apperrors.Internal(err, "Failed to create dataset: "+err.Error())
	}

	files := make([]HubFile, 0, len(views)+1)
	uploaded := make([]string, 0, len(views))
	for _, v := range views {
		name := v.Filename
		files = append(files, HubFile{
			Path: "data/" + name,
			Open: func() (io.ReadCloser, error) {
				rc, _, err := store.Read(ctx, name)
				return rc, err
			},
		})
		uploaded = append(uploaded, store.Location(name))
	}
	files = append(files, HubFile{
		Path: "data/metadata.csv",
		Open: func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(metadata)), nil },
	})

	datasetName := DatasetName(repo, project.Name)
	timeout := e.cfg.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	pushCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := e.push(pushCtx, token, datasetName, project.Name, files); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(pushCtx.Err(), context.DeadlineExceeded) {
			logger.Warn("dataset push timed out", zap.String("dataset", datasetName))
			return nil, apperrors.External(err, "Upload timed out. Please try again or check your internet connection.")
		}
		logger.Warn("dataset push failed", zap.String("dataset", datasetName), zap.Error(err))
		return nil, apperrors.External(err, "Failed to push dataset: "+err.Error())
	}

	return &Result{Status: "ok", Uploaded: uploaded, DatasetName: datasetName}, nil
}

func (e *HubExporter) push(ctx context.Context, token, datasetName, projectName string, files []HubFile) error {
	if err := e.client.CreateDatasetRepo(ctx, token, datasetName, true); err != nil {
		return err
	}
	return e.client.Commit(ctx, token, datasetName, "Upload recordings of "+projectName, files)
}

// credentials 设置优先，其次取环境变量
func (e *HubExporter) credentials(ctx context.Context) (token, repo string, err error) {
	if token, err = e.settings.Get(ctx, curation.KeyHuggingfaceToken); err != nil {
		return "", "", err
	}
	if repo, err = e.settings.Get(ctx, curation.KeyHuggingfaceRepo); err != nil {
		return "", "", err
	}
	if token == "" {
		token = e.cfg.Token
	}
	if repo == "" {
		repo = e.cfg.Repo
	}
	return token, repo, nil
}

func buildMetadata(views []models.RecordingView) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"file_name", "text", "prompt_id", "order_index", "recorded_at"}); err != nil {
		return nil, err
	}
	for _, v := range views {
		row := []string{
			v.Filename,
			v.Text,
			strconv.FormatUint(uint64(v.PromptID), 10),
			strconv.Itoa(v.OrderIndex),
			v.RecordedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
