package curation

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"TTSCurator/internal/models"
	apperrors "TTSCurator/pkg/errors"
	"TTSCurator/pkg/logger"
	"TTSCurator/pkg/metrics"
	stores "TTSCurator/pkg/storage"
	"TTSCurator/pkg/util"
)

// UploadResult 上传结果
type UploadResult struct {
	Status   string `json:"status"`
	Filename string `json:"filename"`
	Message  string `json:"message,omitempty"`
}

// RecordingEvent is the payload of recording signals.
type RecordingEvent struct {
	ProjectID uint   `json:"project_id"`
	PromptID  uint   `json:"prompt_id"`
	Filename  string `json:"filename"`
	Text      string `json:"text"`
}

// RecordingManager 管理录音文件与录音记录
type RecordingManager struct {
	db      *gorm.DB
	stores  StoreProvider
	metrics *metrics.Metrics
}

func NewRecordingManager(db *gorm.DB, sp StoreProvider, m *metrics.Metrics) *RecordingManager {
	return &RecordingManager{db: db, stores: sp, metrics: m}
}

func (m *RecordingManager) record(op, status string) {
	if m.metrics != nil {
		m.metrics.RecordOperation(op, status)
	}
}

// Upload stores the audio of one prompt and records it.
//
// The file is written between two transactions. A recording that already
// exists, before the write or after it, makes the call idempotent. When the
// insert fails the written file is removed again unless another recording
// still references it.
func (m *RecordingManager) Upload(ctx context.Context, projectID uint, text string, audio io.Reader) (*UploadResult, error) {
	text = NormalizeText(text)
	db := m.db.WithContext(ctx)

	var prompt *models.Prompt
	var exists bool
	err := db.Transaction(func(tx *gorm.DB) error {
		p, err := models.FindPromptByText(tx, projectID, text)
		if err != nil {
			return err
		}
		prompt = p
		rec, err := models.FindRecording(tx, Filename(p.Text), projectID, p.ID)
		if err != nil {
			return err
		}
		exists = rec != nil
		return nil
	})
	if err != nil {
		m.record("recording_upload", "error")
		return nil, err
	}

	filename := Filename(prompt.Text)
	if exists {
		m.record("recording_upload", "duplicate")
		return &UploadResult{Status: "ok", Filename: filename, Message: "Recording already exists"}, nil
	}

	store, err := m.stores.AudioStore(ctx)
	if err != nil {
		m.record("recording_upload", "error")
		return nil, err
	}
	if err := store.Write(ctx, filename, audio); err != nil {
		m.record("recording_upload", "error")
		return nil, apperrors.Storage(err, "Failed to save recording: "+err.Error())
	}

	var raced bool
	err = db.Transaction(func(tx *gorm.DB) error {
		rec, err := models.FindRecording(tx, filename, projectID, prompt.ID)
		if err != nil {
			return err
		}
		if rec != nil {
			raced = true
			return nil
		}
		return tx.Create(&models.Recording{
			Text:      prompt.Text,
			Filename:  filename,
			ProjectID: projectID,
			PromptID:  prompt.ID,
		}).Error
	})
	if err != nil {
		// 并发上传可能先插入成功（唯一索引冲突），此时视为幂等
		if again, lookupErr := models.FindRecording(db, filename, projectID, prompt.ID); lookupErr == nil && again != nil {
			raced = true
		} else {
			m.compensate(ctx, store, filename)
			m.record("recording_upload", "error")
			return nil, apperrors.Storage(err, "Failed to save recording: "+err.Error())
		}
	}
	if raced {
		m.record("recording_upload", "duplicate")
		return &UploadResult{Status: "ok", Filename: filename, Message: "Recording already exists"}, nil
	}

	m.record("recording_upload", "ok")
	util.Sig().Emit(models.SigRecordingCreated, m, RecordingEvent{
		ProjectID: projectID,
		PromptID:  prompt.ID,
		Filename:  filename,
		Text:      prompt.Text,
	})
	return &UploadResult{Status: "ok", Filename: filename}, nil
}

// compensate removes a file written for a failed insert.
func (m *RecordingManager) compensate(ctx context.Context, store stores.Store, filename string) {
	n, err := models.CountRecordingsByFilename(m.db.WithContext(ctx), filename)
	if err != nil {
		logger.Warn("skip compensating delete, reference check failed", zap.String("filename", filename), zap.Error(err))
		return
	}
	if n > 0 {
		return
	}
	if err := store.Delete(ctx, filename); err != nil {
		logger.Error("compensating delete failed", zap.String("filename", filename), zap.Error(err))
	}
}

// Delete removes the recording of a prompt. The file goes first and only on
// a best effort basis; the row is always removed.
func (m *RecordingManager) Delete(ctx context.Context, projectID uint, text string) error {
	text = NormalizeText(text)
	db := m.db.WithContext(ctx)

	prompt, err := models.FindPromptByText(db, projectID, text)
	if err != nil {
		m.record("recording_delete", "error")
		return err
	}
	rec, err := models.GetRecordingForPrompt(db, projectID, prompt.ID)
	if err != nil {
		m.record("recording_delete", "error")
		return err
	}

	m.removeFile(ctx, rec)
	if err := db.Delete(&models.Recording{}, rec.ID).Error; err != nil {
		m.record("recording_delete", "error")
		return apperrors.Internal(err, "Failed to delete recording: "+err.Error())
	}

	m.record("recording_delete", "ok")
	util.Sig().Emit(models.SigRecordingDeleted, m, RecordingEvent{
		ProjectID: projectID,
		PromptID:  prompt.ID,
		Filename:  rec.Filename,
		Text:      rec.Text,
	})
	return nil
}

// removeFile deletes the audio of rec unless another recording shares it.
// Failures are only logged.
func (m *RecordingManager) removeFile(ctx context.Context, rec *models.Recording) {
	var others int64
	err := m.db.WithContext(ctx).Model(&models.Recording{}).
		Where("filename = ? AND id <> ?", rec.Filename, rec.ID).
		Count(&others).Error
	if err != nil {
		logger.Warn("audio reference check failed", zap.String("filename", rec.Filename), zap.Error(err))
		return
	}
	if others > 0 {
		logger.Debug("audio shared by another recording, keeping file", zap.String("filename", rec.Filename))
		return
	}
	store, err := m.stores.AudioStore(ctx)
	if err != nil {
		logger.Warn("audio store unavailable", zap.Error(err))
		return
	}
	if err := store.Delete(ctx, rec.Filename); err != nil {
		logger.Warn("failed to delete audio file", zap.String("filename", rec.Filename), zap.Error(err))
	}
}

// ProjectRecordings 按提示顺序返回项目的录音
func (m *RecordingManager) ProjectRecordings(ctx context.Context, projectID uint) ([]models.RecordingView, error) {
	views, err := models.ListRecordingViews(m.db.WithContext(ctx), projectID)
	if err != nil {
		return nil, apperrors.Internal(err, "Failed to list recordings")
	}
	return views, nil
}

// ListFiles 列出存储中的所有音频文件名
func (m *RecordingManager) ListFiles(ctx context.Context) ([]string, error) {
	store, err := m.stores.AudioStore(ctx)
	if err != nil {
		return nil, err
	}
	names, err := store.List(ctx)
	if err != nil {
		return nil, apperrors.Storage(err, "Failed to list recordings")
	}
	return names, nil
}

// Open 打开一个音频文件，调用方负责关闭
func (m *RecordingManager) Open(ctx context.Context, filename string) (io.ReadCloser, int64, error) {
	if !stores.ValidKey(filename) {
		return nil, 0, apperrors.Validation("Invalid filename")
	}
	store, err := m.stores.AudioStore(ctx)
	if err != nil {
		return nil, 0, err
	}
	rc, size, err := store.Read(ctx, filename)
	if err != nil {
		if errors.Is(err, stores.ErrObjectNotFound) {
			return nil, 0, apperrors.NotFound("Recording not found")
		}
		return nil, 0, apperrors.Storage(err, "Failed to read recording")
	}
	return rc, size, nil
}
