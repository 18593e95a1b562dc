package models

import (
	"errors"
	"time"

	apperrors "TTSCurator/pkg/errors"

	"gorm.io/gorm"
)

// RecordingView 项目录音列表项，附带提示的排序位置
type RecordingView struct {
	Text       string    `json:"text"`
	Filename   string    `json:"filename"`
	PromptID   uint      `json:"prompt_id"`
	OrderIndex int       `json:"order_index"`
	RecordedAt time.Time `json:"recorded_at"`
}

// FindRecording looks up the recording of (filename, project, prompt).
// It returns nil without error when none exists.
func FindRecording(db *gorm.DB, filename string, projectID, promptID uint) (*Recording, error) {
	var rec Recording
	err := db.Where("filename = ? AND project_id = ? AND prompt_id = ?", filename, projectID, promptID).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetRecordingForPrompt 获取某个提示的录音，不存在时返回 NotFound
func GetRecordingForPrompt(db *gorm.DB, projectID, promptID uint) (*Recording, error) {
	var rec Recording
	err := db.Where("project_id = ? AND prompt_id = ?", projectID, promptID).Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Recording not found")
		}
		return nil, err
	}
	return &rec, nil
}

// RecordingExistsForPrompt reports whether the prompt already has a recording.
func RecordingExistsForPrompt(db *gorm.DB, projectID, promptID uint) (bool, error) {
	var n int64
	err := db.Model(&Recording{}).
		Where("project_id = ? AND prompt_id = ?", projectID, promptID).
		Count(&n).Error
	return n > 0, err
}

// CountRecordingsByFilename counts rows referencing a stored file. Two
// projects sharing a prompt text share the file.
func CountRecordingsByFilename(db *gorm.DB, filename string) (int64, error) {
	var n int64
	err := db.Model(&Recording{}).Where("filename = ?", filename).Count(&n).Error
	return n, err
}

// ListRecordingsByProject 获取项目全部录音行
func ListRecordingsByProject(db *gorm.DB, projectID uint) ([]Recording, error) {
	var recs []Recording
	err := db.Where("project_id = ?", projectID).Order("id").Find(&recs).Error
	return recs, err
}

// ListRecordingViews returns the recordings of a project ordered by the
// order_index of their prompts.
func ListRecordingViews(db *gorm.DB, projectID uint) ([]RecordingView, error) {
	views := []RecordingView{}
	err := db.Model(&Recording{}).
		Select("recordings.text, recordings.filename, recordings.prompt_id, prompts.order_index, recordings.recorded_at").
		Joins("JOIN prompts ON prompts.id = recordings.prompt_id").
		Where("recordings.project_id = ?", projectID).
		Order("prompts.order_index").
		Scan(&views).Error
	return views, err
}
