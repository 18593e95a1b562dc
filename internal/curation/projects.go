package curation

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"TTSCurator/internal/models"
	apperrors "TTSCurator/pkg/errors"
	"TTSCurator/pkg/metrics"
	"TTSCurator/pkg/util"
)

// CreateResult 创建项目的返回
type CreateResult struct {
	ProjectID   uint `json:"project_id"`
	PromptCount int  `json:"prompt_count"`
	IsRTL       bool `json:"is_rtl"`
}

// ProjectDetail 项目详情，附带按顺序排列的提示文本
type ProjectDetail struct {
	models.ProjectSummary
	Prompts []string `json:"prompts"`
}

// ProjectEvent is the payload of project signals.
type ProjectEvent struct {
	ProjectID   uint   `json:"project_id"`
	Name        string `json:"name"`
	PromptCount int    `json:"prompt_count,omitempty"`
}

// ProjectManager 项目的创建、查询与级联删除
type ProjectManager struct {
	db         *gorm.DB
	recordings *RecordingManager
	metrics    *metrics.Metrics
}

func NewProjectManager(db *gorm.DB, recordings *RecordingManager, m *metrics.Metrics) *ProjectManager {
	return &ProjectManager{db: db, recordings: recordings, metrics: m}
}

// CreateWithPrompts creates a project whose prompts keep the order of texts.
// Nothing is written when the name is taken or any insert fails.
func (m *ProjectManager) CreateWithPrompts(ctx context.Context, name string, texts []string, isRTL bool) (*CreateResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.Validation("Project name is required")
	}
	if len(texts) == 0 {
		return nil, apperrors.Validation("No prompts provided")
	}
	normalized := make([]string, len(texts))
	for i, t := range texts {
		normalized[i] = NormalizeText(t)
	}

	project, err := models.CreateProjectWithPrompts(m.db.WithContext(ctx), name, normalized, isRTL)
	if err != nil {
		m.record("project_create", "error")
		if apperrors.GetCode(err) != 0 {
			return nil, err
		}
		return nil, apperrors.Internal(err, "Failed to create project: "+err.Error())
	}

	m.record("project_create", "ok")
	util.Sig().Emit(models.SigProjectCreated, m, ProjectEvent{
		ProjectID:   project.ID,
		Name:        project.Name,
		PromptCount: len(normalized),
	})
	return &CreateResult{ProjectID: project.ID, PromptCount: len(normalized), IsRTL: project.IsRTL}, nil
}

// List 返回所有项目及其进度
func (m *ProjectManager) List(ctx context.Context) ([]models.ProjectSummary, error) {
	projects, err := models.ListProjectsWithProgress(m.db.WithContext(ctx))
	if err != nil {
		return nil, apperrors.Internal(err, "Failed to list projects")
	}
	return projects, nil
}

// Progress 单个项目的录音进度
func (m *ProjectManager) Progress(ctx context.Context, id uint) (*models.Progress, error) {
	return models.GetProjectProgress(m.db.WithContext(ctx), id)
}

// Get returns the project, its prompt texts and its progress.
func (m *ProjectManager) Get(ctx context.Context, id uint) (*ProjectDetail, error) {
	summary, texts, err := models.GetProjectSnapshot(m.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	return &ProjectDetail{ProjectSummary: *summary, Prompts: texts}, nil
}

// Delete removes the project with its recordings (files first, best effort)
// and prompts. The steps are not atomic; a crash midway can leave orphans.
func (m *ProjectManager) Delete(ctx context.Context, id uint) (string, error) {
	db := m.db.WithContext(ctx)
	project, err := models.GetProject(db, id)
	if err != nil {
		m.record("project_delete", "error")
		return "", err
	}

	recs, err := models.ListRecordingsByProject(db, id)
	if err != nil {
		m.record("project_delete", "error")
		return "", apperrors.Internal(err, "Failed to delete project: "+err.Error())
	}
	for i := range recs {
		m.recordings.removeFile(ctx, &recs[i])
	}
	if err := models.DeleteProjectRows(db, id); err != nil {
		m.record("project_delete", "error")
		return "", apperrors.Internal(err, "Failed to delete project: "+err.Error())
	}

	m.record("project_delete", "ok")
	util.Sig().Emit(models.SigProjectDeleted, m, ProjectEvent{ProjectID: project.ID, Name: project.Name})
	return fmt.Sprintf("Project '%s' deleted successfully", project.Name), nil
}

func (m *ProjectManager) record(op, status string) {
	if m.metrics != nil {
		m.metrics.RecordOperation(op, status)
	}
}
