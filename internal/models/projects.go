package models

import (
	"errors"

	apperrors "TTSCurator/pkg/errors"

	"gorm.io/gorm"
)

// GetProject 获取单个项目，不存在时返回 NotFound
func GetProject(db *gorm.DB, id uint) (*Project, error) {
	var project Project
	if err := db.First(&project, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Project not found")
		}
		return nil, err
	}
	return &project, nil
}

// ProjectNameExists 检查项目名是否已被占用
func ProjectNameExists(db *gorm.DB, name string) (bool, error) {
	var n int64
	if err := db.Model(&Project{}).Where("name = ?", name).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// CreateProjectWithPrompts creates the project and one prompt per text, in
// input order, inside a single transaction. A duplicate name fails with
// Conflict and leaves no rows behind.
func CreateProjectWithPrompts(db *gorm.DB, name string, texts []string, isRTL bool) (*Project, error) {
	project := &Project{Name: name, IsRTL: isRTL}
	err := db.Transaction(func(tx *gorm.DB) error {
		exists, err := ProjectNameExists(tx, name)
		if err != nil {
			return err
		}
		if exists {
			return apperrors.Conflict("Project name already exists")
		}
		if err := tx.Create(project).Error; err != nil {
			return err
		}

		prompts := make([]Prompt, len(texts))
		for i, text := range texts {
			prompts[i] = Prompt{ProjectID: project.ID, Text: text, OrderIndex: i}
		}
		return tx.CreateInBatches(prompts, 200).Error
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

// GetPromptTexts 按 order_index 顺序返回项目的提示文本
func GetPromptTexts(db *gorm.DB, projectID uint) ([]string, error) {
	texts := []string{}
	err := db.Model(&Prompt{}).
		Where("project_id = ?", projectID).
		Order("order_index").
		Pluck("text", &texts).Error
	return texts, err
}

// FindPromptByText resolves the prompt of a project by its exact text.
func FindPromptByText(db *gorm.DB, projectID uint, text string) (*Prompt, error) {
	var prompt Prompt
	err := db.Where("project_id = ? AND text = ?", projectID, text).
		Order("order_index").
		First(&prompt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Prompt not found for this project")
		}
		return nil, err
	}
	return &prompt, nil
}

// DeleteProjectRows removes the recording rows, prompt rows and the project
// row, in that order. Each step commits on its own.
func DeleteProjectRows(db *gorm.DB, projectID uint) error {
	if err := db.Where("project_id = ?", projectID).Delete(&Recording{}).Error; err != nil {
		return err
	}
	if err := db.Where("project_id = ?", projectID).Delete(&Prompt{}).Error; err != nil {
		return err
	}
	return db.Delete(&Project{}, projectID).Error
}

// ClearAll 清空所有业务表（含设置与审计记录）
func ClearAll(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, m := range []interface{}{&Interaction{}, &Recording{}, &Prompt{}, &Project{}, &Setting{}} {
			if err := tx.Where("1 = 1").Delete(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
