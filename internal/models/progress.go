package models

import (
	"database/sql"

	"gorm.io/gorm"
)

// NoRecordedIndex is LastRecordedIndex for a project without recordings.
const NoRecordedIndex = -1

// Progress 项目录音进度
//
// LastRecordedIndex is the highest order_index among prompts that currently
// have a recording. Recordings can be deleted out of order, so it is not
// derived from RecordedCount.
type Progress struct {
	TotalPrompts      int64 `json:"total_prompts"`
	RecordedCount     int64 `json:"recorded_count"`
	LastRecordedIndex int   `json:"last_recorded_index"`
}

// ProjectSummary 项目及其进度
type ProjectSummary struct {
	Project
	Progress
}

// snapshotTx returns options giving a consistent read view for the dialect.
// SQLite runs on a single connection and needs none; MySQL's default
// isolation is already repeatable read.
func snapshotTx(db *gorm.DB) []*sql.TxOptions {
	if db.Dialector != nil && db.Dialector.Name() == "postgres" {
		return []*sql.TxOptions{{Isolation: sql.LevelRepeatableRead, ReadOnly: true}}
	}
	return nil
}

// GetProjectProgress computes the three progress figures of a project from
// one consistent view of the store. It fails with NotFound when the project
// does not exist.
func GetProjectProgress(db *gorm.DB, projectID uint) (*Progress, error) {
	var progress *Progress
	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := GetProject(tx, projectID); err != nil {
			return err
		}
		var err error
		progress, err = progressOf(tx, projectID)
		return err
	}, snapshotTx(db)...)
	if err != nil {
		return nil, err
	}
	return progress, nil
}

func progressOf(tx *gorm.DB, projectID uint) (*Progress, error) {
	p := &Progress{LastRecordedIndex: NoRecordedIndex}
	if err := tx.Model(&Prompt{}).Where("project_id = ?", projectID).Count(&p.TotalPrompts).Error; err != nil {
		return nil, err
	}
	if err := tx.Model(&Recording{}).Where("project_id = ?", projectID).Count(&p.RecordedCount).Error; err != nil {
		return nil, err
	}

	var maxIndex sql.NullInt64
	row := tx.Model(&Prompt{}).
		Select("MAX(prompts.order_index)").
		Joins("JOIN recordings ON recordings.prompt_id = prompts.id").
		Where("prompts.project_id = ?", projectID).
		Row()
	if err := row.Scan(&maxIndex); err != nil {
		return nil, err
	}
	if maxIndex.Valid {
		p.LastRecordedIndex = int(maxIndex.Int64)
	}
	return p, nil
}

type projectCount struct {
	ProjectID uint
	N         int64
}

// ListProjectsWithProgress returns every project, oldest first, with its
// progress. All figures come from the same transaction.
func ListProjectsWithProgress(db *gorm.DB) ([]ProjectSummary, error) {
	var out []ProjectSummary
	err := db.Transaction(func(tx *gorm.DB) error {
		var projects []Project
		if err := tx.Order("id").Find(&projects).Error; err != nil {
			return err
		}

		var prompts, recordings, maxima []projectCount
		if err := tx.Model(&Prompt{}).
			Select("project_id, COUNT(*) AS n").
			Group("project_id").
			Scan(&prompts).Error; err != nil {
			return err
		}
		if err := tx.Model(&Recording{}).
			Select("project_id, COUNT(*) AS n").
			Group("project_id").
			Scan(&recordings).Error; err != nil {
			return err
		}
		if err := tx.Model(&Prompt{}).
			Select("prompts.project_id AS project_id, MAX(prompts.order_index) AS n").
			Joins("JOIN recordings ON recordings.prompt_id = prompts.id").
			Group("prompts.project_id").
			Scan(&maxima).Error; err != nil {
			return err
		}

		totals := toMap(prompts)
		recorded := toMap(recordings)
		last := toMap(maxima)

		out = make([]ProjectSummary, 0, len(projects))
		for _, p := range projects {
			s := ProjectSummary{
				Project: p,
				Progress: Progress{
					TotalPrompts:      totals[p.ID],
					RecordedCount:     recorded[p.ID],
					LastRecordedIndex: NoRecordedIndex,
				},
			}
			if n, ok := last[p.ID]; ok {
				s.LastRecordedIndex = int(n)
			}
			out = append(out, s)
		}
		return nil
	}, snapshotTx(db)...)
	return out, err
}

func toMap(rows []projectCount) map[uint]int64 {
	m := make(map[uint]int64, len(rows))
	for _, r := range rows {
		m[r.ProjectID] = r.N
	}
	return m
}

// GetProjectSnapshot reads a project, its ordered prompt texts and its
// progress from one consistent view.
func GetProjectSnapshot(db *gorm.DB, projectID uint) (*ProjectSummary, []string, error) {
	var summary *ProjectSummary
	var texts []string
	err := db.Transaction(func(tx *gorm.DB) error {
		project, err := GetProject(tx, projectID)
		if err != nil {
			return err
		}
		if texts, err = GetPromptTexts(tx, projectID); err != nil {
			return err
		}
		progress, err := progressOf(tx, projectID)
		if err != nil {
			return err
		}
		summary = &ProjectSummary{Project: *project, Progress: *progress}
		return nil
	}, snapshotTx(db)...)
	if err != nil {
		return nil, nil, err
	}
	return summary, texts, nil
}
