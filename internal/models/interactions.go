package models

import (
	"encoding/json"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 操作事件名，由 handler/manager 通过 util.Sig() 发出
const (
	SigProjectCreated   = "project.created"
	SigProjectDeleted   = "project.deleted"
	SigRecordingCreated = "recording.created"
	SigRecordingDeleted = "recording.deleted"
	SigSettingsUpdated  = "settings.updated"
	SigExportFinished   = "export.finished"
	SigDatabaseCleared  = "database.cleared"
)

// RecordInteraction 写入一条审计记录
func RecordInteraction(db *gorm.DB, action string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return db.Create(&Interaction{Action: action, Data: datatypes.JSON(raw)}).Error
}

// RecentInteractions 按时间倒序返回最近的审计记录
func RecentInteractions(db *gorm.DB, limit int) ([]Interaction, error) {
	var out []Interaction
	err := db.Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}
