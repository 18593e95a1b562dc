package listeners

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"TTSCurator/internal/export"
	"TTSCurator/internal/models"
	"TTSCurator/pkg/logger"
	"TTSCurator/pkg/util"
)

// 信号到审计动作名的映射
var interactionActions = map[string]string{
	models.SigProjectCreated:   "create_project",
	models.SigProjectDeleted:   "delete_project",
	models.SigRecordingCreated: "upload_audio",
	models.SigRecordingDeleted: "delete_audio",
	models.SigSettingsUpdated:  "update_settings",
	models.SigDatabaseCleared:  "clear_database",
}

// InitInteractionListeners records every curation signal as an Interaction.
func InitInteractionListeners(sig *util.Signals, db *gorm.DB) {
	for event, action := range interactionActions {
		action := action
		sig.Connect(event, func(sender any, params ...any) {
			if len(params) == 0 {
				return
			}
			saveInteraction(db, action, params[0])
		})
	}

	sig.Connect(models.SigExportFinished, func(sender any, params ...any) {
		if len(params) == 0 {
			return
		}
		ev, ok := params[0].(export.Event)
		if !ok {
			return
		}
		action := "export_" + ev.Target
		if ev.Status != "ok" {
			action += "_error"
		}
		saveInteraction(db, action, ev)
	})
}

func saveInteraction(db *gorm.DB, action string, data any) {
	if err := models.RecordInteraction(db, action, data); err != nil {
		logger.Warn("record interaction failed", zap.String("action", action), zap.Error(err))
	}
}
