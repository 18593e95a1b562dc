package listeners

import (
	"strconv"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"TTSCurator/internal/curation"
	"TTSCurator/internal/models"
	"TTSCurator/pkg/logger"
	"TTSCurator/pkg/util"
	"TTSCurator/pkg/websocket"
)

// ProgressGroup 项目进度推送的订阅组名
func ProgressGroup(projectID uint) string {
	return "project:" + strconv.FormatUint(uint64(projectID), 10)
}

// InitProgressListeners pushes fresh progress to websocket subscribers
// whenever a recording of their project changes.
func InitProgressListeners(sig *util.Signals, db *gorm.DB, hub *websocket.Hub) {
	push := func(sender any, params ...any) {
		if len(params) == 0 {
			return
		}
		ev, ok := params[0].(curation.RecordingEvent)
		if !ok {
			return
		}
		progress, err := models.GetProjectProgress(db, ev.ProjectID)
		if err != nil {
			logger.Warn("progress refresh failed", zap.Uint("project_id", ev.ProjectID), zap.Error(err))
			return
		}
		hub.Publish(ProgressGroup(ev.ProjectID), "progress", progress)
	}
	sig.Connect(models.SigRecordingCreated, push)
	sig.Connect(models.SigRecordingDeleted, push)

	sig.Connect(models.SigProjectDeleted, func(sender any, params ...any) {
		if len(params) == 0 {
			return
		}
		if ev, ok := params[0].(curation.ProjectEvent); ok {
			hub.Publish(ProgressGroup(ev.ProjectID), "project_deleted", ev)
		}
	})
}
