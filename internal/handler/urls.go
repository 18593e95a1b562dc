package handlers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"TTSCurator/internal/curation"
	"TTSCurator/internal/export"
	"TTSCurator/pkg/metrics"
	"TTSCurator/pkg/websocket"
)

type Handlers struct {
	db         *gorm.DB
	projects   *curation.ProjectManager
	recordings *curation.RecordingManager
	settings   *curation.SettingsService
	objects    *export.ObjectExporter
	hub        *export.HubExporter
	resetter   *export.Resetter
	ws         *websocket.Hub
	metrics    *metrics.Metrics

	// APIPrefix 业务路由前缀，可为空
	APIPrefix string
	// UploadLimit 作用在上传/建项目路由上的限流中间件，可为空
	UploadLimit gin.HandlerFunc
}

// Deps 构造 Handlers 所需的组件
type Deps struct {
	DB         *gorm.DB
	Projects   *curation.ProjectManager
	Recordings *curation.RecordingManager
	Settings   *curation.SettingsService
	Objects    *export.ObjectExporter
	Hub        *export.HubExporter
	Resetter   *export.Resetter
	WS         *websocket.Hub
	Metrics    *metrics.Metrics
}

func NewHandlers(d Deps) *Handlers {
	return &Handlers{
		db:         d.DB,
		projects:   d.Projects,
		recordings: d.Recordings,
		settings:   d.Settings,
		objects:    d.Objects,
		hub:        d.Hub,
		resetter:   d.Resetter,
		ws:         d.WS,
		metrics:    d.Metrics,
	}
}

func (h *Handlers) Register(engine *gin.Engine) {
	r := engine.Group(h.APIPrefix)

	// Register System Module Routes
	h.registerSystemRoutes(r)

	// Register Business Module Routes
	h.registerProjectRoutes(r)
	h.registerRecordingRoutes(r)
	h.registerSettingsRoutes(r)
	h.registerExportRoutes(r)
}

func (h *Handlers) limited(handler gin.HandlerFunc) []gin.HandlerFunc {
	if h.UploadLimit == nil {
		return []gin.HandlerFunc{handler}
	}
	return []gin.HandlerFunc{h.UploadLimit, handler}
}

// Project Module
func (h *Handlers) registerProjectRoutes(r *gin.RouterGroup) {
	r.POST("/create_project/", h.limited(h.handleCreateProject)...)
	r.POST("/upload_csv/", h.limited(h.handleUploadCSV)...)

	r.GET("/projects/", h.handleListProjects)
	r.GET("/projects/:id", h.handleGetProject)
	r.DELETE("/projects/:id", h.handleDeleteProject)
	r.GET("/projects/:id/recordings", h.handleProjectRecordings)

	// 进度推送
	r.GET("/ws/projects/:id/progress", h.handleProgressFeed)
}

// Recording Module
func (h *Handlers) registerRecordingRoutes(r *gin.RouterGroup) {
	r.POST("/upload_audio/", h.limited(h.handleUploadAudio)...)
	r.POST("/delete_audio/", h.handleDeleteAudio)
	r.GET("/list_recordings/", h.handleListRecordings)
	r.GET("/recordings/:filename", h.handleGetRecording)
}

// Settings Module
func (h *Handlers) registerSettingsRoutes(r *gin.RouterGroup) {
	r.GET("/settings/", h.handleGetSettings)
	r.POST("/settings/", h.handleUpdateSettings)
}

// Export Module
func (h *Handlers) registerExportRoutes(r *gin.RouterGroup) {
	r.POST("/export_s3/", h.handleExportS3)
	r.POST("/export_hf/", h.handleExportHF)
	r.POST("/clear_database/", h.handleClearDatabase)
}

// System Module
func (h *Handlers) registerSystemRoutes(r *gin.RouterGroup) {
	r.GET("/system/health", h.HealthCheck)
	r.GET("/interactions/", h.handleListInteractions)
}
