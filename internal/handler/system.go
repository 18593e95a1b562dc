package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"TTSCurator/internal/curation"
	"TTSCurator/internal/listeners"
	"TTSCurator/internal/models"
	apperrors "TTSCurator/pkg/errors"
	"TTSCurator/pkg/logger"
	"TTSCurator/pkg/metrics"
	"TTSCurator/pkg/response"
	"TTSCurator/pkg/websocket"
)

// HealthCheck 健康检查接口
func (h *Handlers) HealthCheck(c *gin.Context) {
	// 检查数据库连接
	sqlDB, err := h.db.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database connection failed"})
		return
	}
	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database ping failed"})
		return
	}

	body := gin.H{"status": "healthy"}
	// 磁盘信息只对本地存储有意义
	if path, err := h.settings.Get(c.Request.Context(), curation.KeyStoragePath); err == nil {
		if stats, err := metrics.CollectDiskStats(path, h.metrics); err == nil {
			body["storage"] = stats
		}
	}
	c.JSON(http.StatusOK, body)
}

// 订阅项目进度，连接建立后先推送一次当前进度
func (h *Handlers) handleProgressFeed(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.Fail(c, err)
		return
	}
	progress, err := models.GetProjectProgress(h.db.WithContext(c.Request.Context()), id)
	if err != nil {
		response.Fail(c, err)
		return
	}
	initial := &websocket.Message{Type: "progress", Data: progress}
	if err := h.ws.Serve(c.Writer, c.Request, listeners.ProgressGroup(id), initial); err != nil {
		logger.Warn("progress feed upgrade failed", zap.Uint("project_id", id), zap.Error(err))
	}
}

// 最近的操作审计记录，limit 默认 50，最大 500
func (h *Handlers) handleListInteractions(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		response.BadRequest(c, "Invalid limit")
		return
	}
	if limit > 500 {
		limit = 500
	}
	items, err := models.RecentInteractions(h.db.WithContext(c.Request.Context()), limit)
	if err != nil {
		response.Fail(c, apperrors.Internal(err, "Failed to list interactions"))
		return
	}
	response.Success(c, gin.H{"interactions": items})
}
