package handlers

import (
	"github.com/gin-gonic/gin"

	"TTSCurator/internal/curation"
	"TTSCurator/pkg/response"
)

func (h *Handlers) handleGetSettings(c *gin.Context) {
	s, err := h.settings.All(c.Request.Context())
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, s)
}

// 只更新请求中出现的键
func (h *Handlers) handleUpdateSettings(c *gin.Context) {
	var upd curation.SettingsUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		response.BadRequest(c, "Invalid settings payload")
		return
	}
	s, err := h.settings.Update(c.Request.Context(), upd)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, s)
}
