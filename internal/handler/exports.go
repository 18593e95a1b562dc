package handlers

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	apperrors "TTSCurator/pkg/errors"
	"TTSCurator/pkg/response"
)

// 导出接口的所有失败都以 200 {status:"error"} 返回

func (h *Handlers) handleExportS3(c *gin.Context) {
	var req struct {
		Filename string `json:"filename"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.ExportError(c, "Invalid request body")
		return
	}
	res, err := h.objects.Export(c.Request.Context(), req.Filename)
	if err != nil {
		response.ExportError(c, apperrors.GetMessage(err))
		return
	}
	response.Success(c, res)
}

func (h *Handlers) handleExportHF(c *gin.Context) {
	projectID, err := formProjectID(c)
	if err != nil {
		response.ExportError(c, apperrors.GetMessage(err))
		return
	}
	res, err := h.hub.Export(c.Request.Context(), projectID)
	if err != nil {
		response.ExportError(c, apperrors.GetMessage(err))
		return
	}
	response.Success(c, res)
}

func (h *Handlers) handleClearDatabase(c *gin.Context) {
	msg, err := h.resetter.Reset(c.Request.Context())
	if err != nil {
		response.ExportError(c, apperrors.GetMessage(err))
		return
	}
	response.Success(c, gin.H{"status": "ok", "message": msg})
}
