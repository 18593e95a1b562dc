package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"TTSCurator/pkg/response"
)

// 上传一条录音
func (h *Handlers) handleUploadAudio(c *gin.Context) {
	text, err := requiredForm(c, "text")
	if err != nil {
		response.Fail(c, err)
		return
	}
	projectID, err := formProjectID(c)
	if err != nil {
		response.Fail(c, err)
		return
	}
	fh, err := c.FormFile("audio")
	if err != nil {
		response.BadRequest(c, "audio is required")
		return
	}
	audio, err := fh.Open()
	if err != nil {
		response.BadRequest(c, "Failed to read audio")
		return
	}
	defer audio.Close()

	res, err := h.recordings.Upload(c.Request.Context(), projectID, text, audio)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, res)
}

// 删除一条录音
func (h *Handlers) handleDeleteAudio(c *gin.Context) {
	text, err := requiredForm(c, "text")
	if err != nil {
		response.Fail(c, err)
		return
	}
	projectID, err := formProjectID(c)
	if err != nil {
		response.Fail(c, err)
		return
	}
	if err := h.recordings.Delete(c.Request.Context(), projectID, text); err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{"status": "ok", "message": "Recording deleted"})
}

func (h *Handlers) handleListRecordings(c *gin.Context) {
	names, err := h.recordings.ListFiles(c.Request.Context())
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{"recordings": names})
}

func (h *Handlers) handleGetRecording(c *gin.Context) {
	rc, size, err := h.recordings.Open(c.Request.Context(), c.Param("filename"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	defer rc.Close()
	c.DataFromReader(http.StatusOK, size, "audio/wav", rc, nil)
}
