package handlers

import (
	"github.com/gin-gonic/gin"

	"TTSCurator/internal/curation"
	"TTSCurator/pkg/response"
)

// 通过多行文本创建项目
func (h *Handlers) handleCreateProject(c *gin.Context) {
	name, err := requiredForm(c, "project_name")
	if err != nil {
		response.Fail(c, err)
		return
	}
	text, err := requiredForm(c, "prompts_text")
	if err != nil {
		response.Fail(c, err)
		return
	}
	prompts, err := curation.ParsePromptsText(text)
	if err != nil {
		response.Fail(c, err)
		return
	}
	res, err := h.projects.CreateWithPrompts(c.Request.Context(), name, prompts, formBool(c, "is_rtl"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, res)
}

// 通过 CSV 第一列创建项目
func (h *Handlers) handleUploadCSV(c *gin.Context) {
	name, err := requiredForm(c, "project_name")
	if err != nil {
		response.Fail(c, err)
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.BadRequest(c, "Failed to read CSV")
		return
	}
	defer f.Close()

	prompts, err := curation.ParsePromptsCSV(fh.Filename, f)
	if err != nil {
		response.Fail(c, err)
		return
	}
	res, err := h.projects.CreateWithPrompts(c.Request.Context(), name, prompts, formBool(c, "is_rtl"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, res)
}

func (h *Handlers) handleListProjects(c *gin.Context) {
	projects, err := h.projects.List(c.Request.Context())
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{"projects": projects})
}

func (h *Handlers) handleGetProject(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.Fail(c, err)
		return
	}
	detail, err := h.projects.Get(c.Request.Context(), id)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, detail)
}

func (h *Handlers) handleDeleteProject(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.Fail(c, err)
		return
	}
	msg, err := h.projects.Delete(c.Request.Context(), id)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{"status": "ok", "message": msg})
}

func (h *Handlers) handleProjectRecordings(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.Fail(c, err)
		return
	}
	views, err := h.recordings.ProjectRecordings(c.Request.Context(), id)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{"recordings": views})
}
