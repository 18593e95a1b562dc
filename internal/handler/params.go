package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"

	apperrors "TTSCurator/pkg/errors"
)

func requiredForm(c *gin.Context, key string) (string, error) {
	v, ok := c.GetPostForm(key)
	if !ok {
		return "", apperrors.Validation(key + " is required")
	}
	return v, nil
}

func formBool(c *gin.Context, key string) bool {
	return cast.ToBool(strings.TrimSpace(c.DefaultPostForm(key, "false")))
}

func parseID(raw, name string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, apperrors.Validation("Invalid " + name)
	}
	return uint(id), nil
}

func pathID(c *gin.Context) (uint, error) {
	return parseID(c.Param("id"), "project id")
}

func formProjectID(c *gin.Context) (uint, error) {
	raw, err := requiredForm(c, "project_id")
	if err != nil {
		return 0, err
	}
	return parseID(raw, "project_id")
}
