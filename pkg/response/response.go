package response

import (
	"net/http"

	apperrors "TTSCurator/pkg/errors"
	"TTSCurator/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Success writes data as the JSON body with status 200.
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Fail aborts the request with {"detail": message}. The status follows the
// error code; server side failures are logged with the wrapped cause.
func Fail(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, gin.H{"detail": apperrors.GetMessage(err)})
}

// BadRequest 参数校验失败
func BadRequest(c *gin.Context, message string) {
	Fail(c, apperrors.Validation(message))
}

// ExportError reports an export failure inside a 200 response; export
// endpoints never fail at the protocol level.
func ExportError(c *gin.Context, detail string) {
	c.JSON(http.StatusOK, gin.H{"status": "error", "detail": detail})
}
