package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// MonitorMiddleware 监控中间件
func MonitorMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// 使用路由模板而非实际路径，避免 /projects/:id 产生大量标签
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
