package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestMonitorMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	r := gin.New()
	r.Use(MonitorMiddleware(m))
	r.GET("/projects/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, id := range []string{"1", "2", "3"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/projects/"+id, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	got := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/projects/:id", "200"))
	assert.Equal(t, 3.0, got)
}

func TestHandlerExposesBusinessCounters(t *testing.T) {
	m := NewMetrics()
	m.RecordOperation("recording_upload", "ok")
	m.RecordExport("s3", "success", 2*time.Second)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, `curation_operations_total{operation="recording_upload",status="ok"} 1`))
	assert.Contains(t, body, "export_duration_seconds")
}

func TestCollectDiskStats(t *testing.T) {
	m := NewMetrics()
	stats, err := CollectDiskStats(t.TempDir(), m)
	require.NoError(t, err)
	assert.Greater(t, stats.Total, uint64(0))
	assert.Equal(t, float64(stats.Free), testutil.ToFloat64(m.storageFreeBytes))
}

type widget struct {
	ID   uint
	Name string
}

func TestGormCallbacksRecordQueries(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	m := NewMetrics()
	require.NoError(t, RegisterGormCallbacks(db, m))
	require.NoError(t, db.AutoMigrate(&widget{}))

	require.NoError(t, db.Create(&widget{Name: "a"}).Error)
	var w widget
	require.ErrorIs(t, db.First(&w, 42).Error, gorm.ErrRecordNotFound)
	var rows []map[string]any
	require.Error(t, db.Table("missing").Find(&rows).Error)

	assert.Positive(t, testutil.CollectAndCount(m.dbQueryDuration))
	// 未找到记录不算失败
	assert.Equal(t, 0.0, testutil.ToFloat64(m.dbQueryErrors.WithLabelValues("query", "widgets")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dbQueryErrors.WithLabelValues("query", "missing")))
}
