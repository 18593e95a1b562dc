package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"TTSCurator/internal/curation"
	"TTSCurator/internal/export"
	handlers "TTSCurator/internal/handler"
	"TTSCurator/internal/listeners"
	"TTSCurator/internal/models"
	"TTSCurator/pkg/backup"
	"TTSCurator/pkg/cache"
	"TTSCurator/pkg/config"
	"TTSCurator/pkg/logger"
	"TTSCurator/pkg/metrics"
	"TTSCurator/pkg/middleware"
	"TTSCurator/pkg/scheduler"
	stores "TTSCurator/pkg/storage"
	"TTSCurator/pkg/util"
	"TTSCurator/pkg/websocket"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg := config.GlobalConfig

	if err := logger.Init(cfg.Log, cfg.Mode); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		logger.Error("server exited", zap.Error(err))
		logger.Sync()
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	db, err := util.InitDatabase(cfg.DBDriver, cfg.DSN, cfg.Mode == "debug")
	if err != nil {
		return err
	}
	if err := models.Migrate(db); err != nil {
		return err
	}

	m := metrics.NewMetrics()
	if err := metrics.RegisterGormCallbacks(db, m); err != nil {
		return err
	}

	c, err := cache.NewCache(cfg.Cache)
	if err != nil {
		return err
	}
	defer c.Close()

	settings := curation.NewSettingsService(db, c, cfg.StoragePath).WithMetrics(m)
	if cfg.StorageDriver == "minio" {
		settings.WithObjectStore(stores.NewMinioStore(
			cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey,
			cfg.Minio.Bucket, cfg.Minio.UseSSL, cfg.Minio.BaseURL,
		))
	}
	storagePath, err := settings.EnsureStoragePath(ctx)
	if err != nil {
		return err
	}

	recordings := curation.NewRecordingManager(db, settings, m)
	projects := curation.NewProjectManager(db, recordings, m)

	var uploader export.ObjectUploader
	switch cfg.ExportProvider {
	case "cos":
		uploader = export.NewCOSUploader(cfg.COS)
	default:
		uploader = export.NewS3Uploader(cfg.S3)
	}
	objects := export.NewObjectExporter(settings, uploader, cfg.S3Timeout, m)
	hubExporter := export.NewHubExporter(db, settings, export.NewHubClient(cfg.Hub.Endpoint), cfg.Hub, m)
	resetter := export.NewResetter(db, settings)

	wsCfg := websocket.DefaultConfig()
	wsCfg.AllowedOrigins = cfg.CORSOrigins
	ws := websocket.NewHub(wsCfg)
	defer ws.Close()

	sig := util.Sig()
	listeners.InitInteractionListeners(sig, db)
	listeners.InitProgressListeners(sig, db, ws)

	cron := scheduler.NewCron(time.Local)
	if _, err := cron.Add("@every 1m", scheduler.FuncJob(func(context.Context) {
		if _, err := metrics.CollectDiskStats(storagePath, m); err != nil {
			logger.Debug("collect disk stats failed", zap.Error(err))
		}
	})); err != nil {
		return err
	}
	if cfg.BackupEnabled {
		if cfg.DBDriver != util.DriverSQLite {
			logger.Warn("backup is only supported for sqlite, skipping", zap.String("driver", cfg.DBDriver))
		} else if _, err := cron.Add(cfg.BackupSchedule, &backup.Backup{
			DB:     db,
			Driver: cfg.DBDriver,
			Dir:    cfg.BackupPath,
			Keep:   7,
		}); err != nil {
			return err
		}
	}
	cron.Start()
	defer cron.Stop()

	gin.SetMode(ginMode(cfg.Mode))
	engine := gin.New()
	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.AccessLog(),
		middleware.CORS(cfg.CORSOrigins),
		metrics.MonitorMiddleware(m),
	)
	engine.GET(cfg.MetricsPath, gin.WrapH(m.Handler()))

	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:       cfg.RateLimit,
		SkipPaths:  []string{"/system/health", cfg.MetricsPath},
		AddHeaders: true,
	}, nil)

	h := handlers.NewHandlers(handlers.Deps{
		DB:         db,
		Projects:   projects,
		Recordings: recordings,
		Settings:   settings,
		Objects:    objects,
		Hub:        hubExporter,
		Resetter:   resetter,
		WS:         ws,
		Metrics:    m,
	})
	h.APIPrefix = cfg.APIPrefix
	h.UploadLimit = limiter.Middleware()
	h.Register(engine)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", cfg.Addr),
			zap.String("db", cfg.DBDriver),
			zap.String("storage", storagePath),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	return nil
}

func ginMode(mode string) string {
	switch mode {
	case "debug", "development":
		return gin.DebugMode
	case "test":
		return gin.TestMode
	default:
		return gin.ReleaseMode
	}
}
