package logger

import (
	"os"
	"strings"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig 日志配置
type LogConfig struct {
	Level      string `env:"LOG_LEVEL"`
	Filename   string `env:"LOG_FILENAME"`
	MaxSize    int    `env:"LOG_MAX_SIZE"`
	MaxAge     int    `env:"LOG_MAX_AGE"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS"`
}

// Lg is the process logger. It is a no-op logger until Init is called so
// packages can log from tests without setup.
var Lg = zap.NewNop()

// Init builds the global logger. mode "development" switches to a console
// encoder; a non-empty Filename adds a rotated file sink.
func Init(cfg LogConfig, mode string) error {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
			return err
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeDuration = zapcore.SecondsDurationEncoder

	var encoder zapcore.Encoder
	if mode == "development" || mode == "debug" {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level),
	}
	if cfg.Filename != "" {
		// 文件输出统一使用 JSON，便于采集
		fileEnc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		writer := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    withDefault(cfg.MaxSize, 100),
			MaxAge:     withDefault(cfg.MaxAge, 30),
			MaxBackups: withDefault(cfg.MaxBackups, 5),
		})
		cores = append(cores, zapcore.NewCore(fileEnc, writer, level))
	}

	Lg = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
	zap.ReplaceGlobals(Lg)
	return nil
}

func withDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func Debug(msg string, fields ...zap.Field) { Lg.Debug(msg, fields...) }

func Info(msg string, fields ...zap.Field) { Lg.Info(msg, fields...) }

func Warn(msg string, fields ...zap.Field) { Lg.Warn(msg, fields...) }

func Error(msg string, fields ...zap.Field) { Lg.Error(msg, fields...) }

// Sync flushes buffered entries; call before exit.
func Sync() {
	_ = Lg.Sync()
}
