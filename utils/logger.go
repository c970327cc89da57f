package utils

import (
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"jobpilot/config"
)

var (
	globalLogger atomic.Pointer[zap.Logger]
	initOnce     sync.Once
)

// InitLogger builds the process logger: JSON to stdout, plus a rotating JSON
// file when cfg.File is set. Only the first call has an effect.
func InitLogger(cfg config.LoggerConfig) {
	initOnce.Do(func() {
		level := zap.NewAtomicLevel()
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			level.SetLevel(zap.InfoLevel)
		}

		encoder := zapcore.NewJSONEncoder(encoderConfig())
		cores := []zapcore.Core{
			zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level),
		}

		if cfg.File != "" {
			fileWriter := zapcore.AddSync(&lumberjack.Logger{
				Filename:   cfg.File,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   cfg.Compress,
			})
			cores = append(cores, zapcore.NewCore(encoder, fileWriter, level))
		}

		name := cfg.ServiceName
		if name == "" {
			name = "jobpilot"
		}
		logger := zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zap.ErrorLevel)).Named(name)
		globalLogger.Store(logger)
		zap.ReplaceGlobals(logger)
		zap.RedirectStdLog(logger)
	})
}

func encoderConfig() zapcore.EncoderConfig {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.MessageKey = "message"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	return enc
}

// GetLogger returns the process logger, or a no-op logger before InitLogger.
func GetLogger() *zap.Logger {
	if l := globalLogger.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

// Named returns a child of the process logger for one component.
func Named(name string) *zap.Logger {
	return GetLogger().Named(name)
}

// LogInfo logs an info message on the process logger.
func LogInfo(message string, fields ...zap.Field) {
	GetLogger().Info(message, fields...)
}

// LogWarn logs a warning on the process logger.
func LogWarn(message string, fields ...zap.Field) {
	GetLogger().Warn(message, fields...)
}

// LogError logs err with message on the process logger.
func LogError(message string, err error, fields ...zap.Field) {
	GetLogger().Error(message, append(fields, zap.Error(err))...)
}

// LogDebug logs a debug message on the process logger.
func LogDebug(message string, fields ...zap.Field) {
	GetLogger().Debug(message, fields...)
}

// Sync flushes buffered log entries.
func Sync() {
	_ = GetLogger().Sync()
}

// ResetLoggerForTest clears the process logger. Tests only.
func ResetLoggerForTest() {
	globalLogger.Store(nil)
	initOnce = sync.Once{}
}
