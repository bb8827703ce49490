package utils

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
	logLevel   = zap.NewAtomicLevelAt(zap.InfoLevel)
)

// Logger возвращает общий zap-логгер приложения
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		SetLogLevel(os.Getenv("LOG_LEVEL"))

		config := zap.NewProductionConfig()
		config.Level = logLevel
		config.Encoding = "json"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.EncoderConfig.LevelKey = "log_level"
		config.EncoderConfig.MessageKey = "message"
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.StacktraceKey = ""
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		config.OutputPaths = []string{"stdout"}

		built, err := config.Build(zap.AddCallerSkip(1))
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
			built = zap.NewNop()
		}
		logger = built
	})
	return logger
}

// SetLogLevel меняет уровень логирования на лету
func SetLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		logLevel.SetLevel(zap.DebugLevel)
	case "warn":
		logLevel.SetLevel(zap.WarnLevel)
	case "error":
		logLevel.SetLevel(zap.ErrorLevel)
	default:
		logLevel.SetLevel(zap.InfoLevel)
	}
}

// LogInfo логирует информационное сообщение
func LogInfo(format string, v ...interface{}) {
	Logger().Info(fmt.Sprintf(format, v...))
}

// LogError логирует сообщение об ошибке
func LogError(format string, v ...interface{}) {
	Logger().Error(fmt.Sprintf(format, v...))
}

// LogDebug логирует отладочное сообщение
func LogDebug(format string, v ...interface{}) {
	Logger().Debug(fmt.Sprintf(format, v...))
}

// LogOperation логирует операцию с длительностью выполнения
func LogOperation(operation string, startTime time.Time, err error) {
	duration := time.Since(startTime)
	if err != nil {
		Logger().Error("operation failed",
			zap.String("operation", operation),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return
	}
	Logger().Info("operation completed",
		zap.String("operation", operation),
		zap.Duration("duration", duration),
	)
}
