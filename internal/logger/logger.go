package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// log stays a no-op until Initialize so packages and tests can log freely.
var log = zap.NewNop()

type Configuration struct {
	// Service is attached to every entry as the "service" field.
	Service   string
	LogFile   string
	ErrorFile string
	Level     string
	Console   bool
}

func fileEncoderConfig() zapcore.EncoderConfig {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.MessageKey = "message"
	encoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	encoderConfig.EncodeDuration = zapcore.MillisDurationEncoder
	return encoderConfig
}

func consoleEncoderConfig() zapcore.EncoderConfig {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	return encoderConfig
}

func openFileCore(path string, level zapcore.LevelEnabler) (zapcore.Core, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return zapcore.NewCore(zapcore.NewJSONEncoder(fileEncoderConfig()), zapcore.AddSync(file), level), nil
}

// Initialize replaces the no-op logger with a tee of the configured sinks:
// a JSON log file, a JSON file receiving only errors, and the console.
// An unknown level falls back to info.
func Initialize(configuration Configuration) error {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(configuration.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var cores []zapcore.Core

	if configuration.LogFile != "" {
		core, err := openFileCore(configuration.LogFile, level)
		if err != nil {
			return err
		}
		cores = append(cores, core)
	}

	if configuration.ErrorFile != "" {
		core, err := openFileCore(configuration.ErrorFile, zapcore.ErrorLevel)
		if err != nil {
			return err
		}
		cores = append(cores, core)
	}

	if configuration.Console {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleEncoderConfig()),
			zapcore.Lock(os.Stdout),
			level,
		))
	}

	options := []zap.Option{zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel)}
	if configuration.Service != "" {
		options = append(options, zap.Fields(zap.String("service", configuration.Service)))
	}

	log = zap.New(zapcore.NewTee(cores...), options...)
	return nil
}

func Sync() {
	_ = log.Sync()
}

func Debug(message string, fields ...zap.Field) {
	log.Debug(message, fields...)
}

func Info(message string, fields ...zap.Field) {
	log.Info(message, fields...)
}

func Warn(message string, fields ...zap.Field) {
	log.Warn(message, fields...)
}

func Error(message string, fields ...zap.Field) {
	log.Error(message, fields...)
}

func Fatal(message string, fields ...zap.Field) {
	log.Fatal(message, fields...)
}
