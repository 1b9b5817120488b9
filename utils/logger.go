package utils

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger provides leveled, printf-style logging throughout the application.
// It is backed by zap so console and file output share one encoder.
type Logger struct {
	sugar *zap.SugaredLogger
}

// LogConfig controls where the logger writes.
type LogConfig struct {
	Level string
	// File is the path of the rotated log file. Empty means console only.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// NewLogger creates a console Logger at info level.
func NewLogger() *Logger {
	l, _ := NewFileLogger(LogConfig{})
	return l
}

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

// NewFileLogger creates a Logger writing to stdout and, when cfg.File is set,
// to a size-rotated, gzip-compressed log file.
func NewFileLogger(cfg LogConfig) (*Logger, error) {
	level := parseLevel(cfg.Level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.CallerKey = ""

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stdout), level),
	}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return &Logger{sugar: zap.New(cores[0]).Sugar()}, err
		}
		maxSize := cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		backups := cfg.MaxBackups
		if backups <= 0 {
			backups = 10
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    maxSize,
			MaxBackups: backups,
			LocalTime:  true,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(rotator), level))
	}

	return &Logger{sugar: zap.New(zapcore.NewTee(cores...)).Sugar()}, nil
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// With returns a child Logger that attaches key/value pairs to every entry.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{sugar: l.sugar.With(args...)}
}

func (l *Logger) Info(format string, args ...any) {
	l.sugar.Infof(format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.sugar.Warnf(format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.sugar.Errorf(format, args...)
}

func (l *Logger) Debug(format string, args ...any) {
	l.sugar.Debugf(format, args...)
}

// Printf lets the Logger stand in wherever a Printf-style logger is expected.
func (l *Logger) Printf(format string, args ...any) {
	l.sugar.Infof(format, args...)
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}
