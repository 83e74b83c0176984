// SPDX-License-Identifier: MIT
//
// Package log is the process-wide logger. It wraps a zap logger behind printf
// style helpers and hands out named structured loggers for components that
// log per-instance fields.
package log

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// levels is indexed by LogLevel.
var levels = [...]struct {
	name    string
	aliases []string
	zap     zapcore.Level
}{
	LevelDebug: {"DEBUG", nil, zapcore.DebugLevel},
	LevelInfo:  {"INFO", nil, zapcore.InfoLevel},
	LevelWarn:  {"WARN", []string{"WARNING"}, zapcore.WarnLevel},
	LevelError: {"ERROR", nil, zapcore.ErrorLevel},
	LevelFatal: {"FATAL", nil, zapcore.FatalLevel},
}

func (l LogLevel) String() string {
	if int(l) >= len(levels) {
		return "UNKNOWN"
	}
	return levels[l].name
}

// ParseLevel converts a level name, ignoring case. Unknown names return
// LevelInfo and false.
func ParseLevel(name string) (LogLevel, bool) {
	for i, l := range levels {
		if strings.EqualFold(name, l.name) {
			return LogLevel(i), true
		}
		for _, alias := range l.aliases {
			if strings.EqualFold(name, alias) {
				return LogLevel(i), true
			}
		}
	}
	return LevelInfo, false
}

var (
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

	mu    sync.RWMutex // Guards base and sugar.
	base  = newLogger(false)
	sugar = base.Sugar()
)

func newLogger(production bool) *zap.Logger {
	var cfg zap.Config
	if production {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.Development = false
	}
	cfg.Level = level
	cfg.DisableStacktrace = true

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// Only a broken sink fails here and both configs write to stderr.
		return zap.NewNop()
	}
	return logger
}

// Configure selects JSON output when production is set, otherwise a colored
// console encoder.
func Configure(production bool) {
	replace(newLogger(production))
}

// replace swaps the backing logger. The logger should share level.
func replace(logger *zap.Logger) {
	mu.Lock()
	old := base
	base, sugar = logger, logger.Sugar()
	mu.Unlock()

	_ = old.Sync()
}

// Sync flushes any buffered log entries.
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	return base.Sync()
}

// Named returns a structured logger scoped to a component. It keeps the
// logger that was configured when it was called.
func Named(name string) *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return base.WithOptions(zap.AddCallerSkip(-1)).Sugar().Named(name)
}

func SetLevel(l LogLevel) {
	if int(l) >= len(levels) {
		l = LevelInfo
	}
	level.SetLevel(levels[l].zap)
}

func GetLevel() LogLevel {
	current := level.Level()
	for i, l := range levels {
		if l.zap == current {
			return LogLevel(i)
		}
	}
	return LevelInfo
}

func logger() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// The level check runs before the sugared call so that disabled messages do
// not pay for taking the lock.

func Debugf(format string, v ...any) {
	if level.Enabled(zapcore.DebugLevel) {
		logger().Debugf(format, v...)
	}
}

func Infof(format string, v ...any) {
	if level.Enabled(zapcore.InfoLevel) {
		logger().Infof(format, v...)
	}
}

func Warnf(format string, v ...any) {
	if level.Enabled(zapcore.WarnLevel) {
		logger().Warnf(format, v...)
	}
}

func Errorf(format string, v ...any) {
	if level.Enabled(zapcore.ErrorLevel) {
		logger().Errorf(format, v...)
	}
}

// Fatalf logs regardless of level and exits the process.
func Fatalf(format string, v ...any) {
	logger().Fatalf(format, v...)
}
