// Package log provides the structured logger used throughout nidx.
//
// Every component logs through the package-level functions here rather than
// constructing its own zap.Logger, so tests can swap the global logger with
// Replace and assert on captured fields.
package log

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var global atomic.Pointer[zap.Logger]

func init() {
	l, _ := zap.NewProduction()
	global.Store(l)
}

// Replace swaps the global logger and returns a function that restores the
// previous one. Intended for tests:
//
//	restore := log.Replace(observedLogger)
//	defer restore()
func Replace(l *zap.Logger) func() {
	prev := global.Load()
	global.Store(l)
	return func() { global.Store(prev) }
}

// L returns the current global logger.
func L() *zap.Logger { return global.Load() }

// SetLevel reconfigures the global logger at the given level, keeping JSON
// encoding for production use.
func SetLevel(level zapcore.Level) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	l, err := cfg.Build()
	if err != nil {
		return
	}
	global.Store(l)
}

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { L().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { L().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }

// With returns a logger sub-scoped with the given fields, for a component
// that wants to avoid re-passing an id on every call.
func With(fields ...zap.Field) *zap.Logger { return L().With(fields...) }
