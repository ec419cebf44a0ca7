// Package logging is a thin wrapper around zap, mirroring the
// logging.GetLogger(name).With(kv...) idiom used throughout the runtime this
// module was extracted from.
package logging

import (
	"go.uber.org/zap"
)

// Logger is a named, structured logger. The zero value is not usable; get
// one via Get.
type Logger struct {
	name string
	zl   *zap.SugaredLogger
}

var base = func() *zap.Logger {
	l, err := zap.NewProduction()
	if err != nil {
		// A broken production logger is a fatal environment problem, not a
		// recoverable runtime condition.
		panic(err)
	}
	return l
}()

// SetBase replaces the underlying zap logger for all loggers obtained via
// Get, e.g. to switch to a development logger in tests.
func SetBase(l *zap.Logger) {
	base = l
}

// Get returns a logger named name, in the style of
// logging.GetLogger("worker/storage/committee").
func Get(name string) *Logger {
	return &Logger{name: name, zl: base.Sugar().Named(name)}
}

// With returns a derived logger carrying the given key/value pairs on every
// subsequent log call.
func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{name: l.name, zl: l.zl.With(kv...)}
}

func (l *Logger) Debug(msg string, kv ...interface{}) { l.zl.Debugw(msg, kv...) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.zl.Infow(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.zl.Warnw(msg, kv...) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.zl.Errorw(msg, kv...) }

// Fatal logs at error level and then panics. Nothing in this module calls
// it: the programmer-error paths (InvalidEpochUse, ChainSetMisuse) panic
// with their typed error directly.
func (l *Logger) Fatal(msg string, kv ...interface{}) {
	l.zl.Errorw(msg, kv...)
	panic(msg)
}
