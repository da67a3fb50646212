// Package util provides low-level helpers shared by all other packages.
package util

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// traceLevel sits one step below zap's DebugLevel so that -vvv output
// can be told apart from -vv output.
const traceLevel = zapcore.DebugLevel - 1

// Logger writes levelled messages to stderr with optional timestamps
// and level prefixes.  Formatting and filtering are delegated to zap.
type Logger struct {
	mu         sync.Mutex
	level      LogLevel
	output     io.Writer
	timestamps bool
	z          *zap.Logger
}

// NewLogger returns a Logger that prints messages at or below the given
// verbosity (0 = quiet, 1 = normal, 2 = verbose, 3 = debug).
func NewLogger(verbosity int) *Logger {
	l := &Logger{
		level:      LogLevel(verbosity),
		output:     os.Stderr,
		timestamps: verbosity >= 3,
	}
	l.rebuild()
	return l
}

// SetTimestamps enables or disables timestamp prefixes.
func (l *Logger) SetTimestamps(on bool) {
	l.mu.Lock()
	l.timestamps = on
	l.mu.Unlock()
	l.rebuild()
}

// SetOutput overrides the output writer (default: os.Stderr).
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	l.output = w
	l.mu.Unlock()
	l.rebuild()
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel { return l.level }

// Info prints when verbosity ≥ 1.  Prefixed with [INF].
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(zapcore.InfoLevel, format, args...)
}

// Warn prints when verbosity ≥ 1.  Prefixed with [WRN].
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(zapcore.WarnLevel, format, args...)
}

// Verbose prints when verbosity ≥ 2.  Prefixed with [VRB].
func (l *Logger) Verbose(format string, args ...interface{}) {
	l.log(zapcore.DebugLevel, format, args...)
}

// Debug prints when verbosity ≥ 3.  Prefixed with [DBG].
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(traceLevel, format, args...)
}

// Error always prints regardless of verbosity.  Prefixed with [ERR].
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(zapcore.ErrorLevel, format, args...)
}

// Sync flushes any buffered output.
func (l *Logger) Sync() error {
	l.mu.Lock()
	z := l.z
	l.mu.Unlock()
	return z.Sync()
}

func (l *Logger) log(lvl zapcore.Level, format string, args ...interface{}) {
	l.mu.Lock()
	z := l.z
	l.mu.Unlock()

	if ce := z.Check(lvl, fmt.Sprintf(format, args...)); ce != nil {
		ce.Write()
	}
}

func (l *Logger) rebuild() {
	l.mu.Lock()
	defer l.mu.Unlock()

	encCfg := zapcore.EncoderConfig{
		LevelKey:         "level",
		MessageKey:       "msg",
		EncodeLevel:      encodeLevel,
		ConsoleSeparator: " ",
		LineEnding:       zapcore.DefaultLineEnding,
	}
	if l.timestamps {
		encCfg.TimeKey = "ts"
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(zapcore.AddSync(l.output)),
		zap.NewAtomicLevelAt(minLevel(l.level)),
	)
	l.z = zap.New(core)
}

// minLevel maps a verbosity count onto the lowest zap level that is
// still written.  Errors always pass.
func minLevel(v LogLevel) zapcore.Level {
	switch {
	case v <= LogQuiet:
		return zapcore.ErrorLevel
	case v == LogNormal:
		return zapcore.InfoLevel
	case v == LogVerbose:
		return zapcore.DebugLevel
	default:
		return traceLevel
	}
}

func encodeLevel(lvl zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	var tag string
	switch {
	case lvl <= traceLevel:
		tag = "DBG"
	case lvl == zapcore.DebugLevel:
		tag = "VRB"
	case lvl == zapcore.InfoLevel:
		tag = "INF"
	case lvl == zapcore.WarnLevel:
		tag = "WRN"
	default:
		tag = "ERR"
	}
	enc.AppendString("[" + tag + "]")
}
