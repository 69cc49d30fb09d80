// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nanomq

import (
	"io"
	"log"
	"os"
)

// LogLevel is a logging verbosity threshold. Lower values are more severe
// and are always included when a higher level is enabled.
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
	LogLevelTrace
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelError:
		return "ERROR"
	case LogLevelWarn:
		return "WARN"
	case LogLevelInfo:
		return "INFO"
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelTrace:
		return "TRACE"
	default:
		return "UNKNOWN"
	}
}

// Logger wraps the standard library logger with a level threshold, shared
// by the broker, the client, and every example command.
type Logger struct {
	logger *log.Logger
	level  LogLevel
}

// NewLogger creates a Logger writing to stderr at the given level.
func NewLogger(level LogLevel) *Logger {
	return NewLoggerWithWriter(os.Stderr, level)
}

// NewLoggerWithWriter creates a Logger writing to w at the given level.
func NewLoggerWithWriter(w io.Writer, level LogLevel) *Logger {
	return &Logger{
		logger: log.New(w, "nanomq: ", log.LstdFlags),
		level:  level,
	}
}

// SetLevel sets the minimum logging level.
func (l *Logger) SetLevel(level LogLevel) {
	l.level = level
}

// GetLevel returns the current logging level.
func (l *Logger) GetLevel() LogLevel {
	return l.level
}

// IsEnabled reports whether level would be printed at the logger's current
// threshold.
func (l *Logger) IsEnabled(level LogLevel) bool {
	return level <= l.level
}

func (l *Logger) logf(level LogLevel, format string, args ...interface{}) {
	if !l.IsEnabled(level) {
		return
	}
	l.logger.Printf("["+level.String()+"] "+format, args...)
}

// Error logs at error level, which every level threshold includes.
// DevNullLogger still shows nothing, since it writes to io.Discard.
func (l *Logger) Error(format string, args ...interface{}) { l.logf(LogLevelError, format, args...) }

// Warn logs at warning level.
func (l *Logger) Warn(format string, args ...interface{}) { l.logf(LogLevelWarn, format, args...) }

// Info logs at info level.
func (l *Logger) Info(format string, args ...interface{}) { l.logf(LogLevelInfo, format, args...) }

// Debug logs at debug level.
func (l *Logger) Debug(format string, args ...interface{}) { l.logf(LogLevelDebug, format, args...) }

// Trace logs at trace level, the most verbose setting.
func (l *Logger) Trace(format string, args ...interface{}) { l.logf(LogLevelTrace, format, args...) }

var (
	// DevNullLogger discards all output. Used by tests that would otherwise
	// spam stderr with expected connection errors.
	DevNullLogger = NewLoggerWithWriter(io.Discard, LogLevelError)

	// DefaultLogger is the broker's and client's fallback when no logger is
	// configured.
	DefaultLogger = NewLogger(LogLevelInfo)
)
