// Package logging adapts the standard library logger to the zzzlogi.Logger
// shape the supervisor threads through every component, the same way
// Tuxdude-pico's serviceManagerImpl carries a zzzlogi.Logger field.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/tuxdude/zzzlogi"
)

// Level controls which severities are emitted.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// ParseLevel converts a CLI-facing string into a Level, defaulting to Info
// for anything unrecognized.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// stdLogger implements zzzlogi.Logger on top of the standard library's
// *log.Logger. The concrete zzzlogi implementation isn't part of the
// retrieval pack, so this adapter is grown locally rather than guessed at;
// see DESIGN.md for the reasoning.
type stdLogger struct {
	mu    sync.Mutex
	out   *log.Logger
	level Level
}

var _ zzzlogi.Logger = (*stdLogger)(nil)

// New returns a zzzlogi.Logger that writes to w, filtering out any record
// below level.
func New(w io.Writer, level Level) zzzlogi.Logger {
	return &stdLogger{
		out:   log.New(w, "", log.Ldate|log.Ltime|log.Lmicroseconds),
		level: level,
	}
}

// NewStderr returns the default supervisor logger, writing to stderr.
func NewStderr(level Level) zzzlogi.Logger {
	return New(os.Stderr, level)
}

func (l *stdLogger) emit(lvl Level, tag, format string, args ...interface{}) {
	if lvl < l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Printf("%-5s %s", tag, fmt.Sprintf(format, args...))
}

func (l *stdLogger) Tracef(format string, args ...interface{}) {
	l.emit(LevelTrace, "TRACE", format, args...)
}

func (l *stdLogger) Debugf(format string, args ...interface{}) {
	l.emit(LevelDebug, "DEBUG", format, args...)
}

func (l *stdLogger) Infof(format string, args ...interface{}) {
	l.emit(LevelInfo, "INFO", format, args...)
}

func (l *stdLogger) Warnf(format string, args ...interface{}) {
	l.emit(LevelWarn, "WARN", format, args...)
}

func (l *stdLogger) Errorf(format string, args ...interface{}) {
	l.emit(LevelError, "ERROR", format, args...)
}

func (l *stdLogger) Fatalf(format string, args ...interface{}) {
	l.emit(LevelFatal, "FATAL", format, args...)
	os.Exit(1)
}

func (l *stdLogger) Panicf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.emit(LevelFatal, "PANIC", "%s", msg)
	panic(msg)
}
