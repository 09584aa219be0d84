// Package logging provides leveled, per-component loggers writing to stderr.
//
// Command output goes to stdout as JSON, so diagnostics must never be mixed
// into it; every logger here writes to a shared io.Writer (stderr by default).
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Level is a log severity.
type Level int

// Log levels, in increasing severity.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelSilent
)

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

var (
	mu       sync.Mutex
	output   io.Writer = os.Stderr
	minLevel           = LevelWarn
)

// ParseLevel converts a config value ("debug", "info", "warn", "error", "silent").
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "silent", "off":
		return LevelSilent, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level: %q", s)
}

// SetLevel sets the minimum level written by all loggers.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	minLevel = l
}

// SetOutput redirects all loggers. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// Logger writes messages tagged with a component name.
type Logger struct {
	component string
}

// New returns a logger for the named component.
func New(component string) *Logger {
	return &Logger{component: component}
}

func (l *Logger) logf(level Level, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if level < minLevel {
		return
	}
	lg := log.New(output, "", log.LstdFlags)
	lg.Printf("[%s] [%s] %s", levelNames[level], l.component, fmt.Sprintf(format, args...))
}

// Debugf logs a debug-level message.
func (l *Logger) Debugf(format string, args ...any) { l.logf(LevelDebug, format, args...) }

// Infof logs an info-level message.
func (l *Logger) Infof(format string, args ...any) { l.logf(LevelInfo, format, args...) }

// Warnf logs a warning-level message.
func (l *Logger) Warnf(format string, args ...any) { l.logf(LevelWarn, format, args...) }

// Errorf logs an error-level message.
func (l *Logger) Errorf(format string, args ...any) { l.logf(LevelError, format, args...) }
