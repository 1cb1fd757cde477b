package logger

import (
	"context"
	"io"
	"log"
	"os"
	"strings"
)

var levels = map[string]int{
	"debug": 0,
	"info":  1,
	"warn":  2,
	"error": 3,
}

type implLogger struct {
	out   *log.Logger
	err   *log.Logger
	level string
}

// New creates a Logger writing to stdout, with errors duplicated to stderr
func New(level string) Logger {
	return NewWithOutput(level, os.Stdout, os.Stderr)
}

// NewWithOutput creates a Logger with explicit destinations. A nil errOut
// disables the error duplicate.
func NewWithOutput(level string, out, errOut io.Writer) Logger {
	if out == nil {
		out = io.Discard
	}
	l := &implLogger{
		out:   log.New(out, "", log.LstdFlags),
		level: strings.ToLower(strings.TrimSpace(level)),
	}
	if errOut != nil {
		l.err = log.New(errOut, "", log.LstdFlags)
	}
	return l
}

// LevelFromVerbosity maps a -v count onto a level name
func LevelFromVerbosity(verbosity int) string {
	if verbosity > 0 {
		return "debug"
	}
	return "info"
}

// ValidLevel reports whether level is a known level name
func ValidLevel(level string) bool {
	_, ok := levels[strings.ToLower(strings.TrimSpace(level))]
	return ok
}

func (l *implLogger) shouldLog(level string) bool {
	currentLevel, ok := levels[l.level]
	if !ok {
		currentLevel = 1 // default to info
	}

	targetLevel, ok := levels[level]
	if !ok {
		return true
	}

	return targetLevel >= currentLevel
}

func (l *implLogger) Debug(ctx context.Context, msg string, args ...interface{}) {
	if l.shouldLog("debug") {
		l.out.Printf("[DEBUG] "+msg, args...)
	}
}

func (l *implLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.shouldLog("info") {
		l.out.Printf("[INFO] "+msg, args...)
	}
}

func (l *implLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.shouldLog("warn") {
		l.out.Printf("[WARN] "+msg, args...)
	}
}

func (l *implLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	l.out.Printf("[ERROR] "+msg, args...)
	if l.err != nil {
		l.err.Printf("[ERROR] "+msg, args...)
	}
}

type nopLogger struct{}

// Nop returns a Logger that discards everything
func Nop() Logger {
	return nopLogger{}
}

func (nopLogger) Debug(context.Context, string, ...interface{}) {}
func (nopLogger) Info(context.Context, string, ...interface{})  {}
func (nopLogger) Warn(context.Context, string, ...interface{})  {}
func (nopLogger) Error(context.Context, string, ...interface{}) {}
