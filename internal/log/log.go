// Package log is a small leveled logger that writes key=value lines
// through the standard library logger.
package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Logger writes leveled lines of the form "[LEVEL] msg key=value ...".
// Loggers derived with With share the underlying writer and level.
type Logger struct {
	std    *stdlog.Logger
	level  *levelVar
	fields []any
}

type levelVar struct {
	mu sync.RWMutex
	l  Level
}

func (v *levelVar) get() Level {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.l
}

func (v *levelVar) set(l Level) {
	v.mu.Lock()
	v.l = l
	v.mu.Unlock()
}

// New creates a Logger writing to w. flags are passed to the standard logger.
func New(w io.Writer, level Level, flags int) *Logger {
	return &Logger{
		std:   stdlog.New(w, "", flags),
		level: &levelVar{l: level},
	}
}

var std = New(os.Stderr, LevelInfo, stdlog.LstdFlags)

// Default returns the process-wide logger.
func Default() *Logger { return std }

// SetVerbose toggles DEBUG output on the process-wide logger.
func SetVerbose(verbose bool) {
	if verbose {
		std.SetLevel(LevelDebug)
		return
	}
	std.SetLevel(LevelInfo)
}

func (l *Logger) SetLevel(level Level) { l.level.set(level) }

func (l *Logger) Enabled(level Level) bool { return level >= l.level.get() }

// With returns a logger that appends kv to every line.
func (l *Logger) With(kv ...any) *Logger {
	fields := make([]any, 0, len(l.fields)+len(kv))
	fields = append(fields, l.fields...)
	fields = append(fields, kv...)
	return &Logger{std: l.std, level: l.level, fields: fields}
}

func (l *Logger) Debug(msg string, kv ...any) { l.log(LevelDebug, msg, kv) }
func (l *Logger) Info(msg string, kv ...any)  { l.log(LevelInfo, msg, kv) }
func (l *Logger) Warn(msg string, kv ...any)  { l.log(LevelWarn, msg, kv) }

// Error logs msg with err prepended to the key-value list.
func (l *Logger) Error(msg string, err error, kv ...any) {
	l.log(LevelError, msg, append([]any{"err", err}, kv...))
}

func (l *Logger) log(level Level, msg string, kv []any) {
	if !l.Enabled(level) {
		return
	}
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(level.String())
	b.WriteString("] ")
	b.WriteString(msg)
	writeKVs(&b, l.fields)
	writeKVs(&b, kv)
	l.std.Println(b.String())
}

// writeKVs expects pairs; a trailing odd element is ignored.
func writeKVs(b *strings.Builder, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		b.WriteString(" ")
		b.WriteString(key)
		b.WriteString("=")
		b.WriteString(formatValue(kv[i+1]))
	}
}

func formatValue(v any) string {
	s := fmt.Sprint(v)
	if s == "" || strings.ContainsAny(s, " \t\"=") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

func Debug(msg string, kv ...any)            { std.Debug(msg, kv...) }
func Info(msg string, kv ...any)             { std.Info(msg, kv...) }
func Warn(msg string, kv ...any)             { std.Warn(msg, kv...) }
func Error(msg string, err error, kv ...any) { std.Error(msg, err, kv...) }
