// Package logx is the structured logger used across the codebase. It writes
// line-oriented console output by default and JSON when LOG_FORMAT=json,
// which is what the deployment's log shipper expects.
package logx

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"
)

// Fields is a set of structured key/value pairs attached to a log line.
type Fields map[string]any

// Logger writes leveled, structured log lines.
type Logger struct {
	mu     sync.Mutex
	level  Level
	json   bool
	out    io.Writer
	exitFn func(int)
}

// New creates a logger writing to out.
func New(level Level, jsonFormat bool, out io.Writer) *Logger {
	if out == nil {
		out = os.Stdout
	}
	return &Logger{level: level, json: jsonFormat, out: out, exitFn: os.Exit}
}

// NewFromEnv builds a logger from LOG_LEVEL and LOG_FORMAT.
func NewFromEnv() *Logger {
	return New(ParseLevel(os.Getenv("LOG_LEVEL")), os.Getenv("LOG_FORMAT") == "json", os.Stdout)
}

// SetLevel sets the minimum level that will be written.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// SetOutput redirects log output.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
}

// WithFields starts an entry carrying the given fields.
func (l *Logger) WithFields(fields Fields) *Entry {
	e := &Entry{logger: l, fields: make(Fields, len(fields))}
	for k, v := range fields {
		e.fields[k] = v
	}
	return e
}

// WithField starts an entry carrying a single field.
func (l *Logger) WithField(key string, value any) *Entry {
	return l.WithFields(Fields{key: value})
}

// WithError starts an entry carrying an error field.
func (l *Logger) WithError(err error) *Entry {
	e := &Entry{logger: l, fields: make(Fields, 1)}
	if err != nil {
		e.fields["error"] = err.Error()
	}
	return e
}

func (l *Logger) log(level Level, msg string, fields Fields) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}

	now := time.Now().Format(time.RFC3339)

	if l.json {
		line := make(map[string]any, len(fields)+3)
		for k, v := range fields {
			line[k] = v
		}
		line["time"] = now
		line["level"] = level.String()
		line["msg"] = msg
		b, err := json.Marshal(line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logx: marshal failed: %v\n", err)
			return
		}
		fmt.Fprintln(l.out, string(b))
		return
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(l.out, "%s [%s] %s", now, level.String(), msg)
	for _, k := range keys {
		fmt.Fprintf(l.out, " %s=%v", k, fields[k])
	}
	fmt.Fprintln(l.out)
}

// Entry accumulates fields before emitting a single log line.
type Entry struct {
	logger *Logger
	fields Fields
}

// WithField adds a field. Chainable.
func (e *Entry) WithField(key string, value any) *Entry {
	e.fields[key] = value
	return e
}

// WithFields adds multiple fields. Chainable.
func (e *Entry) WithFields(fields Fields) *Entry {
	for k, v := range fields {
		e.fields[k] = v
	}
	return e
}

// WithError adds an error field. Chainable.
func (e *Entry) WithError(err error) *Entry {
	if err != nil {
		e.fields["error"] = err.Error()
	}
	return e
}

func (e *Entry) Debug(msg string) { e.logger.log(LevelDebug, msg, e.fields) }
func (e *Entry) Info(msg string)  { e.logger.log(LevelInfo, msg, e.fields) }
func (e *Entry) Warn(msg string)  { e.logger.log(LevelWarn, msg, e.fields) }
func (e *Entry) Error(msg string) { e.logger.log(LevelError, msg, e.fields) }

func (e *Entry) Fatal(msg string) {
	e.logger.log(LevelFatal, msg, e.fields)
	e.logger.exitFn(1)
}
