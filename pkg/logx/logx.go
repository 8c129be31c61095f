package logx

import (
	"fmt"
	"io"
)

// defaultLogger is the process-wide logger, configured from the environment.
var defaultLogger = NewFromEnv()

// SetDefault replaces the process-wide logger.
func SetDefault(l *Logger) { defaultLogger = l }

// Default returns the process-wide logger.
func Default() *Logger { return defaultLogger }

// SetLevel sets the level on the default logger.
func SetLevel(level Level) { defaultLogger.SetLevel(level) }

// SetOutput redirects the default logger's output.
func SetOutput(w io.Writer) { defaultLogger.SetOutput(w) }

func Debug(msg string) { defaultLogger.log(LevelDebug, msg, nil) }
func Info(msg string)  { defaultLogger.log(LevelInfo, msg, nil) }
func Warn(msg string)  { defaultLogger.log(LevelWarn, msg, nil) }
func Error(msg string) { defaultLogger.log(LevelError, msg, nil) }

func Fatal(msg string) {
	defaultLogger.log(LevelFatal, msg, nil)
	defaultLogger.exitFn(1)
}

func Debugf(format string, args ...any) { Debug(fmt.Sprintf(format, args...)) }
func Infof(format string, args ...any)  { Info(fmt.Sprintf(format, args...)) }
func Warnf(format string, args ...any)  { Warn(fmt.Sprintf(format, args...)) }
func Errorf(format string, args ...any) { Error(fmt.Sprintf(format, args...)) }
func Fatalf(format string, args ...any) { Fatal(fmt.Sprintf(format, args...)) }

// WithFields starts an entry on the default logger.
func WithFields(fields Fields) *Entry { return defaultLogger.WithFields(fields) }

// WithField starts an entry with a single field on the default logger.
func WithField(key string, value any) *Entry { return defaultLogger.WithField(key, value) }

// WithError starts an entry with an error field on the default logger.
func WithError(err error) *Entry { return defaultLogger.WithError(err) }
