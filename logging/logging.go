package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// logging levels
const (
	TRACE = "TRACE"
	DEBUG = "DEBUG"
	INFO  = "INFO"
	WARN  = "WARN"
	ERROR = "ERROR"
)

var (
	mu     sync.RWMutex
	logger = newLogger(os.Stdout, INFO)
)

func newLogger(w io.Writer, level string) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "monstream",
		Level:  hclog.LevelFromString(level),
		Output: w,
	})
}

// SetLogLevel sets the log level for filtering logs
func SetLogLevel(logLevel string) {
	mu.RLock()
	defer mu.RUnlock()
	logger.SetLevel(hclog.LevelFromString(strings.ToUpper(logLevel)))
}

// SetOutput redirects logs to w, keeping the current level
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = newLogger(w, logger.GetLevel().String())
}

// Logger returns the underlying hclog logger
func Logger() hclog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Named returns a sub logger for a component
func Named(component string) hclog.Logger {
	return Logger().Named(component)
}

// StandardLogger adapts the logger to the standard library *log.Logger
func StandardLogger() *log.Logger {
	return Logger().StandardLogger(&hclog.StandardLoggerOptions{InferLevels: true})
}

// Trace logs a message at TRACE level
func Trace(message string, a ...any) {
	if l := Logger(); l.IsTrace() {
		l.Trace(fmt.Sprintf(message, a...))
	}
}

// Debug logs a message at DEBUG level
func Debug(message string, a ...any) {
	if l := Logger(); l.IsDebug() {
		l.Debug(fmt.Sprintf(message, a...))
	}
}

// Info logs a message at INFO level
func Info(message string, a ...any) {
	Logger().Info(fmt.Sprintf(message, a...))
}

// Warn logs a message at WARN level
func Warn(message string, a ...any) {
	Logger().Warn(fmt.Sprintf(message, a...))
}

// Error logs a message at ERROR level
func Error(message string, a ...any) {
	Logger().Error(fmt.Sprintf(message, a...))
}

// Panic exists with a panic
func Panic(message string, a ...any) {
	panic(fmt.Sprintf(message, a...))
}
