package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
)

// Level represents a logging level
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Format represents the log output format
type Format int

const (
	Text Format = iota
	JSON
)

// Logger handles structured logging
type Logger struct {
	out    io.Writer
	level  Level
	format Format
}

// LogConfig contains logger configuration
type LogConfig struct {
	Level  Level
	Format Format
}

var (
	defaultLogger = &Logger{
		out:    os.Stdout,
		level:  INFO,
		format: Text,
	}

	// Color definitions
	debugColor = color.New(color.FgCyan)
	infoColor  = color.New(color.FgGreen)
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed)
)

// Configure sets up the default logger
func Configure(config LogConfig) {
	defaultLogger.level = config.Level
	defaultLogger.format = config.Format
}

type logEntry struct {
	Timestamp string      `json:"timestamp"`
	Level     string      `json:"level"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
}

func (l *Logger) log(level Level, msg string, data interface{}) {
	if level < l.level {
		return
	}

	timestamp := time.Now().Format("2006/01/02 15:04:05")

	if l.format == JSON {
		entry := logEntry{
			Timestamp: timestamp,
			Level:     level.String(),
			Message:   msg,
			Data:      data,
		}
		json.NewEncoder(l.out).Encode(entry)
		return
	}

	// Text format with colors
	var levelColor *color.Color
	switch level {
	case DEBUG:
		levelColor = debugColor
	case INFO:
		levelColor = infoColor
	case WARN:
		levelColor = warnColor
	case ERROR:
		levelColor = errorColor
	}

	levelStr := levelColor.Sprintf("%-5s", level.String())
	fmt.Fprintf(l.out, "%s %s: %s", timestamp, levelStr, msg)
	if data != nil {
		fmt.Fprintf(l.out, " %+v", data)
	}
	fmt.Fprintln(l.out)
}

func (l *Logger) Debug(msg string, data ...interface{}) {
	l.log(DEBUG, msg, firstOrNil(data))
}

func (l *Logger) Info(msg string, data ...interface{}) {
	l.log(INFO, msg, firstOrNil(data))
}

func (l *Logger) Warn(msg string, data ...interface{}) {
	l.log(WARN, msg, firstOrNil(data))
}

func (l *Logger) Error(msg string, err error, data ...interface{}) {
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	l.log(ERROR, msg, firstOrNil(data))
}

// firstOrNil returns the first element of data if present, nil otherwise
func firstOrNil(data []interface{}) interface{} {
	if len(data) > 0 {
		return data[0]
	}
	return nil
}

// PoolStart logs pool construction.
func (l *Logger) PoolStart(threadCount, queueSize int, createPolicy string) {
	l.Info("pool created", map[string]interface{}{
		"thread_count":  threadCount,
		"queue_size":    queueSize,
		"create_policy": createPolicy,
	})
}

// WorkerBlocked logs a worker latching into BLOCKED after a task returned
// a non-zero status with block-on-error enabled.
func (l *Logger) WorkerBlocked(index int, taskType string, rc int) {
	l.Warn("worker blocked on task error", map[string]interface{}{
		"worker":    index,
		"task_type": taskType,
		"rc":        rc,
	})
}

// WorkerRestarted logs a RestartThread call taking effect.
func (l *Logger) WorkerRestarted(index int, from string) {
	l.Info("worker restarted", map[string]interface{}{
		"worker": index,
		"from":   from,
	})
}

// PoolDestroying logs the start of pool teardown.
func (l *Logger) PoolDestroying(graceful bool, pending int) {
	l.Info("pool destroying", map[string]interface{}{
		"graceful": graceful,
		"pending":  pending,
	})
}

// PoolDestroyed logs the completion of pool teardown.
func (l *Logger) PoolDestroyed() {
	l.Info("pool destroyed", nil)
}

// Default logger methods
func Debug(msg string, data ...interface{}) {
	defaultLogger.Debug(msg, data...)
}

func Info(msg string, data ...interface{}) {
	defaultLogger.Info(msg, data...)
}

func Warn(msg string, data ...interface{}) {
	defaultLogger.Warn(msg, data...)
}

func Error(msg string, err error, data ...interface{}) {
	defaultLogger.Error(msg, err, data...)
}

func PoolStart(threadCount, queueSize int, createPolicy string) {
	defaultLogger.PoolStart(threadCount, queueSize, createPolicy)
}

func WorkerBlocked(index int, taskType string, rc int) {
	defaultLogger.WorkerBlocked(index, taskType, rc)
}

func WorkerRestarted(index int, from string) {
	defaultLogger.WorkerRestarted(index, from)
}

func PoolDestroying(graceful bool, pending int) {
	defaultLogger.PoolDestroying(graceful, pending)
}

func PoolDestroyed() {
	defaultLogger.PoolDestroyed()
}

// NewLogger builds a standalone Logger writing to out, independent of the
// package-level default (used when a Pool is given its own logger rather
// than relying on the shared one).
func NewLogger(out io.Writer, config LogConfig) *Logger {
	return &Logger{out: out, level: config.Level, format: config.Format}
}
