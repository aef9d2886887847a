// PiBear - LINE companion bot with memory and scheduled pushes
// License: MIT
//
// Copyright (c) 2026 PiBear contributors

package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var (
	base     = newBase()
	sinkMu   sync.Mutex
	fileSink *fileHook
)

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		DisableColors:   true,
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// fileHook mirrors every entry to a JSON log file next to the console output.
type fileHook struct {
	mu        sync.Mutex
	file      *os.File
	formatter logrus.Formatter
}

func (h *fileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *fileHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.file.Write(line)
	return err
}

func SetLevel(level LogLevel) {
	base.SetLevel(toLogrus(level))
}

func GetLevel() LogLevel {
	switch base.GetLevel() {
	case logrus.DebugLevel, logrus.TraceLevel:
		return DEBUG
	case logrus.WarnLevel:
		return WARN
	case logrus.ErrorLevel:
		return ERROR
	case logrus.FatalLevel, logrus.PanicLevel:
		return FATAL
	default:
		return INFO
	}
}

// SetOutput redirects console output. Tests use it to capture log lines.
func SetOutput(w io.Writer) {
	base.SetOutput(w)
}

// EnableFileLogging appends JSON-formatted entries to path in addition to the
// console. Calling it again switches to the new file.
func EnableFileLogging(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	sinkMu.Lock()
	defer sinkMu.Unlock()
	if fileSink != nil {
		_ = fileSink.file.Close()
	}
	fileSink = &fileHook{
		file:      f,
		formatter: &logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"},
	}
	hooks := make(logrus.LevelHooks)
	hooks.Add(fileSink)
	base.ReplaceHooks(hooks)
	return nil
}

func DisableFileLogging() {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	base.ReplaceHooks(make(logrus.LevelHooks))
	if fileSink != nil {
		_ = fileSink.file.Close()
		fileSink = nil
	}
}

func toLogrus(level LogLevel) logrus.Level {
	switch level {
	case DEBUG:
		return logrus.DebugLevel
	case WARN:
		return logrus.WarnLevel
	case ERROR:
		return logrus.ErrorLevel
	case FATAL:
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

func logMessage(level LogLevel, component, message string, fields map[string]interface{}) {
	entry := logrus.NewEntry(base)
	if component != "" {
		entry = entry.WithField("component", component)
	}
	if len(fields) > 0 {
		entry = entry.WithFields(logrus.Fields(fields))
	}

	switch level {
	case DEBUG:
		entry.Debug(message)
	case WARN:
		entry.Warn(message)
	case ERROR:
		entry.Error(message)
	case FATAL:
		entry.Fatal(message)
	default:
		entry.Info(message)
	}
}

func Debug(message string) {
	logMessage(DEBUG, "", message, nil)
}

func DebugC(component string, message string) {
	logMessage(DEBUG, component, message, nil)
}

func DebugF(message string, fields map[string]interface{}) {
	logMessage(DEBUG, "", message, fields)
}

func DebugCF(component string, message string, fields map[string]interface{}) {
	logMessage(DEBUG, component, message, fields)
}

func Info(message string) {
	logMessage(INFO, "", message, nil)
}

func InfoC(component string, message string) {
	logMessage(INFO, component, message, nil)
}

func InfoF(message string, fields map[string]interface{}) {
	logMessage(INFO, "", message, fields)
}

func InfoCF(component string, message string, fields map[string]interface{}) {
	logMessage(INFO, component, message, fields)
}

func Warn(message string) {
	logMessage(WARN, "", message, nil)
}

func WarnC(component string, message string) {
	logMessage(WARN, component, message, nil)
}

func WarnF(message string, fields map[string]interface{}) {
	logMessage(WARN, "", message, fields)
}

func WarnCF(component string, message string, fields map[string]interface{}) {
	logMessage(WARN, component, message, fields)
}

func Error(message string) {
	logMessage(ERROR, "", message, nil)
}

func ErrorC(component string, message string) {
	logMessage(ERROR, component, message, nil)
}

func ErrorF(message string, fields map[string]interface{}) {
	logMessage(ERROR, "", message, fields)
}

func ErrorCF(component string, message string, fields map[string]interface{}) {
	logMessage(ERROR, component, message, fields)
}

func FatalCF(component string, message string, fields map[string]interface{}) {
	logMessage(FATAL, component, message, fields)
}
