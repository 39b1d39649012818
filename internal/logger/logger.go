// Package logger provides leveled structured logging.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Level represents a logging level.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "FATAL"
	}
}

// Logger provides leveled logging.
type Logger struct {
	level  Level
	json   bool
	logger *log.Logger // text format
	mu     sync.Mutex  // json format
	out    io.Writer
}

var defaultLogger *Logger

// Init initializes the default logger with the specified level and format.
func Init(level string, format string) {
	InitWriter(os.Stderr, level, format)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, level string, format string) {
	var l Level
	switch strings.ToLower(level) {
	case "debug":
		l = DebugLevel
	case "info":
		l = InfoLevel
	case "warn":
		l = WarnLevel
	case "error":
		l = ErrorLevel
	default:
		l = InfoLevel
	}

	defaultLogger = &Logger{
		level:  l,
		json:   strings.ToLower(format) == "json",
		logger: log.New(w, "", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		out:    w,
	}
}

type entry struct {
	Time   string `json:"time"`
	Level  string `json:"level"`
	Msg    string `json:"msg"`
	Caller string `json:"caller,omitempty"`
}

func (l *Logger) output(level Level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if !l.json {
		_ = l.logger.Output(3, "["+level.String()+"] "+msg)
		return
	}

	e := entry{
		Time:  time.Now().UTC().Format(time.RFC3339Nano),
		Level: strings.ToLower(level.String()),
		Msg:   msg,
	}
	if _, file, line, ok := runtime.Caller(2); ok {
		e.Caller = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	b, err := json.Marshal(e)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.out.Write(append(b, '\n'))
}

func Debug(format string, args ...interface{}) {
	if defaultLogger != nil && defaultLogger.level <= DebugLevel {
		defaultLogger.output(DebugLevel, format, args...)
	}
}

func Info(format string, args ...interface{}) {
	if defaultLogger != nil && defaultLogger.level <= InfoLevel {
		defaultLogger.output(InfoLevel, format, args...)
	}
}

func Warn(format string, args ...interface{}) {
	if defaultLogger != nil && defaultLogger.level <= WarnLevel {
		defaultLogger.output(WarnLevel, format, args...)
	}
}

func Error(format string, args ...interface{}) {
	if defaultLogger != nil && defaultLogger.level <= ErrorLevel {
		defaultLogger.output(ErrorLevel, format, args...)
	}
}

func Fatal(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.output(FatalLevel, format, args...)
	}
	os.Exit(1)
}
