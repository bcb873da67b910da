package lib

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	LogDirectory = "logs"
	LogFileName  = "log"
)

/*
	This file implements a logging system with support for different log levels (Debug, Info, Warn, Error, Fatal) and colored output.
	The Logger writes to stdout and **auto-rotating log files**, or emits structured JSON lines for CI runs.
*/

func init() {
	color.NoColor = false
}

// LoggerI defines the interface for various logging levels and formatted output
type LoggerI interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	Fatal(msg string)
	Print(msg string)
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	Printf(format string, args ...interface{})
}

const (
	DebugLevel int32 = -4
	InfoLevel  int32 = 0
	WarnLevel  int32 = 4
	ErrorLevel int32 = 8

	Reset = iota
	RED
	GREEN
	YELLOW
	BLUE
	GRAY
)

var (
	_ LoggerI = &Logger{}
)

// LoggerConfig holds configuration settings for the logger, including logging level and output writer
type LoggerConfig struct {
	Level  int32  `json:"level"`
	JSON   bool   `json:"json"`   // emit structured JSON lines instead of colored text
	Prefix string `json:"prefix"` // a name attached to every line, usually the node alias
	Stderr bool   `json:"stderr"` // write the console copy to stderr, keeping stdout for reports
	Out    io.Writer
}

// Logger is the concrete implementation of LoggerI, managing log output based on configuration
type Logger struct {
	config     LoggerConfig
	structured *zap.SugaredLogger
}

// Debug() logs a message at the Debug level with blue color
func (l *Logger) Debug(msg string) {
	if l.config.Level <= DebugLevel {
		if l.structured != nil {
			l.structured.Debug(msg)
			return
		}
		l.write(colorString(BLUE, "DEBUG: "+l.prefix()+msg))
	}
}

// Info() logs a message at the Info level with green color
func (l *Logger) Info(msg string) {
	if l.config.Level <= InfoLevel {
		if l.structured != nil {
			l.structured.Info(msg)
			return
		}
		l.write(colorString(GREEN, "INFO: "+l.prefix()+msg))
	}
}

// Warn() logs a message at the Warn level with yellow color
func (l *Logger) Warn(msg string) {
	if l.config.Level <= WarnLevel {
		if l.structured != nil {
			l.structured.Warn(msg)
			return
		}
		l.write(colorString(YELLOW, "WARN: "+l.prefix()+msg))
	}
}

// Error() logs a message at the Error level with red color
func (l *Logger) Error(msg string) {
	if l.config.Level <= ErrorLevel {
		if l.structured != nil {
			l.structured.Error(msg)
			return
		}
		l.write(colorString(RED, "ERROR: "+l.prefix()+msg))
	}
}

// Print() logs a message without any specific log level or color
func (l *Logger) Print(msg string) {
	if l.structured != nil {
		l.structured.Info(msg)
		return
	}
	l.write(msg)
}

// Fatal() logs an error message and terminates the program
func (l *Logger) Fatal(msg string) {
	l.Error(msg)
	l.sync()
	os.Exit(1)
}

// Debugf() logs a formatted message at the Debug level with blue color
func (l *Logger) Debugf(format string, args ...interface{}) { l.Debug(fmt.Sprintf(format, args...)) }

// Infof() logs a formatted message at the Info level with green color
func (l *Logger) Infof(format string, args ...interface{}) { l.Info(fmt.Sprintf(format, args...)) }

// Warnf() logs a formatted message at the Warn level with yellow color
func (l *Logger) Warnf(format string, args ...interface{}) { l.Warn(fmt.Sprintf(format, args...)) }

// Errorf() logs a formatted message at the Error level with red color
func (l *Logger) Errorf(format string, args ...interface{}) { l.Error(fmt.Sprintf(format, args...)) }

// Fatalf() logs a formatted error message and terminates the program
func (l *Logger) Fatalf(format string, args ...interface{}) { l.Fatal(fmt.Sprintf(format, args...)) }

// Printf() logs a formatted message without any specific log level or color
func (l *Logger) Printf(format string, args ...interface{}) { l.Print(fmt.Sprintf(format, args...)) }

// With() returns a child logger that tags every line with the given name
func (l *Logger) With(name string) LoggerI {
	config := l.config
	config.Prefix = name
	child := &Logger{config: config}
	if l.structured != nil {
		child.structured = l.structured.With("node", name)
	}
	return child
}

// write() outputs the log message with a timestamp to the configured writer
func (l *Logger) write(msg string) {
	timeColored := colorString(GRAY, time.Now().Format(time.StampMilli))
	if _, err := l.config.Out.Write([]byte(fmt.Sprintf("%s %s\n", timeColored, msg))); err != nil {
		fmt.Println(err.Error())
	}
}

func (l *Logger) prefix() string {
	if l.config.Prefix == "" {
		return ""
	}
	return "[" + l.config.Prefix + "] "
}

func (l *Logger) sync() {
	if l.structured != nil {
		_ = l.structured.Sync()
	}
}

// NewLogger() creates a new Logger instance with the specified configuration and optional data directory path
func NewLogger(config LoggerConfig, dataDirPath ...string) LoggerI {
	if config.Out == nil {
		if dataDirPath == nil || dataDirPath[0] == "" {
			dataDirPath = make([]string, 1)
			dataDirPath[0] = DefaultDataDirPath()
		}
		logPath := filepath.Join(dataDirPath[0], LogDirectory, LogFileName)
		if _, err := os.Stat(logPath); errors.Is(err, os.ErrNotExist) {
			if err = os.MkdirAll(filepath.Join(dataDirPath[0], LogDirectory), os.ModePerm); err != nil {
				panic(err)
			}
		}
		logFile := &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    1, // megabyte
			MaxBackups: 100,
			MaxAge:     14, // days
			Compress:   true,
		}
		var console io.Writer = os.Stdout
		if config.Stderr {
			console = os.Stderr
		}
		config.Out = io.MultiWriter(console, logFile)
	}
	logger := &Logger{config: config}
	if config.JSON {
		logger.structured = newStructuredLogger(config)
	}
	return logger
}

// newStructuredLogger() builds a zap JSON logger over the configured writer
func newStructuredLogger(config LoggerConfig) *zap.SugaredLogger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(config.Out), zapLevel(config.Level))
	sugared := zap.New(core).Sugar()
	if config.Prefix != "" {
		sugared = sugared.With("node", config.Prefix)
	}
	return sugared
}

// zapLevel() maps the logger's levels onto zap's
func zapLevel(level int32) zapcore.Level {
	switch {
	case level <= DebugLevel:
		return zapcore.DebugLevel
	case level <= InfoLevel:
		return zapcore.InfoLevel
	case level <= WarnLevel:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// NewDefaultLogger() creates a Logger with default settings, logging at the Debug level to stdout
func NewDefaultLogger() LoggerI {
	return NewLogger(LoggerConfig{
		Level: DebugLevel,
		Out:   os.Stdout,
	})
}

// NewNullLogger() creates a Logger that discards all log output
func NewNullLogger() LoggerI {
	return NewLogger(LoggerConfig{
		Level: DebugLevel,
		Out:   io.Discard,
	})
}

// colorString() returns a string with color applied, preserving line breaks
func colorString(c int, msg string) (res string) {
	arr := strings.Split(msg, "\n")
	l := len(arr)
	for i, part := range arr {
		res += cString(c, part)
		if i != l-1 {
			res += "\n"
		}
	}
	return
}

// cString() returns a string with a specific color applied
func cString(c int, msg string) string {
	switch c {
	case BLUE:
		return color.BlueString(msg)
	case RED:
		return color.RedString(msg)
	case YELLOW:
		return color.YellowString(msg)
	case GREEN:
		return color.GreenString(msg)
	case GRAY:
		return color.HiBlackString(msg)
	default:
		return color.WhiteString(msg)
	}
}

// NamedLogger() returns a logger tagged with name when the implementation supports it
func NamedLogger(l LoggerI, name string) LoggerI {
	if named, ok := l.(interface{ With(string) LoggerI }); ok {
		return named.With(name)
	}
	return l
}

// LogBuffer is an io.Writer that keeps the last 'capacity' lines written to it, used to capture node logs
type LogBuffer struct {
	mu       sync.Mutex
	lines    []string
	partial  string
	capacity int
}

// NewLogBuffer() creates a LogBuffer retaining up to capacity lines
func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = 1000
	}
	return &LogBuffer{capacity: capacity}
}

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// Write() splits p into lines, dropping color codes
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	text := b.partial + ansiEscape.ReplaceAllString(string(p), "")
	parts := strings.Split(text, "\n")
	// the last element is an unterminated line or empty
	b.partial = parts[len(parts)-1]
	for _, line := range parts[:len(parts)-1] {
		b.lines = append(b.lines, line)
	}
	if over := len(b.lines) - b.capacity; over > 0 {
		b.lines = append([]string(nil), b.lines[over:]...)
	}
	return len(p), nil
}

// Lines() returns a copy of the retained lines, oldest first
func (b *LogBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.lines...)
}

// LogFilter selects captured log lines
type LogFilter struct {
	OnlyErrors bool   // keep ERROR lines only
	Contains   string // keep lines containing the substring
	Tail       int    // keep the last n lines, 0 keeps all
}

// Apply() filters lines in order
func (f LogFilter) Apply(lines []string) (out []string) {
	for _, line := range lines {
		if f.OnlyErrors && !strings.Contains(line, "ERROR") && !strings.Contains(line, `"level":"error"`) {
			continue
		}
		if f.Contains != "" && !strings.Contains(line, f.Contains) {
			continue
		}
		out = append(out, line)
	}
	if f.Tail > 0 && len(out) > f.Tail {
		out = out[len(out)-f.Tail:]
	}
	return
}
