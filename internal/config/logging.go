package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LogLevel represents logging verbosity levels.
type LogLevel int

// Log level constants, from quietest to loudest.
const (
	LogLevelOff LogLevel = iota
	LogLevelError
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

//nolint:gochecknoglobals // Read-only lookup table
var levelNames = map[LogLevel]string{
	LogLevelOff:   "off",
	LogLevelError: "error",
	LogLevelWarn:  "warn",
	LogLevelInfo:  "info",
	LogLevelDebug: "debug",
}

// ParseLogLevel parses a log level string. Unknown values fall back to error.
func ParseLogLevel(s string) LogLevel {
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case "none":
		return LogLevelOff
	case "warning":
		return LogLevelWarn
	}
	for level, name := range levelNames {
		if name == s {
			return level
		}
	}
	return LogLevelError
}

// String returns the string representation of a log level.
func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "error"
}

// sink is the destination shared by a logger and the loggers derived from it.
type sink struct {
	mu    sync.Mutex
	level LogLevel
	out   io.Writer
	file  *os.File
	path  string
	now   func() time.Time
}

// Logger writes leveled, timestamped lines. Loggers returned by Named share
// the sink of their parent and prefix each line with their component name.
type Logger struct {
	sink *sink
	name string
}

// NewLogger creates a logger that appends to filePath.
// A level of off or an empty path yields a logger that discards everything.
func NewLogger(level LogLevel, filePath string) (*Logger, error) {
	s := &sink{level: level, path: filePath, now: time.Now}
	if level == LogLevelOff || filePath == "" {
		return &Logger{sink: s}, nil
	}

	s.path = ExpandHome(filePath)
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return nil, err
	}

	// #nosec G304 -- log file path is from validated config
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	s.file = f
	s.out = f

	return &Logger{sink: s}, nil
}

// NewWriterLogger creates a logger that writes to w. The caller owns w.
func NewWriterLogger(level LogLevel, w io.Writer) *Logger {
	return &Logger{sink: &sink{level: level, out: w, now: time.Now}}
}

// NullLogger returns a logger that discards all output.
func NullLogger() *Logger {
	return &Logger{sink: &sink{level: LogLevelOff, now: time.Now}}
}

// Named returns a logger for a component. Names nest with dots.
func (l *Logger) Named(name string) *Logger {
	if l.name != "" {
		name = l.name + "." + name
	}
	return &Logger{sink: l.sink, name: name}
}

// Close closes the log file. Loggers sharing the sink stop writing.
func (l *Logger) Close() error {
	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()

	s.out = nil
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// SetLevel changes the log level of the sink.
func (l *Logger) SetLevel(level LogLevel) {
	l.sink.mu.Lock()
	l.sink.level = level
	l.sink.mu.Unlock()
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return l.sink.level
}

// Path returns the log file path, if logging to a file.
func (l *Logger) Path() string {
	return l.sink.path
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...any) {
	l.log(LogLevelDebug, format, args...)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...any) {
	l.log(LogLevelInfo, format, args...)
}

// Warn logs a warning.
func (l *Logger) Warn(format string, args ...any) {
	l.log(LogLevelWarn, format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...any) {
	l.log(LogLevelError, format, args...)
}

// Writer returns an io.Writer that logs each write at level.
func (l *Logger) Writer(level LogLevel) io.Writer {
	return writerFunc(func(p []byte) (int, error) {
		l.log(level, "%s", strings.TrimSpace(string(p)))
		return len(p), nil
	})
}

func (l *Logger) log(level LogLevel, format string, args ...any) {
	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.level == LogLevelOff || level > s.level || s.out == nil {
		return
	}

	var b strings.Builder
	b.WriteString(s.now().Format("2006-01-02 15:04:05.000"))
	b.WriteString(" [")
	b.WriteString(strings.ToUpper(level.String()))
	b.WriteString("] ")
	if l.name != "" {
		b.WriteString(l.name)
		b.WriteString(": ")
	}
	fmt.Fprintf(&b, format, args...)
	b.WriteByte('\n')

	_, _ = io.WriteString(s.out, b.String())
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) {
	return f(p)
}
