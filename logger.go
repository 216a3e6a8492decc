package soletic

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger abstracts logging behaviour used across the project.
// Printf logs at info level.
type Logger interface {
	Printf(format string, args ...any)
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Level orders log entries by severity.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

// NewLogger returns a logger that writes info entries with a timestamp and tag to stdout.
func NewLogger(tag string) Logger {
	return NewLevelLogger(tag, os.Stdout, LevelInfo)
}

// NewLevelLogger writes entries up to maxLevel into w.
func NewLevelLogger(tag string, w io.Writer, maxLevel Level) Logger {
	return &structuredLogger{
		tag:   tag,
		sinks: []logSink{{writer: w, maxLevel: maxLevel}},
	}
}

// NewDiscardLogger returns a logger that drops all log entries (useful in tests).
func NewDiscardLogger() Logger {
	return discardLogger{}
}

// LogOptions configures NewCLILogger.
type LogOptions struct {
	Tag     string
	Console io.Writer
	Verbose bool
	Debug   bool
	// FilePath receives every entry at debug level. Empty disables the file sink.
	FilePath string
}

// NewCLILogger builds the logger used by the command line tool. The console
// only shows warnings unless verbose (info) or debug is requested; the log
// file always records everything. The returned closer releases the file.
func NewCLILogger(opts LogOptions) (Logger, io.Closer, error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	consoleLevel := LevelWarn
	if opts.Verbose {
		consoleLevel = LevelInfo
	}
	if opts.Debug {
		consoleLevel = LevelDebug
	}

	logger := &structuredLogger{
		tag:   opts.Tag,
		sinks: []logSink{{writer: console, maxLevel: consoleLevel}},
	}
	if opts.FilePath == "" {
		return logger, nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger.sinks = append(logger.sinks, logSink{writer: file, maxLevel: LevelDebug})
	return logger, file, nil
}

type logSink struct {
	writer   io.Writer
	maxLevel Level
}

type structuredLogger struct {
	tag   string
	sinks []logSink
	mu    sync.Mutex
}

func (l *structuredLogger) Printf(format string, args ...any) { l.log(LevelInfo, format, args...) }
func (l *structuredLogger) Debugf(format string, args ...any) { l.log(LevelDebug, format, args...) }
func (l *structuredLogger) Warnf(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *structuredLogger) Errorf(format string, args ...any) { l.log(LevelError, format, args...) }

func (l *structuredLogger) log(level Level, format string, args ...any) {
	if l == nil {
		return
	}
	timestamp := time.Now().UTC().Format("2006/01/02 15:04:05.000")
	message := fmt.Sprintf(format, args...)
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, sink := range l.sinks {
		if level > sink.maxLevel {
			continue
		}
		fmt.Fprintf(sink.writer, "%s [%s] %s %s\n", timestamp, l.tag, level, message)
	}
}

type discardLogger struct{}

func (discardLogger) Printf(string, ...any) {}
func (discardLogger) Debugf(string, ...any) {}
func (discardLogger) Warnf(string, ...any)  {}
func (discardLogger) Errorf(string, ...any) {}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
