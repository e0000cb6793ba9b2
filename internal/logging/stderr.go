package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Level represents the severity of a log line.
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
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

var levelColors = map[Level]*color.Color{
	LevelDebug: color.New(color.FgHiBlack),
	LevelInfo:  color.New(color.FgCyan),
	LevelWarn:  color.New(color.FgYellow),
	LevelError: color.New(color.FgRed),
}

// Sink writes leveled log lines to a single writer.
//
// Stdout carries protocol frames, so the process sink always targets stderr;
// tests may point it anywhere.
type Sink struct {
	mu    sync.Mutex
	out   io.Writer
	level Level
	now   func() time.Time
}

// NewSink creates a sink writing to out, dropping lines below level.
func NewSink(out io.Writer, level Level) *Sink {
	return &Sink{out: out, level: level, now: time.Now}
}

// NewStderrSink creates the standard process sink.
func NewStderrSink(debug bool) *Sink {
	level := LevelInfo
	if debug {
		level = LevelDebug
	}
	return NewSink(os.Stderr, level)
}

// SetLevel adjusts the minimum level at runtime.
func (s *Sink) SetLevel(level Level) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.level = level
}

func (s *Sink) write(level Level, component, format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if level < s.level {
		return
	}
	label := level.String()
	if c, ok := levelColors[level]; ok {
		label = c.Sprint(label)
	}
	timestamp := s.now().Format("2006-01-02 15:04:05.000")
	message := fmt.Sprintf(format, args...)
	fmt.Fprintf(s.out, "%s [%s] [%s] %s\n", timestamp, label, component, message)
}

type componentLogger struct {
	sink      *Sink
	component string
}

func (l *componentLogger) Debug(format string, args ...any) {
	l.sink.write(LevelDebug, l.component, format, args...)
}

func (l *componentLogger) Info(format string, args ...any) {
	l.sink.write(LevelInfo, l.component, format, args...)
}

func (l *componentLogger) Warn(format string, args ...any) {
	l.sink.write(LevelWarn, l.component, format, args...)
}

func (l *componentLogger) Error(format string, args ...any) {
	l.sink.write(LevelError, l.component, format, args...)
}

// Component returns a logger scoped to a component name, backed by sink.
func (s *Sink) Component(component string) Logger {
	if component == "" {
		component = "bridge"
	}
	return &componentLogger{sink: s, component: component}
}

var (
	defaultSink   *Sink
	defaultSinkMu sync.Mutex
)

// SetDefaultSink installs the process-wide sink used by NewComponentLogger.
func SetDefaultSink(sink *Sink) {
	defaultSinkMu.Lock()
	defer defaultSinkMu.Unlock()
	defaultSink = sink
}

func getDefaultSink() *Sink {
	defaultSinkMu.Lock()
	defer defaultSinkMu.Unlock()
	if defaultSink == nil {
		defaultSink = NewStderrSink(false)
	}
	return defaultSink
}

// NewComponentLogger returns the default application logger scoped to a component.
func NewComponentLogger(component string) Logger {
	return getDefaultSink().Component(component)
}
