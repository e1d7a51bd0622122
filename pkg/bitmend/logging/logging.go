// Package logging provides component loggers for bitmend. Every logger
// writes structured lines to a rotating log file and, when a console level
// is configured, to stderr as well.
//
// Loggers are cheap handles: they resolve their destination on every call,
// so a logger obtained before Init starts writing once Init has run.
//
//	if err := logging.Init(logging.Config{Level: "info", ConsoleLevel: "warn"}); err != nil {
//	    return err
//	}
//	defer logging.Close()
//
//	logging.Get(logging.Scanner).Info("scan started", "root", "/srv/photos")
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
)

// Component names.
const (
	Baseline = "baseline"
	Scanner  = "scanner"
	Recovery = "recovery"
	Corrupt  = "corrupt"
	CLI      = "cli"
)

// Level is a log severity.
type Level = log.Level

// Supported levels.
const (
	LevelDebug = log.DebugLevel
	LevelInfo  = log.InfoLevel
	LevelWarn  = log.WarnLevel
	LevelError = log.ErrorLevel
)

// ErrInvalidLevel is returned when an invalid log level string is provided.
var ErrInvalidLevel = errors.New("invalid log level")

// ParseLevel accepts debug, info, warn (or warning) and error, in any case.
func ParseLevel(s string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "warning" {
		name = "warn"
	}
	lvl, err := log.ParseLevel(name)
	if err != nil || lvl < LevelDebug || lvl > LevelError {
		return LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLevel, s)
	}
	return lvl, nil
}

// Config configures the logging system.
type Config struct {
	// Level is the default file log level (debug, info, warn, error).
	Level string

	// Path is the log file path. Empty uses DefaultLogPath().
	Path string

	// Rotation configures log file rotation.
	Rotation RotationConfig

	// Components maps component names to level overrides.
	Components map[string]string

	// ConsoleLevel enables stderr output at the given level.
	// Empty disables console output.
	ConsoleLevel string
}

// sink is one Init generation: where lines go and at which levels.
type sink struct {
	writer       *RotatingWriter
	level        Level
	components   map[string]Level
	console      io.Writer
	consoleLevel Level

	// loggers caches the charm loggers per component: [file, console].
	loggers sync.Map
}

var current atomic.Pointer[sink]

func init() {
	current.Store(&sink{})
}

func (s *sink) outputs(component string) [2]*log.Logger {
	if v, ok := s.loggers.Load(component); ok {
		return v.([2]*log.Logger)
	}

	level := s.level
	if l, ok := s.components[component]; ok {
		level = l
	}

	var out [2]*log.Logger
	out[0] = log.NewWithOptions(s.writer, log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Prefix:          component,
	})
	if s.console != nil {
		out[1] = log.NewWithOptions(s.console, log.Options{
			Level:           s.consoleLevel,
			ReportTimestamp: true,
			TimeFormat:      "15:04:05",
			Prefix:          component,
		})
	}

	v, _ := s.loggers.LoadOrStore(component, out)
	return v.([2]*log.Logger)
}

// Logger is a component logger. The zero value is not usable; call Get.
type Logger struct {
	component string
	fields    []interface{}
}

// Get returns a logger for component.
func Get(component string) *Logger {
	return &Logger{component: component}
}

// With returns a logger that adds args to every line.
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{
		component: l.component,
		fields:    append(slices.Clip(l.fields), args...),
	}
}

// Debug logs a debug message with key/value pairs.
func (l *Logger) Debug(msg string, args ...interface{}) { l.emit(LevelDebug, msg, args) }

// Info logs an info message with key/value pairs.
func (l *Logger) Info(msg string, args ...interface{}) { l.emit(LevelInfo, msg, args) }

// Warn logs a warning with key/value pairs.
func (l *Logger) Warn(msg string, args ...interface{}) { l.emit(LevelWarn, msg, args) }

// Error logs an error with key/value pairs.
func (l *Logger) Error(msg string, args ...interface{}) { l.emit(LevelError, msg, args) }

// Debugf logs a formatted debug message. The printf variants let badger
// log through bitmend.
func (l *Logger) Debugf(format string, args ...interface{}) { l.emitf(LevelDebug, format, args) }

// Infof logs a formatted info message.
func (l *Logger) Infof(format string, args ...interface{}) { l.emitf(LevelInfo, format, args) }

// Warningf logs a formatted warning.
func (l *Logger) Warningf(format string, args ...interface{}) { l.emitf(LevelWarn, format, args) }

// Errorf logs a formatted error.
func (l *Logger) Errorf(format string, args ...interface{}) { l.emitf(LevelError, format, args) }

func (l *Logger) emitf(level Level, format string, args []interface{}) {
	l.emit(level, strings.TrimRight(fmt.Sprintf(format, args...), "\n"), nil)
}

func (l *Logger) emit(level Level, msg string, args []interface{}) {
	s := current.Load()
	if s.writer == nil {
		return
	}

	if len(l.fields) > 0 {
		args = append(slices.Clip(l.fields), args...)
	}
	for _, out := range s.outputs(l.component) {
		if out != nil {
			out.Log(level, msg, args...)
		}
	}
}

// Init opens the log file and routes every logger to it. Calling Init
// again replaces the previous configuration and closes its file.
func Init(cfg Config) error {
	next := &sink{components: make(map[string]Level, len(cfg.Components))}

	var err error
	if next.level, err = ParseLevel(cfg.Level); err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	for comp, lvl := range cfg.Components {
		if next.components[comp], err = ParseLevel(lvl); err != nil {
			return fmt.Errorf("parsing level for component %s: %w", comp, err)
		}
	}
	if cfg.ConsoleLevel != "" {
		if next.consoleLevel, err = ParseLevel(cfg.ConsoleLevel); err != nil {
			return fmt.Errorf("parsing console level: %w", err)
		}
		next.console = os.Stderr
	}

	path := cfg.Path
	if path == "" {
		path = DefaultLogPath()
	}
	if next.writer, err = NewRotatingWriter(path, cfg.Rotation); err != nil {
		return fmt.Errorf("creating log writer: %w", err)
	}

	return closeSink(current.Swap(next))
}

// Close detaches all loggers and closes the log file. Later lines are
// discarded until the next Init.
func Close() error {
	return closeSink(current.Swap(&sink{}))
}

func closeSink(s *sink) error {
	if s == nil || s.writer == nil {
		return nil
	}
	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("closing log writer: %w", err)
	}
	return nil
}

// DefaultLogPath returns $XDG_STATE_HOME/bitmend/bitmend.log.
func DefaultLogPath() string {
	return filepath.Join(xdg.StateHome, "bitmend", "bitmend.log")
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Level:    "info",
		Path:     DefaultLogPath(),
		Rotation: DefaultRotationConfig(),
	}
}
