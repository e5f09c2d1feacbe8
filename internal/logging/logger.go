package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	Critical = 50
	Fatal    = Critical
	Error    = 40
	Warning  = 30
	Info     = 20
	Debug    = 10
	NotSet   = 0
)

var (
	LogLevel      int = Warning
	logLevelMutex sync.Mutex

	base = zerolog.New(os.Stderr).With().Timestamp().Str("service", "cyris").Logger()
)

func init() {
	localEnv := os.Getenv("LOCAL")
	if strings.ToLower(localEnv) == "true" || localEnv == "1" {
		SetLogLevel(Debug)
	}
}

// Config controls where and how log lines are written.
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // console output for development
	Output io.Writer
}

// Configure replaces the process logger. Safe to call once at startup.
func Configure(cfg Config) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	logLevelMutex.Lock()
	base = zerolog.New(out).With().Timestamp().Str("service", "cyris").Logger()
	logLevelMutex.Unlock()

	SetLogLevel(ParseLevel(cfg.Level))
}

// ParseLevel maps a level name onto the numeric levels above.
func ParseLevel(level string) int {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return Debug
	case "info":
		return Info
	case "warn", "warning":
		return Warning
	case "error":
		return Error
	case "critical", "fatal":
		return Critical
	}
	return Warning
}

func SetLogLevel(level int) {
	logLevelMutex.Lock()
	defer logLevelMutex.Unlock()
	LogLevel = level
}

// Level returns the current process level.
func Level() int {
	logLevelMutex.Lock()
	defer logLevelMutex.Unlock()
	return LogLevel
}

// Base returns the underlying zerolog logger for component loggers.
func Base() zerolog.Logger {
	logLevelMutex.Lock()
	defer logLevelMutex.Unlock()
	return base
}

// Enabled reports whether messages at level would be written.
func Enabled(level int) bool {
	logLevelMutex.Lock()
	defer logLevelMutex.Unlock()
	return LogLevel <= level
}

func logf(level int, ev func(*zerolog.Logger) *zerolog.Event, format string, v ...interface{}) {
	logLevelMutex.Lock()
	defer logLevelMutex.Unlock()
	if LogLevel <= level {
		ev(&base).Msgf(format, v...)
	}
}

func Debugf(format string, v ...interface{}) {
	logf(Debug, (*zerolog.Logger).Debug, format, v...)
}

func Infof(format string, v ...interface{}) {
	logf(Info, (*zerolog.Logger).Info, format, v...)
}

func Warningf(format string, v ...interface{}) {
	logf(Warning, (*zerolog.Logger).Warn, format, v...)
}

func Errorf(format string, v ...interface{}) {
	logf(Error, (*zerolog.Logger).Error, format, v...)
}

func Criticalf(format string, v ...interface{}) {
	logf(Critical, func(l *zerolog.Logger) *zerolog.Event {
		return l.WithLevel(zerolog.FatalLevel)
	}, format, v...)
}

func Fatalf(format string, v ...interface{}) {
	logLevelMutex.Lock()
	l := base
	logLevelMutex.Unlock()
	l.Fatal().Msgf(format, v...)
}
