package monitoring

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// EnvLogLevel selects the minimum level written by the leveled helpers.
const EnvLogLevel = "LOCALIZE_LOG_LEVEL"

var (
	mu     sync.RWMutex
	logger = newLogger(os.Stderr, levelFromEnv())
)

// Logf is the package-level diagnostic logger. It defaults to an info-level
// zerolog writer but may be replaced by SetLogger. Tests or production code
// can redirect or mute it.
var Logf func(format string, v ...interface{}) = Infof

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetOutput points the leveled logger at w. Level is kept.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = newLogger(w, logger.GetLevel())
}

// SetLevel changes the minimum level of the leveled logger.
func SetLevel(level zerolog.Level) {
	mu.Lock()
	defer mu.Unlock()
	logger = logger.Level(level)
}

// Debugf logs at debug level.
func Debugf(format string, v ...interface{}) { emit(zerolog.DebugLevel, format, v...) }

// Infof logs at info level.
func Infof(format string, v ...interface{}) { emit(zerolog.InfoLevel, format, v...) }

// Warnf logs at warning level.
func Warnf(format string, v ...interface{}) { emit(zerolog.WarnLevel, format, v...) }

// Errorf logs at error level.
func Errorf(format string, v ...interface{}) { emit(zerolog.ErrorLevel, format, v...) }

func emit(level zerolog.Level, format string, v ...interface{}) {
	mu.RLock()
	l := logger
	mu.RUnlock()
	l.WithLevel(level).Msg(fmt.Sprintf(format, v...))
}

func newLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: "2006/01/02 15:04:05", NoColor: true}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// ParseLevel maps the accepted level names onto zerolog levels.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "off", "none", "disabled":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func levelFromEnv() zerolog.Level {
	level, _ := ParseLevel(os.Getenv(EnvLogLevel))
	return level
}
