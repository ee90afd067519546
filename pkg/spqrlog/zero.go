package spqrlog

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Zero is the process-wide logger used by the router, the replica pool
// and the CLI.
var Zero = NewZeroLogger("", "info", true)

var (
	logMu   sync.Mutex
	logFile *os.File
)

// NewZeroLogger creates a zerolog logger writing to filepath (stdout when
// empty). With pretty set, output goes through a zerolog.ConsoleWriter;
// otherwise records are emitted as JSON.
func NewZeroLogger(filepath string, level string, pretty bool) *zerolog.Logger {
	_, writer := newWriter(filepath)
	return newLogger(writer, level, pretty)
}

func newLogger(writer io.Writer, level string, pretty bool) *zerolog.Logger {
	output := writer
	if pretty {
		output = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339}
	}
	logger := zerolog.New(output).With().Timestamp().Logger().Level(parseLevel(level))

	return &logger
}

// UpdateZeroLogLevel changes the level of the global logger.
func UpdateZeroLogLevel(logLevel string) error {
	level := parseLevel(logLevel)
	zeroLogger := Zero.With().Logger().Level(level)
	Zero = &zeroLogger
	return nil
}

// ReloadLogger replaces the global logger with one writing to filepath.
// The file opened by the previous reload is closed.
func ReloadLogger(filepath string, level string, pretty bool) {
	logMu.Lock()
	defer logMu.Unlock()

	f, writer := newWriter(filepath)
	Zero = newLogger(writer, level, pretty)

	if logFile != nil {
		_ = logFile.Close()
	}
	logFile = f
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func newWriter(filepath string) (*os.File, io.Writer) {
	if filepath == "" {
		return nil, os.Stdout
	}
	f, err := os.OpenFile(filepath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, os.Stdout
	}
	return f, f
}
