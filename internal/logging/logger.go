package logging

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

type Fields map[string]interface{}

// Common field keys.
const (
	FieldSession  = "session"
	FieldPlayer   = "player"
	FieldOpponent = "opponent"
	FieldAddr     = "addr"
)

var (
	mu     sync.RWMutex
	logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

// SetOutput redirects all log lines to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = logger.Output(w)
}

func current() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Info logs an informational message with optional fields.
func Info(msg string, fields Fields) {
	l := current()
	l.Info().Fields(map[string]interface{}(fields)).Msg(msg)
}

// Error logs an error message and includes the error text in the fields.
func Error(msg string, err error, fields Fields) {
	l := current()
	l.Error().Err(err).Fields(map[string]interface{}(fields)).Msg(msg)
}

// Fatal logs a fatal error and exits the process.
func Fatal(msg string, err error, fields Fields) {
	l := current()
	l.Fatal().Err(err).Fields(map[string]interface{}(fields)).Msg(msg)
}
