package log

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	// L is the shared logger (use log.L.Info().Msg("hi")).
	// It writes to stderr: stdout carries native messaging frames in biovaultd.
	// Component loggers derived with With share its output and level.
	L zerolog.Logger

	out = &swapWriter{w: os.Stderr}
)

// swapWriter lets SetOutput redirect loggers that were already derived.
type swapWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *swapWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	L = zerolog.New(out).With().Timestamp().Logger()
}

// SetOutput redirects the shared logger and every component logger.
func SetOutput(w io.Writer) {
	out.mu.Lock()
	out.w = w
	out.mu.Unlock()
}

// SetLevel sets the minimum level for the shared logger and every
// component logger, including those created earlier.
func SetLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

// ParseLevel parses a level name, treating the empty string as info.
func ParseLevel(s string) (zerolog.Level, error) {
	if s == "" {
		return zerolog.InfoLevel, nil
	}
	return zerolog.ParseLevel(s)
}

func Debug() *zerolog.Event { return L.Debug() }
func Info() *zerolog.Event  { return L.Info() }
func Warn() *zerolog.Event  { return L.Warn() }
func Error() *zerolog.Event { return L.Error() }

// With returns a child logger carrying the given component name.
func With(component string) zerolog.Logger {
	return L.With().Str("component", component).Logger()
}
