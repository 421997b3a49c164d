// Package logger configures the global zerolog logger and the request and
// analysis scoped loggers derived from it.
package logger

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type contextKey string

const requestIDKey contextKey = "request_id"

const milliTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// maxBodyLog caps how much of a request or response body is logged.
const maxBodyLog = 1000

// Options selects where and how the global logger writes.
type Options struct {
	Level string
	// JSON writes one JSON object per line instead of the console format.
	JSON  bool
	Color bool
	Out   io.Writer
	// File, if set, receives a copy of every line.
	File string
}

// OptionsFromEnv reads LOG_LEVEL, LOG_FORMAT and LOG_FILE. Color is enabled
// in development mode.
func OptionsFromEnv() Options {
	return Options{
		Level: os.Getenv("LOG_LEVEL"),
		JSON:  os.Getenv("LOG_FORMAT") == "json",
		Color: isDevelopmentMode(),
		Out:   os.Stdout,
		File:  os.Getenv("LOG_FILE"),
	}
}

// Setup configures the global logger. It returns a func that closes the log
// file, if one was opened.
func Setup(o Options) func() {
	zerolog.TimeFieldFormat = milliTimeFormat
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }

	const callerWidth = 30
	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		path := fmt.Sprintf("%s:%d", filepath.Base(file), line)
		if len(path) >= callerWidth {
			return path[len(path)-callerWidth:]
		}
		return path + strings.Repeat(" ", callerWidth-len(path))
	}

	level, err := zerolog.ParseLevel(o.Level)
	if err != nil || o.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := o.Out
	if out == nil {
		out = os.Stdout
	}
	if !o.JSON {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: milliTimeFormat, NoColor: !o.Color}
	}

	closeFile := func() {}
	if o.File != "" {
		f, ferr := os.OpenFile(o.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if ferr == nil {
			out = io.MultiWriter(out, f)
			closeFile = func() { f.Close() }
		}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Caller().Logger()
	log.Debug().
		Str("level", level.String()).
		Bool("json", o.JSON).
		Msg("Logger initialized")
	return closeFile
}

func isDevelopmentMode() bool {
	return os.Getenv("DEV") == "true" ||
		os.Getenv("DEV_MODE") == "true" ||
		os.Getenv("DEVELOPMENT") == "true"
}

// Get returns the global logger instance.
func Get() zerolog.Logger {
	return log.Logger
}

// NewRequestID generates a random 8-character alphanumeric request ID.
func NewRequestID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req%06d", time.Now().UnixNano()%1000000)
	}
	for i := range b {
		b[i] = charset[b[i]%byte(len(charset))]
	}
	return string(b)
}

// WithRequestID returns a new context with the given request ID stored.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the request ID from context, or empty string.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ForRequest returns a logger enriched with the request ID from context.
func ForRequest(ctx context.Context) zerolog.Logger {
	id := RequestIDFromContext(ctx)
	if id == "" {
		return log.Logger
	}
	return log.Logger.With().Str("requestId", id).Logger()
}

// ForAnalysis returns a logger tagged with the analysis ID and, if present,
// the ID of the request that started it.
func ForAnalysis(ctx context.Context, id string) zerolog.Logger {
	return ForRequest(ctx).With().Str("analysisId", id).Logger()
}

// LogBody logs a request or response body at debug level under field,
// truncated to maxBodyLog bytes.
func LogBody(l zerolog.Logger, field string, body []byte) {
	if len(body) == 0 {
		return
	}
	ev := l.Debug()
	if len(body) > maxBodyLog {
		body = body[:maxBodyLog]
		ev = ev.Bool("truncated", true)
	}
	ev.Str(field, string(body)).Msg("Body")
}
