// Package logger provides structured logging using zerolog.
package logger

import (
	"context"
	"crypto/rand"
	"encoding/json"
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

// maxLoggedBody caps request and response bodies written at debug level.
const maxLoggedBody = 1000

// Options selects where and how the global logger writes.
type Options struct {
	Level  string    // zerolog level name; empty means info
	File   string    // optional file that receives a copy of every line
	JSON   bool      // raw JSON lines instead of the console writer
	Color  bool      // console colors
	Caller bool      // annotate lines with file:line
	Out    io.Writer // defaults to stdout
}

// OptionsFromEnv reads LOG_LEVEL, LOG_FILE and LOG_FORMAT. Colors and caller
// annotations follow development mode.
func OptionsFromEnv() Options {
	dev := isDevelopmentMode()
	return Options{
		Level:  os.Getenv("LOG_LEVEL"),
		File:   os.Getenv("LOG_FILE"),
		JSON:   os.Getenv("LOG_FORMAT") == "json",
		Color:  dev,
		Caller: true,
	}
}

// Init initializes the global logger from the environment.
func Init() {
	opts := OptionsFromEnv()
	Setup(opts)
	log.Info().
		Str("level", zerolog.GlobalLevel().String()).
		Bool("dev", opts.Color).
		Bool("json", opts.JSON).
		Msg("Logger initialized")
}

// Setup installs a global logger built from opts. A LOG_FILE that cannot be
// opened is reported and skipped.
func Setup(opts Options) {
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

	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	if !opts.JSON {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: milliTimeFormat,
			NoColor:    !opts.Color,
		}
	}

	var fileErr error
	if opts.File != "" {
		f, ferr := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if ferr == nil {
			out = io.MultiWriter(out, f)
		}
		fileErr = ferr
	}

	ctx := zerolog.New(out).With().Timestamp()
	if opts.Caller {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()

	if fileErr != nil {
		log.Warn().Err(fileErr).Str("file", opts.File).Msg("Log file unavailable")
	}
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

// NewRequestID generates a cryptographically secure random 8-character alphanumeric string.
func NewRequestID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	_, err := rand.Read(b)
	if err != nil {
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

// ForGame returns a logger tagged with a game ID, enriched with the request ID
// when ctx carries one.
func ForGame(ctx context.Context, gameID string) zerolog.Logger {
	l := ForRequest(ctx)
	return l.With().Str("gameId", gameID).Logger()
}

// secretFields never reach the log in clear text.
var secretFields = []string{"access_token", "refresh_token", "token", "code"}

// Redact replaces secret fields of a JSON object body. Anything that is not
// a JSON object is returned unchanged.
func Redact(body []byte) []byte {
	var obj map[string]json.RawMessage
	if json.Unmarshal(body, &obj) != nil {
		return body
	}
	changed := false
	for _, k := range secretFields {
		if _, ok := obj[k]; ok {
			obj[k] = json.RawMessage(`"[redacted]"`)
			changed = true
		}
	}
	if !changed {
		return body
	}
	out, err := json.Marshal(obj)
	if err != nil {
		return body
	}
	return out
}

// LogBody logs a request or response body at debug level under field,
// redacted and truncated.
func LogBody(l zerolog.Logger, field string, body []byte) {
	if len(body) == 0 || l.GetLevel() > zerolog.DebugLevel || zerolog.GlobalLevel() > zerolog.DebugLevel {
		return
	}
	body = Redact(body)
	if len(body) > maxLoggedBody {
		l.Debug().Str(field, string(body[:maxLoggedBody])).Bool("truncated", true).Msg("Body")
		return
	}
	l.Debug().Str(field, string(body)).Msg("Body")
}
