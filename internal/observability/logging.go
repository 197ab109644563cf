package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

const redacted = "[REDACTED]"

// LogConfig holds configuration for the structured logger.
type LogConfig struct {
	Level          string // "debug", "info", "warn", "error"
	Format         string // "json" or "text"
	ServiceName    string
	ServiceVersion string
	Environment    string
	Output         io.Writer // defaults to os.Stdout
}

// sensitiveKeys are matched case-insensitively as substrings of attribute
// keys. They cover JWT signing material (file paths are fine, key bodies are
// not), AWS credentials and request credentials.
var sensitiveKeys = []string{
	"_key",
	"_secret",
	"_token",
	"_password",
	"_credential",
	"secret",
	"password",
	"private",
	"pem",
	"authorization",
	"cookie",
	"bearer",
	"apikey",
	"jwt",
}

// safeKeys end in a sensitive suffix but never carry secret values.
var safeKeys = map[string]bool{
	"cache_key": true,
	"key_path":  true,
	"key_id":    true,
}

// sensitiveValues catch credentials logged under innocuous keys, such as an
// error string that echoes a header or a secret body.
var sensitiveValues = []string{
	"-----BEGIN",
	"Bearer ",
}

// InitLogger creates the service logger with redaction and installs it as
// slog's default.
func InitLogger(cfg LogConfig) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: redact,
	}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	logger := slog.New(handler).With(
		slog.String("service", cfg.ServiceName),
		slog.String("version", cfg.ServiceVersion),
		slog.String("environment", cfg.Environment),
	)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewRedactingHandler returns a JSON handler applying the same redaction as
// InitLogger after any ReplaceAttr already in opts.
func NewRedactingHandler(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	var o slog.HandlerOptions
	if opts != nil {
		o = *opts
	}
	inner := o.ReplaceAttr
	o.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
		if inner != nil {
			a = inner(groups, a)
		}
		return redact(groups, a)
	}
	return slog.NewJSONHandler(w, &o)
}

func redact(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	if !safeKeys[key] {
		for _, pattern := range sensitiveKeys {
			if strings.Contains(key, pattern) {
				return slog.String(a.Key, redacted)
			}
		}
	}
	if a.Value.Kind() == slog.KindString {
		v := a.Value.String()
		for _, marker := range sensitiveValues {
			if strings.Contains(v, marker) {
				return slog.String(a.Key, redacted)
			}
		}
	}
	return a
}

// WithTraceID returns logger annotated with the trace ID from ctx, if any.
func WithTraceID(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if traceID := TraceIDFromContext(ctx); traceID != "" {
		return logger.With(slog.String("trace_id", traceID))
	}
	return logger
}
