// Package logging wires zerolog for the forecastrun driver and workers.
//
// Loggers travel through context.Context: the CLI builds one logger per
// invocation, stores it with logger.WithContext, and every component pulls
// it back out with FromContext and narrows it with ComponentLogger.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Supported log formats.
const (
	FormatAuto    = "auto"
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Supported log outputs.
const (
	OutputStderr = "stderr"
	OutputStdout = "stdout"
)

// Config controls logger construction.
type Config struct {
	// Level is a zerolog level name; unparsable values fall back to info.
	Level string
	// Format is one of auto, console or json. Auto picks console when the
	// output is a terminal.
	Format string
	// Output is stderr or stdout.
	Output string
	// Caller adds file:line to every event.
	Caller bool
}

// DefaultConfig returns info-level auto-format logging to stderr.
func DefaultConfig() Config {
	return Config{
		Level:  zerolog.InfoLevel.String(),
		Format: FormatAuto,
		Output: OutputStderr,
	}
}

// NewLogger builds a logger writing to the configured output.
func NewLogger(cfg Config) zerolog.Logger {
	out := os.Stderr
	if cfg.Output == OutputStdout {
		out = os.Stdout
	}

	format := strings.ToLower(cfg.Format)
	if format == "" || format == FormatAuto {
		format = FormatJSON
		if term.IsTerminal(int(out.Fd())) {
			format = FormatConsole
		}
	}

	cfg.Format = format
	return NewLoggerTo(cfg, out)
}

// NewLoggerTo builds a logger writing to w. Auto format resolves to json
// because w is not known to be a terminal.
func NewLoggerTo(cfg Config, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		lvl = zerolog.InfoLevel
	}

	if strings.ToLower(cfg.Format) == FormatConsole {
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}
	}

	zctx := zerolog.New(w).Level(lvl).With().Timestamp()
	if cfg.Caller {
		zctx = zctx.Caller()
	}
	return zctx.Logger()
}

// ComponentLogger returns a child logger tagged with the component name.
func ComponentLogger(l zerolog.Logger, component string) zerolog.Logger {
	return l.With().Str("component", component).Logger()
}

// FromContext returns the logger stored in ctx, or a disabled logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

type traceIDKey struct{}

// NewTraceID returns a fresh ULID-based trace identifier.
func NewTraceID() string {
	return ulid.Make().String()
}

// ContextWithTraceID stores traceID in ctx and tags the context logger with it.
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	ctx = context.WithValue(ctx, traceIDKey{}, traceID)
	l := zerolog.Ctx(ctx).With().Str("trace_id", traceID).Logger()
	return l.WithContext(ctx)
}

// TraceIDFromContext returns the trace identifier stored in ctx, if any.
func TraceIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey{}).(string)
	return id
}

// GetOrGenerateTraceID returns the trace ID in ctx or a new one.
func GetOrGenerateTraceID(ctx context.Context) string {
	if id := TraceIDFromContext(ctx); id != "" {
		return id
	}
	return NewTraceID()
}
