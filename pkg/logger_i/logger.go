package logger_i

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/akolanti/ResearchAssistant/internal/config"
)

type Logger struct {
	inner *slog.Logger
}

// Init installs the process wide handler. Prod gets JSON at info or above, everything else text.
func Init(isProd bool, level string) {
	InitWithWriter(os.Stdout, isProd, level)
}

// InitWithWriter is Init for processes whose stdout is taken, like a stdio MCP server.
func InitWithWriter(w io.Writer, isProd bool, level string) {
	options := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if isProd {
		if options.Level.Level() < config.LOG_LEVEL_PROD {
			options.Level = config.LOG_LEVEL_PROD
		}
		handler = slog.NewJSONHandler(w, options)

	} else {
		handler = slog.NewTextHandler(w, options)

	}
	newLogger := slog.New(handler)
	slog.SetDefault(newLogger)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "error":
		return slog.LevelError
	case "warn", "warning":
		return slog.LevelWarn
	case "info":
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

func NewLogger(section string) *Logger {
	return &Logger{
		inner: slog.Default().With("component", section),
	}
}

func (l *Logger) Info(msg string, args ...any) {
	l.inner.Info(msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.log(slog.LevelError, msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, msg, args...)
}

func (l *Logger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, msg, args...)
}

func (l *Logger) log(level slog.Level, msg string, args ...any) {
	if !l.inner.Enabled(context.Background(), level) {
		return
	}
	l.inner.Log(context.Background(), level, msg, args...)
}

func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		inner: l.inner.With(args...),
	}
}

// WithContext tags the logger with the trace id carried by ctx, if any.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if traceId := TraceId(ctx); traceId != "" {
		return l.With("traceId", traceId)
	}
	return l
}

func TraceId(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	traceId, _ := ctx.Value(config.TRACE_ID_KEY).(string)
	return traceId
}

func ContextWithTraceId(ctx context.Context, traceId string) context.Context {
	return context.WithValue(ctx, config.TRACE_ID_KEY, traceId)
}
