package log

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey string

const (
	contextKeyRequestID   contextKey = "request_id"
	contextKeyOperationID contextKey = "operation_id"
)

// Level is a log severity
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Config selects the log level and output format ("console" or "json")
type Config struct {
	Level  string
	Format string
}

var (
	mu     sync.RWMutex
	level         = LevelInfo
	output io.Writer = color.Output
	sugar  *zap.SugaredLogger
)

// ParseLevel parses debug, info, warn or error
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Configure sets the global level and format. The json format writes
// structured entries through zap.
func Configure(cfg Config) error {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	level = lvl
	switch strings.ToLower(cfg.Format) {
	case "", "text", "console":
		sugar = nil
	case "json":
		sugar = newJSONLogger(output, lvl)
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return nil
}

// SetOutput redirects log output
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	if sugar != nil {
		sugar = newJSONLogger(w, level)
	}
}

// Sync flushes buffered structured entries
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if sugar != nil {
		_ = sugar.Sync()
	}
}

func newJSONLogger(w io.Writer, lvl Level) *zap.SugaredLogger {
	zapLevel := map[Level]zapcore.Level{
		LevelDebug: zapcore.DebugLevel,
		LevelInfo:  zapcore.InfoLevel,
		LevelWarn:  zapcore.WarnLevel,
		LevelError: zapcore.ErrorLevel,
	}[lvl]
	core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(w), zapLevel)
	return zap.New(core).Sugar()
}

// WithRequestID adds request ID to context for logging
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}

// WithOperationID adds a database operation ID to context for logging
func WithOperationID(ctx context.Context, operationID string) context.Context {
	return context.WithValue(ctx, contextKeyOperationID, operationID)
}

// OperationID returns the operation ID stored in ctx
func OperationID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyOperationID).(string); ok {
		return id
	}
	return ""
}

func getRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return id
	}
	return ""
}

func write(lvl Level, ctx context.Context, format string, a ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	if lvl < level {
		return
	}

	msg := fmt.Sprintf(format, a...)
	var fields []interface{}
	var tags []string
	if ctx != nil {
		if id := getRequestID(ctx); id != "" {
			fields = append(fields, "req_id", id)
			tags = append(tags, "[req_id="+id+"]")
		}
		if id := OperationID(ctx); id != "" {
			fields = append(fields, "op_id", id)
			tags = append(tags, "[op_id="+id+"]")
		}
	}

	if sugar != nil {
		switch lvl {
		case LevelDebug:
			sugar.Debugw(msg, fields...)
		case LevelInfo:
			sugar.Infow(msg, fields...)
		case LevelWarn:
			sugar.Warnw(msg, fields...)
		default:
			sugar.Errorw(msg, fields...)
		}
		return
	}

	if len(tags) > 0 {
		msg = strings.Join(tags, " ") + " " + msg
	}
	fmt.Fprintf(output, "%s %s\n", label(lvl), msg)
}

func label(lvl Level) string {
	switch lvl {
	case LevelDebug:
		return color.New(color.FgCyan).Sprint("[DEBUG]")
	case LevelInfo:
		return color.New(color.FgWhite, color.BgGreen).Sprint("[INFO] ")
	case LevelWarn:
		return color.New(color.FgWhite, color.BgYellow).Sprint("[WARN] ")
	default:
		return color.New(color.FgRed).Sprint("[Error]")
	}
}

// Debug log debug information
func Debug(format string, a ...interface{}) {
	write(LevelDebug, nil, format, a...)
}

// DebugWithContext logs debug information with context
func DebugWithContext(ctx context.Context, format string, a ...interface{}) {
	write(LevelDebug, ctx, format, a...)
}

// Info log information
func Info(format string, a ...interface{}) {
	write(LevelInfo, nil, format, a...)
}

// InfoWithContext logs information with context (includes request and operation IDs if available)
func InfoWithContext(ctx context.Context, format string, a ...interface{}) {
	write(LevelInfo, ctx, format, a...)
}

// Warn log warning
func Warn(format string, a ...interface{}) {
	write(LevelWarn, nil, format, a...)
}

// WarnWithContext logs warning with context
func WarnWithContext(ctx context.Context, format string, a ...interface{}) {
	write(LevelWarn, ctx, format, a...)
}

// Error log error
func Error(format string, a ...interface{}) {
	write(LevelError, nil, format, a...)
}

// ErrorWithContext logs error with context
func ErrorWithContext(ctx context.Context, format string, a ...interface{}) {
	write(LevelError, ctx, format, a...)
}

// InfoStruct dumps values at debug level
func InfoStruct(a ...interface{}) {
	write(LevelDebug, nil, "%s", spew.Sdump(a...))
}
