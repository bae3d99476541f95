package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"mediaharvest/pkg/config"
)

// Logger is the logging surface used throughout the harvester. All
// With* methods return a derived logger; the receiver is never mutated.
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	Fatal(msg string)

	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger
	WithContext(ctx context.Context) Logger

	DebugWithFields(msg string, fields map[string]interface{})
	InfoWithFields(msg string, fields map[string]interface{})
	WarnWithFields(msg string, fields map[string]interface{})
	ErrorWithFields(msg string, fields map[string]interface{})
	FatalWithFields(msg string, fields map[string]interface{})

	// GetZerolog exposes the underlying zerolog instance for callers
	// that need its native API.
	GetZerolog() *zerolog.Logger
}

// harvestLogger binds fields into a derived zerolog.Logger, so the
// field context is resolved once at With* time rather than replayed on
// every event.
type harvestLogger struct {
	zl zerolog.Logger
}

// New builds a logger from configuration. With no file configured the
// output is a colored console writer; with a file it writes structured
// JSON there and a plain console line alongside.
func New(cfg *config.LoggingConfig) (Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer
	if cfg.File == "" {
		out = consoleWriter(os.Stdout)
	} else {
		f, err := openLogFile(cfg.File)
		if err != nil {
			return nil, err
		}
		out = zerolog.MultiLevelWriter(consoleWriter(os.Stdout), f)
	}

	zl := zerolog.New(out).With().
		Timestamp().
		Str("app", "mediaharvest").
		Logger()
	return &harvestLogger{zl: zl}, nil
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
		FormatLevel: func(i interface{}) string {
			if i == nil {
				return ""
			}
			lvl := strings.ToUpper(fmt.Sprint(i))
			if color, ok := levelColors[lvl]; ok {
				return fmt.Sprintf("\033[%dm%.4s\033[0m", color, lvl)
			}
			return lvl
		},
		FormatFieldName: func(i interface{}) string {
			return fmt.Sprintf("\033[36m%s\033[0m=", i)
		},
	}
}

var levelColors = map[string]int{
	"DEBUG": 37,
	"INFO":  32,
	"WARN":  33,
	"ERROR": 31,
	"FATAL": 35,
}

func openLogFile(path string) (io.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

func parseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(level) {
	case "", "info":
		return zerolog.InfoLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "fatal":
		return zerolog.FatalLevel, nil
	case "disabled":
		return zerolog.Disabled, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

func (l *harvestLogger) Debug(msg string) { l.zl.Debug().Msg(msg) }
func (l *harvestLogger) Info(msg string)  { l.zl.Info().Msg(msg) }
func (l *harvestLogger) Warn(msg string)  { l.zl.Warn().Msg(msg) }
func (l *harvestLogger) Error(msg string) { l.zl.Error().Msg(msg) }
func (l *harvestLogger) Fatal(msg string) { l.zl.Fatal().Msg(msg) }

func (l *harvestLogger) WithField(key string, value interface{}) Logger {
	return &harvestLogger{zl: bindField(l.zl.With(), key, value).Logger()}
}

func (l *harvestLogger) WithFields(fields map[string]interface{}) Logger {
	c := l.zl.With()
	for k, v := range fields {
		c = bindField(c, k, v)
	}
	return &harvestLogger{zl: c.Logger()}
}

func (l *harvestLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return &harvestLogger{zl: l.zl.With().Str("error", err.Error()).Logger()}
}

func (l *harvestLogger) WithContext(ctx context.Context) Logger {
	return &harvestLogger{zl: l.zl.With().Ctx(ctx).Logger()}
}

func (l *harvestLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	l.WithFields(fields).Debug(msg)
}

func (l *harvestLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	l.WithFields(fields).Info(msg)
}

func (l *harvestLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	l.WithFields(fields).Warn(msg)
}

func (l *harvestLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.WithFields(fields).Error(msg)
}

func (l *harvestLogger) FatalWithFields(msg string, fields map[string]interface{}) {
	l.WithFields(fields).Fatal(msg)
}

func (l *harvestLogger) GetZerolog() *zerolog.Logger {
	return &l.zl
}

// bindField attaches a value to a zerolog context with its native type
// where one exists.
func bindField(c zerolog.Context, key string, value interface{}) zerolog.Context {
	switch v := value.(type) {
	case string:
		return c.Str(key, v)
	case int:
		return c.Int(key, v)
	case int64:
		return c.Int64(key, v)
	case float64:
		return c.Float64(key, v)
	case bool:
		return c.Bool(key, v)
	case time.Time:
		return c.Time(key, v)
	case time.Duration:
		return c.Dur(key, v)
	case error:
		return c.Str(key, v.Error())
	case []string:
		return c.Strs(key, v)
	default:
		return c.Interface(key, v)
	}
}

var globalLogger Logger

// Initialize builds the global logger from configuration and installs
// it as the zerolog default as well.
func Initialize(cfg *config.LoggingConfig) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	globalLogger = l
	log.Logger = *l.GetZerolog()
	return nil
}

// GetLogger returns the global logger, creating an info-level console
// logger on first use if Initialize was never called.
func GetLogger() Logger {
	if globalLogger == nil {
		globalLogger, _ = New(&config.LoggingConfig{Level: "info"})
	}
	return globalLogger
}
