// Package telemetry wraps github.com/rs/zerolog the way the teacher's
// pkg/reporting.Logger does: a config struct selecting level and
// format, a thin Logger type, and package-level global-logger helpers
// for command-line entry points.
package telemetry

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Level is the logging verbosity.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format selects the log line encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config configures a Logger.
type Config struct {
	Level  Level
	Format Format
	Output io.Writer
}

func resolveOutput(cfg Config) io.Writer {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.Format == FormatText {
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: false}
	}
	return out
}

func levelOf(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Logger provides leveled logging for the discovery worker and its
// collaborators. Debug/Info/Warn/Error/Fatal take a preformatted
// message; structured fields are attached only through With/WithFields.
type Logger struct {
	z zerolog.Logger
}

// New creates a Logger from cfg.
func New(cfg Config) *Logger {
	z := zerolog.New(resolveOutput(cfg)).With().Timestamp().Logger().Level(levelOf(cfg.Level))
	return &Logger{z: z}
}

// With returns a child Logger with an additional structured field.
func (l *Logger) With(key string, value any) *Logger {
	return &Logger{z: l.z.With().Interface(key, value).Logger()}
}

// WithFields returns a child Logger with several additional fields.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	ctx := l.z.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{z: ctx.Logger()}
}

func (l *Logger) Debug(msg string) { l.z.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.z.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.z.Warn().Msg(msg) }
func (l *Logger) Error(msg string, err error) {
	if err != nil {
		l.z.Error().Err(err).Msg(msg)
		return
	}
	l.z.Error().Msg(msg)
}

// Fatal logs msg at fatal level and terminates the process. Used only
// for the cache-corrupting / tamper-indicating conditions of spec.md
// §7 (watcher queue overflow, deletion of a watched instance
// directory) -- never for ordinary error returns.
func (l *Logger) Fatal(msg string, err error) {
	if err != nil {
		l.z.Fatal().Err(err).Msg(msg)
		return
	}
	l.z.Fatal().Msg(msg)
}

// InitGlobal configures the package-level zerolog logger, for use by
// cmd/commgmtctl at startup the same way the teacher's
// reporting.InitGlobalLogger configures logrus/zerolog for the CLI.
func InitGlobal(cfg Config) {
	log.Logger = zerolog.New(resolveOutput(cfg)).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(levelOf(cfg.Level))
}
