package xlog

import (
	"context"
	"fmt"
	"io"
	llog "log"
	"log/slog"

	pkgerr "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"github.com/samber/lo"
)

type Logger = zerolog.Logger
type Level = zerolog.Level
type LevelWriter = zerolog.LevelWriter
type Context = zerolog.Context
type Event = zerolog.Event

const (
	LevelTrace    = zerolog.TraceLevel
	LevelDebug    = zerolog.DebugLevel
	LevelInfo     = zerolog.InfoLevel
	LevelWarn     = zerolog.WarnLevel
	LevelError    = zerolog.ErrorLevel
	LevelFatal    = zerolog.FatalLevel
	LevelNone     = zerolog.NoLevel
	LevelSuppress = zerolog.Disabled
)

var defaultOutput io.Writer = StderrWriter()

type DefaultWriter struct{}

func (DefaultWriter) Write(p []byte) (n int, err error) { return defaultOutput.Write(p) }

func Default() *Logger { return &log.Logger }

// Not safe for concurrent use.
func SetDefaultOutput(w ...io.Writer) {
	defaultOutput = zerolog.MultiLevelWriter(lo.Compact(w)...)
}

func WrapStackError(err error) error {
	return pkgerr.WithStack(err)
}

// Replaces all defaults.
func init() {
	log.Logger = *NewDomain(RootDomain, DefaultWriter{})

	slog.SetDefault(ToSlog(&log.Logger))
	llog.Default().SetFlags(0)
	llog.Default().SetOutput(ToTextWriter(&log.Logger, LevelInfo))

	zerolog.LevelFieldName = "l"
	zerolog.TimestampFieldName = "t"
	zerolog.MessageFieldName = "msg"
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	zerolog.CallerFieldName = DomainFieldName
	zerolog.DefaultContextLogger = &log.Logger
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
}

func SetLoggerLevel(level Level) {
	zerolog.SetGlobalLevel(level)
}

// With creates a child of the global logger.
func With() Context {
	return log.Logger.With()
}

// WithContext attaches l to ctx, retrieved later by Ctx and the *C helpers.
func WithContext(ctx context.Context, l *Logger) context.Context {
	return l.WithContext(ctx)
}

// Ctx returns the logger attached to ctx, or the global logger.
func Ctx(ctx context.Context) *Logger {
	return zerolog.Ctx(ctx)
}

// Err starts an error level event with err attached, or an info level one if err is nil.
func Err(err error) *Event { return log.Logger.Err(err) }
func ErrC(ctx context.Context, err error) *Event { return Ctx(ctx).Err(err) }

// ErrStack is like Err but attaches the stack trace, panic values are accepted as well.
func ErrStack(err any) *Event {
	return errStack(&log.Logger, err)
}
func ErrStackC(ctx context.Context, err any) *Event {
	return errStack(Ctx(ctx), err)
}
func errStack(l *Logger, err any) *Event {
	if err == nil {
		return l.Info()
	}
	e, ok := err.(error)
	if !ok {
		e = pkgerr.New(fmt.Sprint(err))
	} else if _, traced := e.(interface{ StackTrace() pkgerr.StackTrace }); !traced {
		e = WrapStackError(e)
	}
	return l.Error().Stack().Err(e)
}

func Trace() *Event { return log.Logger.Trace() }
func TraceC(ctx context.Context) *Event { return Ctx(ctx).Trace() }
func Debug() *Event { return log.Logger.Debug() }
func DebugC(ctx context.Context) *Event { return Ctx(ctx).Debug() }
func Info() *Event { return log.Logger.Info() }
func InfoC(ctx context.Context) *Event { return Ctx(ctx).Info() }
func Warn() *Event { return log.Logger.Warn() }
func WarnC(ctx context.Context) *Event { return Ctx(ctx).Warn() }
func Error() *Event { return log.Logger.Error() }
func ErrorC(ctx context.Context) *Event { return Ctx(ctx).Error() }
func Fatal() *Event { return log.Logger.Fatal() }
func FatalC(ctx context.Context) *Event { return Ctx(ctx).Fatal() }
