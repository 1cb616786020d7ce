package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	outMu sync.RWMutex
	out   io.Writer = defaultWriter()
)

// defaultWriter prints human readable lines when RESQ_ENV=dev.
func defaultWriter() io.Writer {
	if strings.EqualFold(os.Getenv("RESQ_ENV"), "dev") {
		return zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return os.Stdout
}

func writer() io.Writer {
	outMu.RLock()
	defer outMu.RUnlock()
	return out
}

// Options controls the process wide log sink.
type Options struct {
	Level      string
	Format     string // json or console
	File       string // rotated with lumberjack when set
	MaxSizeMB  int
	MaxBackups int
}

// Setup applies o to every logger created afterwards. The returned closer
// releases the log file, if any.
func Setup(o Options) (io.Closer, error) {
	if err := SetLevel(o.Level); err != nil {
		return nil, err
	}
	var (
		w      io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)
	if o.File != "" {
		lj := &lumberjack.Logger{Filename: o.File, MaxSize: o.MaxSizeMB, MaxBackups: o.MaxBackups}
		w, closer = lj, lj
	}
	if strings.EqualFold(o.Format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: o.File != ""}
	}
	outMu.Lock()
	out = w
	outMu.Unlock()
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// ZerologLogger implements Logger on top of rs/zerolog.
type ZerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger logs to the sink chosen by Setup, tagging every line
// with the component.
func NewZerologLogger(component string) Logger {
	return NewZerologLoggerWithWriter(component, writer())
}

// NewZerologLoggerWithWriter writes JSON lines to w.
func NewZerologLoggerWithWriter(component string, w io.Writer) Logger {
	z := zerolog.New(w).With().Timestamp().Str("component", component).Logger()
	return &ZerologLogger{log: z}
}

func (l *ZerologLogger) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l *ZerologLogger) Debugw(msg string, fields map[string]any) {
	l.log.Debug().Fields(fields).Msg(msg)
}

func (l *ZerologLogger) Infof(format string, args ...any) {
	l.log.Info().Msgf(format, args...)
}

func (l *ZerologLogger) Warnf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l *ZerologLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}
