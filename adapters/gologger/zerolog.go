package gologger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

type FileConfig struct {
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type ZerologConfig struct {
	Level  string
	Format string
	Output io.Writer
	File   *FileConfig
}

// ZerologLogger implements glog.Logger on top of zerolog. Variadic args are
// read as alternating key/value pairs.
type ZerologLogger struct {
	logger zerolog.Logger
	closer *closeOnce
}

type closeOnce struct {
	once sync.Once
	file *lumberjack.Logger
	err  error
}

func (c *closeOnce) Close() error {
	if c == nil || c.file == nil {
		return nil
	}
	c.once.Do(func() { c.err = c.file.Close() })
	return c.err
}

func NewZerologLogger(cfg ZerologConfig) (*ZerologLogger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if strings.EqualFold(strings.TrimSpace(cfg.Format), FormatConsole) {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	}

	closer := &closeOnce{}
	writers := []io.Writer{output}
	if cfg.File != nil && strings.TrimSpace(cfg.File.Filename) != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File.Filename), 0o755); err != nil {
			return nil, fmt.Errorf("gologger: create log directory: %w", err)
		}
		closer.file = &lumberjack.Logger{
			Filename:   cfg.File.Filename,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
			LocalTime:  true,
		}
		writers = append(writers, closer.file)
	}

	var writer io.Writer = writers[0]
	if len(writers) > 1 {
		writer = zerolog.MultiLevelWriter(writers...)
	}
	logger := zerolog.New(writer).Level(level).With().Timestamp().Logger()
	return &ZerologLogger{logger: logger, closer: closer}, nil
}

// ParseLevel accepts zerolog level names; empty means info.
func ParseLevel(raw string) (zerolog.Level, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(raw)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("gologger: invalid level %q: %w", raw, err)
	}
	return level, nil
}

func (l *ZerologLogger) Trace(msg string, args ...any) { l.emit(zerolog.TraceLevel, msg, args) }
func (l *ZerologLogger) Debug(msg string, args ...any) { l.emit(zerolog.DebugLevel, msg, args) }
func (l *ZerologLogger) Info(msg string, args ...any)  { l.emit(zerolog.InfoLevel, msg, args) }
func (l *ZerologLogger) Warn(msg string, args ...any)  { l.emit(zerolog.WarnLevel, msg, args) }
func (l *ZerologLogger) Error(msg string, args ...any) { l.emit(zerolog.ErrorLevel, msg, args) }

// Fatal records at fatal level without exiting; the caller owns shutdown.
func (l *ZerologLogger) Fatal(msg string, args ...any) { l.emit(zerolog.FatalLevel, msg, args) }

func (l *ZerologLogger) WithContext(ctx context.Context) glog.Logger {
	if l == nil {
		return glog.Nop()
	}
	return &ZerologLogger{logger: l.logger.With().Ctx(ctx).Logger(), closer: l.closer}
}

func (l *ZerologLogger) WithFields(fields map[string]any) glog.Logger {
	if l == nil {
		return glog.Nop()
	}
	return &ZerologLogger{logger: l.logger.With().Fields(fields).Logger(), closer: l.closer}
}

// GetLogger lets the logger act as its own provider, tagging records with
// the component name.
func (l *ZerologLogger) GetLogger(name string) glog.Logger {
	if l == nil {
		return glog.Nop()
	}
	return &ZerologLogger{logger: l.logger.With().Str("logger", name).Logger(), closer: l.closer}
}

// Close releases the rotating log file when one is configured.
func (l *ZerologLogger) Close() error {
	if l == nil {
		return nil
	}
	return l.closer.Close()
}

func (l *ZerologLogger) emit(level zerolog.Level, msg string, args []any) {
	if l == nil {
		return
	}
	event := l.logger.WithLevel(level)
	if event == nil {
		return
	}
	for index := 0; index < len(args); index += 2 {
		if index+1 >= len(args) {
			event = event.Interface("extra", args[index])
			break
		}
		key, ok := args[index].(string)
		if !ok {
			key = fmt.Sprint(args[index])
		}
		if err, isErr := args[index+1].(error); isErr {
			event = event.AnErr(key, err)
			continue
		}
		event = event.Interface(key, args[index+1])
	}
	event.Msg(msg)
}

var (
	_ glog.Logger         = (*ZerologLogger)(nil)
	_ glog.FieldsLogger   = (*ZerologLogger)(nil)
	_ glog.LoggerProvider = (*ZerologLogger)(nil)
)
