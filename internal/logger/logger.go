package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"

	"admission-gateway/internal/config"
)

// Logger guarda o handler e o nível ajustável em tempo de execução.
type Logger struct {
	*slog.Logger
	level  *slog.LevelVar
	closer io.Closer
}

// New monta o logger a partir da configuração: tint no console (com cor só em
// terminal) ou JSON.
func New(cfg config.LoggerConfig) (*Logger, error) {
	level := new(slog.LevelVar)
	level.Set(ParseLevel(cfg.Level))

	writer, closer, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(writer, &tint.Options{
			Level:      level,
			TimeFormat: time.DateTime,
			NoColor:    !isTerminal(writer),
			ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
				if a.Key == "error" && a.Value.Kind() == slog.KindAny {
					if err, ok := a.Value.Any().(error); ok {
						return tint.Err(err)
					}
				}
				return a
			},
		})
	}

	return &Logger{Logger: slog.New(handler), level: level, closer: closer}, nil
}

// ParseLevel aceita debug, info, warn/warning e error. Qualquer outro valor vira info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

func (l *Logger) SetLevel(level slog.Level) { l.level.Set(level) }

// WithComponent marca as entradas com o componente que as gerou.
func (l *Logger) WithComponent(name string) *slog.Logger {
	return l.With("component", name)
}

func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func openOutput(path string) (io.Writer, io.Closer, error) {
	switch strings.ToLower(path) {
	case "", "stderr":
		return os.Stderr, nil, nil
	case "stdout":
		return os.Stdout, nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log output: %w", err)
	}
	return f, f, nil
}

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}
