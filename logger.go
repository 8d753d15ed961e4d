package backpack

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/karloscodes/backpack/config"
)

// LogConfig configures the logger.
type LogConfig struct {
	// Level is the minimum log level: debug, info, warn or error.
	// Development and test default to info, production to error.
	// LOG_LEVEL in the environment wins over both.
	Level string

	// Directory for log files. Only used in production. Defaults to "logs".
	Directory string

	// MaxSizeMB is the max size in megabytes before rotation. Defaults to 100.
	MaxSizeMB int

	// MaxBackups is the max number of old log files to keep. Defaults to 3.
	MaxBackups int

	// MaxAgeDays is the max age in days before a log file is deleted.
	// Defaults to 28.
	MaxAgeDays int

	// AppName is used in the log filename. Defaults to "backpack".
	AppName string

	// Production selects JSON output with file rotation.
	Production bool
}

// LogConfigFrom maps the process configuration to logger settings.
func LogConfigFrom(cfg *config.Config) LogConfig {
	return LogConfig{
		Level:      cfg.GetLogLevel(),
		Directory:  cfg.GetLogDirectory(),
		MaxSizeMB:  cfg.GetLogMaxSizeMB(),
		MaxBackups: cfg.GetLogMaxBackups(),
		MaxAgeDays: cfg.GetLogMaxAgeDays(),
		AppName:    cfg.GetAppName(),
		Production: cfg.IsProduction(),
	}
}

// NewLogger creates a slog.Logger for the environment.
//
// Development and test log colored text to stdout. Production logs JSON
// to stdout and to a file rotated by lumberjack.
func NewLogger(logCfg LogConfig) *slog.Logger {
	level := ParseLevel(logCfg.Level, logCfg.Production)
	if !logCfg.Production {
		return newDevLogger(level)
	}
	return newProdLogger(level, logCfg)
}

// ParseLevel resolves a level name. LOG_LEVEL overrides name; an empty or
// unknown name falls back to info, or error in production.
func ParseLevel(name string, production bool) slog.Level {
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		name = env
	}

	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	if production {
		return slog.LevelError
	}
	return slog.LevelInfo
}

// newDevLogger creates a colored text logger for development/test.
func newDevLogger(level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	if opts.AddSource {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(newColorHandler(os.Stdout, level))
}

// newProdLogger creates a JSON logger that writes to stdout and to a
// rotating file. It degrades to stdout only when the directory cannot be
// created.
func newProdLogger(level slog.Level, logCfg LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level, AddSource: level == slog.LevelDebug}

	dir := orDefault(logCfg.Directory, "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(dir, orDefault(logCfg.AppName, "backpack")+".log"),
		MaxSize:    positiveOr(logCfg.MaxSizeMB, 100),
		MaxBackups: positiveOr(logCfg.MaxBackups, 3),
		MaxAge:     positiveOr(logCfg.MaxAgeDays, 28),
		Compress:   true,
	}
	return slog.New(slog.NewJSONHandler(io.MultiWriter(os.Stdout, rotator), opts))
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func positiveOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// colorHandler writes one colored line per record. Attributes added with
// WithAttrs are rendered before the record's own.
type colorHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Leveler
	prefix string
	attrs  string
}

func newColorHandler(w io.Writer, level slog.Leveler) *colorHandler {
	return &colorHandler{mu: &sync.Mutex{}, w: w, level: level}
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
)

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return colorRed
	case level >= slog.LevelWarn:
		return colorYellow
	case level >= slog.LevelInfo:
		return colorBlue
	default:
		return colorGray
	}
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder
	buf.WriteString(colorGray + r.Time.Format("15:04:05") + colorReset + " ")
	buf.WriteString(levelColor(r.Level) + r.Level.String() + colorReset + " ")
	buf.WriteString(r.Message)
	buf.WriteString(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&buf, h.prefix, a)
		return true
	})
	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, buf.String())
	return err
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var buf strings.Builder
	for _, a := range attrs {
		writeAttr(&buf, h.prefix, a)
	}
	next := *h
	next.attrs = h.attrs + buf.String()
	return &next
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func writeAttr(buf *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			writeAttr(buf, prefix+a.Key+".", ga)
		}
		return
	}
	buf.WriteString(" " + colorGray + prefix + a.Key + "=" + colorReset + a.Value.String())
}
