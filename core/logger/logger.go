// Package logger provides the bot's structured slog setup: component
// loggers, request-scoped context and an async, optionally rotating sink.
package logger

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/tonbot/core/buildinfo"
	coreconfig "github.com/m3rciful/tonbot/core/config"
)

const (
	defaultLogFile     = "tonbot.log"
	defaultDebugSample = 50
)

var (
	initOnce sync.Once

	shutdownMu sync.Mutex
	shutdown   bool
	logSink    *asyncSink
	logClosers []io.Closer

	levelVar      slog.LevelVar
	debugSampler  = newEventSampler(1, defaultDebugSample)
	traceOverride bool

	// L is the base logger. It falls back to slog.Default until InitLogger runs.
	L = slog.Default()

	// TG logs Telegram transport events.
	TG = L.With("component", "tg")
	// TWire logs Telegram wiring steps.
	TWire = L.With("component", "tg.wire")
	// TON logs TON Connect bridge and connector events.
	TON = L.With("component", "ton")
	// Flow logs conversation state machine transitions.
	Flow = L.With("component", "flow")
	// Store logs bridge session storage events.
	Store = L.With("component", "store")
	// DB logs database connection events.
	DB = L.With("component", "db")
	// MIG logs database migration events.
	MIG = L.With("component", "db.migrate")
)

// options is the logging configuration after defaults are applied.
type options struct {
	level     slog.Level
	format    logFormat
	keyOrder  []string
	profile   string
	file      string
	maxBytes  int64
	sampleNum int
	sampleDen int
}

func resolveOptions(cfg *coreconfig.Config) options {
	o := options{
		level:     slog.LevelInfo,
		format:    formatJSON,
		keyOrder:  defaultKeyOrder,
		profile:   "prod",
		sampleNum: 1,
		sampleDen: defaultDebugSample,
	}
	if cfg == nil {
		return o
	}
	lc := cfg.Logging

	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		o.profile = p
	}
	switch strings.ToLower(strings.TrimSpace(lc.Level)) {
	case "debug":
		o.level = slog.LevelDebug
	case "warn", "warning":
		o.level = slog.LevelWarn
	case "error":
		o.level = slog.LevelError
	}
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		o.format = formatKV
	case "json":
	default:
		if o.profile == "debug" || o.profile == "dev" {
			o.format = formatKV
		}
	}
	if order := splitKeys(lc.KeysOrder); len(order) > 0 {
		o.keyOrder = order
	}
	if dir := strings.TrimSpace(lc.Dir); dir != "" {
		name := strings.TrimSpace(lc.BotFile)
		if name == "" {
			name = defaultLogFile
		}
		o.file = filepath.Join(dir, name)
		o.maxBytes = int64(lc.MaxSizeMB) << 20
	}
	if num, den, ok := parseSampleRatio(lc.DebugSample); ok {
		o.sampleNum, o.sampleDen = num, den
	}
	return o
}

func splitKeys(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "default" {
		return nil
	}
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// InitLogger configures the global structured logger. Only the first call
// has an effect.
func InitLogger(cfg *coreconfig.Config) error {
	initOnce.Do(func() {
		o := resolveOptions(cfg)
		levelVar.Set(o.level)
		debugSampler.configure(o.sampleNum, o.sampleDen)
		traceOverride = isTruthy(os.Getenv("TRACE")) || isTruthy(os.Getenv("LOG_TRACE"))

		outputs := []io.Writer{os.Stdout}
		if o.file != "" {
			if f, err := openLogFile(o.file, o.maxBytes); err != nil {
				log.Printf("logger: %v; logging to stdout only", err)
			} else {
				outputs = append(outputs, f)
				logClosers = append(logClosers, f)
			}
		}
		logSink = newAsyncSink(512, outputs...)

		L = slog.New(newStructuredHandler(handlerConfig{
			level:    &levelVar,
			out:      logSink,
			format:   o.format,
			keyOrder: o.keyOrder,
		}))
		slog.SetDefault(L)
		wireComponents()
		logStartup(cfg, o)
	})
	return nil
}

func openLogFile(path string, maxBytes int64) (*rotatingFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return openRotatingFile(path, maxBytes)
}

func wireComponents() {
	TG = L.With("component", "tg")
	TWire = L.With("component", "tg.wire")
	TON = L.With("component", "ton")
	Flow = L.With("component", "flow")
	Store = L.With("component", "store")
	DB = L.With("component", "db")
	MIG = L.With("component", "db.migrate")
}

func logStartup(cfg *coreconfig.Config, o options) {
	attrs := []slog.Attr{
		slog.String("component", "app"),
		slog.String("event", "startup"),
		slog.String("go_version", runtime.Version()),
		slog.String("build_version", buildinfo.Version),
		slog.String("build_commit", buildinfo.Commit),
		slog.String("build_time", buildinfo.Date),
		slog.String("cfg_profile", o.profile),
		slog.String("log_file", o.file),
	}
	if cfg != nil {
		attrs = append(attrs,
			slog.String("storage", cfg.Storage.Driver),
			slog.String("mode", cfg.Telegram.RunMode),
		)
	}
	L.LogAttrs(context.Background(), slog.LevelInfo, "startup", attrs...)
}

// Shutdown drains buffered output and closes the log file. Later calls are
// no-ops.
func Shutdown() error {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	if shutdown {
		return nil
	}
	shutdown = true

	var errs []error
	if logSink != nil {
		errs = append(errs, logSink.Sync(), logSink.Close())
	}
	for _, c := range logClosers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Background returns a root context for logs outside of an update.
func Background() context.Context {
	return context.Background()
}

// LogEvent writes a record carrying the event attribute. A nil logg falls
// back to the logger stored in ctx.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if ctx == nil {
		ctx = context.Background()
	}
	if logg == nil {
		logg = FromContext(ctx)
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Component constructs a logger scoped to the provided component attribute.
func Component(name string) *slog.Logger {
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

// Event logs event for component at level.
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), level, event, attrs...)
}

func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// ShouldSampleDebug reports whether this occurrence of a high-volume debug
// event should be logged. TRACE=1 logs every occurrence.
func ShouldSampleDebug(event string) bool {
	if traceOverride {
		return true
	}
	return debugSampler.allow(event)
}
