package logger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeLayout = "2006-01-02T15:04:05.000Z07:00"
)

// lineWriter accepts one fully encoded record.
type lineWriter interface {
	Write(line []byte) error
}

type handlerConfig struct {
	level    slog.Leveler
	out      lineWriter
	format   logFormat
	keyOrder []string
}

// structuredHandler renders records as flat JSON objects or key=value lines
// with a stable leading key order.
type structuredHandler struct {
	cfg    handlerConfig
	rank   map[string]int
	preset entry
	prefix string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.format == "" {
		cfg.format = formatJSON
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = defaultKeyOrder
	}
	rank := make(map[string]int, len(cfg.keyOrder))
	for i, k := range cfg.keyOrder {
		if _, dup := rank[k]; !dup {
			rank[k] = i
		}
	}
	return &structuredHandler{cfg: cfg, rank: rank, preset: entry{}}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.out == nil {
		return errors.New("logger: output not initialized")
	}
	isJSON := h.cfg.format == formatJSON

	e := make(entry, len(h.preset)+r.NumAttrs()+8)
	ts := r.Time.UTC()
	e["ts"] = ts.Truncate(time.Millisecond).Format(timeLayout)
	e["level"] = r.Level.String()
	if isJSON {
		e["ts_unix_nano"] = ts.UnixNano()
	}
	for k, v := range h.preset {
		e[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		e.add(h.prefix, a)
		return true
	})
	e.fromContext(ctx)
	e.finish(r.Message, isJSON)

	var line []byte
	if isJSON {
		line = encodeJSON(e, h.order(e))
	} else {
		line = encodeKV(e, h.order(e))
	}
	return h.cfg.out.Write(append(line, '\n'))
}

func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.preset = make(entry, len(h.preset)+len(attrs))
	for k, v := range h.preset {
		clone.preset[k] = v
	}
	for _, a := range attrs {
		clone.preset.add(h.prefix, a)
	}
	return &clone
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = joinKey(h.prefix, name)
	return &clone
}

// entry holds the flattened fields of one record. Later writes win.
type entry map[string]any

func (e entry) add(prefix string, a slog.Attr) {
	key := joinKey(prefix, a.Key)
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			e.add(key, child)
		}
		return
	}
	if key == "" {
		return
	}
	if val, ok := plainValue(v); ok {
		if isDuration(v) {
			key = durationKey(key)
		}
		e[key] = val
	}
}

func (e entry) text(key string) string {
	switch v := e[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func (e entry) setDefault(key string, v any, present bool) {
	if !present {
		return
	}
	if _, ok := e[key]; !ok {
		e[key] = v
	}
}

func (e entry) fromContext(ctx context.Context) {
	if ctx == nil {
		return
	}
	rid := RIDFrom(ctx)
	e.setDefault("rid", rid, rid != "")
	uid := UserIDFrom(ctx)
	e.setDefault("user_id", uid, uid != 0)
	upd := UpdateIDFrom(ctx)
	e.setDefault("update_id", upd, upd != 0)
	cid := ChatIDFrom(ctx)
	e.setDefault("chat_id", cid, cid != 0)
	hid := HandlerFrom(ctx)
	e.setDefault("handler", hid, hid != "")
	fid := FlowIDFrom(ctx)
	e.setDefault("flow_id", fid, fid != "")
}

// finish fills required keys, normalizes enumerations, masks secrets and
// drops empty values.
func (e entry) finish(msg string, isJSON bool) {
	if rid := e.text("rid"); rid != "" {
		if compact := CompactRID(rid); compact != rid {
			if isJSON {
				e.setDefault("rid_full", rid, true)
			}
			e["rid"] = compact
		}
	}
	if e.text("event") == "" {
		e["event"] = msg
		if msg == "" {
			e["event"] = "unknown"
		}
	}
	if e.text("component") == "" {
		e["component"] = "app"
	}
	e["level"] = normalizeLevel(e.text("level"))

	if s := e.text("status"); s != "" {
		e["status"] = normalizeStatus(s)
	}
	e.keepKnown("cache", normalizeCache)
	e.keepKnown("outcome", normalizeOutcome)

	for k, v := range e {
		if s, ok := v.(string); ok {
			if s == "" {
				delete(e, k)
				continue
			}
			e[k] = maskValue(k, s)
		}
	}
}

func (e entry) keepKnown(key string, norm func(string) (string, bool)) {
	raw := e.text(key)
	if raw == "" {
		return
	}
	if v, ok := norm(raw); ok {
		e[key] = v
		return
	}
	delete(e, key)
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	}
	return prefix + "." + key
}

func isDuration(v slog.Value) bool {
	if v.Kind() == slog.KindDuration {
		return true
	}
	_, ok := v.Any().(time.Duration)
	return v.Kind() == slog.KindAny && ok
}

func plainValue(v slog.Value) (any, bool) {
	switch v.Kind() {
	case slog.KindString:
		return strings.TrimSpace(v.String()), true
	case slog.KindBool:
		return v.Bool(), true
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			return int64(u), true
		}
		return v.Uint64(), true
	case slog.KindFloat64:
		return v.Float64(), true
	case slog.KindDuration:
		return RoundMS(v.Duration()).Milliseconds(), true
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := v.Any().(type) {
	case nil:
		return nil, false
	case error:
		return x.Error(), true
	case string:
		return strings.TrimSpace(x), true
	case time.Duration:
		return RoundMS(x).Milliseconds(), true
	case fmt.Stringer:
		return x.String(), true
	default:
		return fmt.Sprint(x), true
	}
}

// durationKey makes the unit explicit: "took" becomes "took_ms".
func durationKey(key string) string {
	switch {
	case key == "duration":
		return "duration_ms"
	case strings.HasSuffix(key, "_ms"):
		return key
	}
	return key + "_ms"
}
