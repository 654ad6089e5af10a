package logger

import "strings"

const (
	// LevelDebug represents the debug severity level name.
	LevelDebug = "DEBUG"
	// LevelInfo represents the info severity level name.
	LevelInfo = "INFO"
	// LevelWarn represents the warning severity level name.
	LevelWarn = "WARN"
	// LevelError represents the error severity level name.
	LevelError = "ERROR"
	// LevelFatal represents the fatal severity level name.
	LevelFatal = "FATAL"
)

var allowedLevels = map[string]string{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
	"fatal":   LevelFatal,
}

var allowedStatus = map[string]string{
	"ok":           "ok",
	"fail":         "fail",
	"skip":         "skip",
	"retry":        "retry",
	"rate_limited": "rate_limited",
	"cancelled":    "cancelled",
}

var allowedCache = map[string]string{
	"hit":      "hit",
	"miss":     "miss",
	"refresh":  "refresh",
	"fallback": "fallback",
}

// allowedOutcome covers handler summaries and wallet request results.
var allowedOutcome = map[string]string{
	"ok":           "ok",
	"fail":         "fail",
	"cancelled":    "cancelled",
	"rate_limited": "rate_limited",
	"rejected":     "rejected",
	"timeout":      "timeout",
	"expired":      "expired",
	"halted":       "halted",
	"ignored":      "ignored",
}

func normalizeLevel(level string) string {
	if level == "" {
		return LevelInfo
	}
	if mapped, ok := allowedLevels[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

// normalizeStatus lowercases status; unknown values are kept as written.
func normalizeStatus(status string) string {
	status = strings.ToLower(strings.TrimSpace(status))
	if mapped, ok := allowedStatus[status]; ok {
		return mapped
	}
	return status
}

func normalizeCache(cache string) (string, bool) {
	cache = strings.ToLower(strings.TrimSpace(cache))
	if cache == "" {
		return "", false
	}
	val, ok := allowedCache[cache]
	return val, ok
}

func normalizeOutcome(outcome string) (string, bool) {
	outcome = strings.ToLower(strings.TrimSpace(outcome))
	if outcome == "" {
		return "", false
	}
	val, ok := allowedOutcome[outcome]
	return val, ok
}

// secretKeys never reach the output in clear text.
var secretKeys = map[string]struct{}{
	"token":       {},
	"bot_token":   {},
	"secret":      {},
	"password":    {},
	"session_key": {},
	"private_key": {},
}

// truncatedKeys carry opaque blobs that only need a recognisable prefix.
var truncatedKeys = map[string]int{
	"boc":     48,
	"payload": 256,
}

// maskValue matches on the last segment of a grouped key.
func maskValue(key, val string) string {
	key = key[strings.LastIndexByte(key, '.')+1:]
	if _, ok := secretKeys[key]; ok {
		return "***"
	}
	if limit, ok := truncatedKeys[key]; ok {
		if r := []rune(val); len(r) > limit {
			return string(r[:limit]) + "..."
		}
	}
	return val
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"handler",
	"flow_id",
	"step",
	"next_step",
	"asset_kind",
	"cb_key",
	"outcome",
	"result",
	"duration_ms",
	"wallet",
	"bridge",
	"network",
	"address",
	"request_id",
	"messages",
	"count",
	"cache",
	"payload",
	"username",
	"mode",
	"listen",
	"public_url",
	"http_code",
	"db",
	"host",
	"port",
	"err",
	"err_code",
	"cause",
	"retryable",
	"attempts",
	"backoff_ms",
	"rate_limited",
	"sessions",
	"expired",
	"evicted",
}
