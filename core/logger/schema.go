package logger

import "strings"

var levelNames = map[string]string{
	"debug":   "DEBUG",
	"info":    "INFO",
	"warn":    "WARN",
	"warning": "WARN",
	"error":   "ERROR",
	"fatal":   "FATAL",
}

// enumerations restricts values of selected keys; unknown values are dropped
// unless the key is listed in keepUnknown.
var enumerations = map[string]map[string]struct{}{
	"status":  set("ok", "fail", "skip", "retry", "rate_limited", "cancelled", "expired", "timeout"),
	"outcome": set("ok", "fail", "cancelled", "rate_limited", "returned", "expired", "pass"),
}

var keepUnknown = map[string]bool{"status": true}

func set(values ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

func normalizeLevel(lvl string) string {
	if lvl == "" {
		return "INFO"
	}
	if mapped, ok := levelNames[strings.ToLower(lvl)]; ok {
		return mapped
	}
	return strings.ToUpper(lvl)
}

func sanitizeEnumerations(fields map[string]any) {
	if lvl, ok := stringField(fields, "level"); ok {
		fields["level"] = normalizeLevel(lvl)
	}
	for key, allowed := range enumerations {
		raw, ok := stringField(fields, key)
		if !ok || raw == "" {
			continue
		}
		v := strings.ToLower(strings.TrimSpace(raw))
		if _, valid := allowed[v]; valid || keepUnknown[key] {
			fields[key] = v
			continue
		}
		delete(fields, key)
	}
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
	"chat_type",
	"handler",
	"op",
	"cb_key",
	"outcome",
	"duration_ms",
	"anchor_id",
	"token",
	"grouped",
	"refresh",
	"depth",
	"rows",
	"removed",
	"pending",
	"timeout_ms",
	"feed",
	"recipient",
	"items",
	"cursor",
	"kb",
	"count",
	"mode",
	"listen",
	"public_url",
	"http_code",
	"db",
	"driver",
	"host",
	"port",
	"err",
	"err_code",
	"cause",
	"retryable",
	"attempts",
	"backoff_ms",
	"rate_limited",
	"collapsed",
	"repeats",
	"pending_count",
}
