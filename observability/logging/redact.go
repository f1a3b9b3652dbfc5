package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive values in log output.
const RedactedValue = "[REDACTED]"

// sensitiveMarkers flag keys whose values are credentials: the RPC JWT
// secret, keystore passphrases, bearer headers and raw private keys.
var sensitiveMarkers = []string{
	"secret",
	"passphrase",
	"password",
	"privatekey",
	"private_key",
	"authorization",
	"bearer",
	"jwt",
}

// allowlist holds keys that are never redacted even when they match a
// marker: the log envelope plus the identifiers ndxd logs for blocks,
// transactions and contract events.
var allowlist = map[string]struct{}{
	"service":   {},
	"env":       {},
	"message":   {},
	"severity":  {},
	"timestamp": {},
	"error":     {},
	"height":    {},
	"hash":      {},
	"tx":        {},
	"from":      {},
	"to":        {},
	"address":   {},
	"contract":  {},
	"method":    {},
	"signature": {},
	"type":      {},
	"keystore":  {},
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// IsAllowlisted reports whether key is exempt from redaction.
func IsAllowlisted(key string) bool {
	_, ok := allowlist[normalizeKey(key)]
	return ok
}

// IsSensitive reports whether values logged under key must be masked.
func IsSensitive(key string) bool {
	normalized := normalizeKey(key)
	if _, ok := allowlist[normalized]; ok {
		return false
	}
	for _, marker := range sensitiveMarkers {
		if strings.Contains(normalized, marker) {
			return true
		}
	}
	return false
}

// MaskField always masks a non-empty value unless key is allowlisted. Use it
// for values whose key does not reveal that they are secret.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// redactAttr masks sensitive attributes as the handler writes them, so a
// credential passed with a plain slog.String never reaches the sink.
func redactAttr(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() == slog.KindGroup || !IsSensitive(attr.Key) {
		return attr
	}
	if attr.Value.Kind() == slog.KindString && strings.TrimSpace(attr.Value.String()) == "" {
		return attr
	}
	return slog.String(attr.Key, RedactedValue)
}
