package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces masked values in log output.
const RedactedValue = "[REDACTED]"

// Keys emitted verbatim by MaskField. Everything else it is handed is
// treated as an identity or secret.
var maskAllowlist = map[string]struct{}{
	"service":   {},
	"env":       {},
	"error":     {},
	"reason":    {},
	"component": {},
	"operation": {},
	"method":    {},
	"status":    {},
	"requestid": {},
	"custody":   {},
}

// Keys the handler always blanks, whichever call site logged them.
var secretKeys = map[string]struct{}{
	"authorization": {},
	"adminsecret":   {},
	"passphrase":    {},
	"secret":        {},
	"signature":     {},
	"token":         {},
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(strings.TrimSpace(key)))
}

// IsAllowlisted reports whether MaskField leaves key readable.
func IsAllowlisted(key string) bool {
	_, ok := maskAllowlist[normalizeKey(key)]
	return ok
}

// MaskValue returns RedactedValue for non-blank values.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField builds an attribute whose value is redacted unless key is
// allowlisted. Use it for payer, payee and caller identities.
func MaskField(key, value string) slog.Attr {
	if IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, MaskValue(value))
}

// redactSecrets is installed in the JSON handler so credentials never reach
// the sink even when logged with a plain slog.String.
func redactSecrets(attr slog.Attr) slog.Attr {
	if _, ok := secretKeys[normalizeKey(attr.Key)]; !ok {
		return attr
	}
	if attr.Value.Kind() == slog.KindString && strings.TrimSpace(attr.Value.String()) == "" {
		return attr
	}
	return slog.String(attr.Key, RedactedValue)
}
