package sqlstore

import (
	"slices"
	"strings"
)

const redactedValue = "[REDACTED]"

// RedactMetadata masks secrets and customer email addresses before a
// dispatch record is persisted.
func RedactMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return redactMap(metadata)
}

func redactMap(source map[string]any) map[string]any {
	target := make(map[string]any, len(source))
	for key, value := range source {
		switch {
		case isSensitiveKey(key):
			target[key] = redactedValue
		case isEmailKey(key):
			target[key] = maskEmail(value)
		default:
			target[key] = redactValue(value)
		}
	}
	return target
}

func redactValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return redactMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = redactValue(typed[i])
		}
		return out
	default:
		return value
	}
}

// sensitiveKeyParts mark metadata keys whose values are never stored.
var sensitiveKeyParts = []string{"password", "secret", "token", "authorization", "api_key", "apikey", "hmac", "signature"}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	return key != "" && slices.ContainsFunc(sensitiveKeyParts, func(part string) bool {
		return strings.Contains(key, part)
	})
}

func isEmailKey(key string) bool {
	return strings.Contains(strings.ToLower(strings.TrimSpace(key)), "email")
}

// maskEmail keeps the first character of the local part and the domain:
// "jane@example.com" becomes "j***@example.com".
func maskEmail(value any) any {
	text, ok := value.(string)
	if !ok {
		return value
	}
	text = strings.TrimSpace(text)
	at := strings.LastIndex(text, "@")
	if at <= 0 {
		if text == "" {
			return ""
		}
		return redactedValue
	}
	return text[:1] + "***" + text[at:]
}
