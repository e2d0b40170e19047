// Package masking redacts payee and credential data before it reaches the
// audit trail or logs.
package masking

import "strings"

const maskToken = "****"

// keys whose string values are redacted wherever they appear in metadata
var sensitiveKeys = map[string]struct{}{
	"payee_address":  {},
	"pix_key":        {},
	"email":          {},
	"phone":          {},
	"api_key":        {},
	"token":          {},
	"bot_token":      {},
	"webhook_url":    {},
	"gateway_secret": {},
}

// MaskSecret keeps any underscore-delimited prefix and the last four
// characters. Short values are fully masked.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if at := strings.LastIndex(trimmed, "@"); at > 0 && at < len(trimmed)-1 {
		return maskEmail(trimmed[:at], trimmed[at+1:])
	}

	prefix, rest := "", trimmed
	if i := strings.LastIndex(trimmed, "_"); i >= 0 && i < len(trimmed)-1 {
		prefix, rest = trimmed[:i+1], trimmed[i+1:]
	}
	if len(rest) <= 4 {
		return prefix + maskToken
	}
	return prefix + maskToken + rest[len(rest)-4:]
}

// pix email keys keep the first letter and the domain so support can still
// recognise the payee
func maskEmail(local, domain string) string {
	return local[:1] + maskToken + "@" + domain
}

// MaskMetadata returns a masked copy of metadata. Nested maps and slices are
// walked; blank keys are dropped.
func MaskMetadata(input map[string]any) map[string]any {
	masked := make(map[string]any, len(input))
	for key, value := range input {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		_, sensitive := sensitiveKeys[strings.ToLower(key)]
		masked[key] = maskValue(value, sensitive)
	}
	return masked
}

func maskValue(value any, sensitive bool) any {
	switch v := value.(type) {
	case string:
		if sensitive {
			return MaskSecret(v)
		}
		return v
	case map[string]any:
		return MaskMetadata(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = maskValue(item, sensitive)
		}
		return out
	case []string:
		if !sensitive {
			return v
		}
		out := make([]string, len(v))
		for i, item := range v {
			out[i] = MaskSecret(item)
		}
		return out
	default:
		return value
	}
}
