package grpcapp

import "strings"

var sensitiveKeys = []string{"token", "authorization", "secret"}

// maskSensitiveFields hides values of log fields whose key names a credential.
// Fields come as alternating key/value pairs.
func maskSensitiveFields(fields []any) []any {
	for i := 0; i < len(fields)-1; i += 2 {
		key, ok := fields[i].(string)
		if !ok || !isSensitive(key) {
			continue
		}
		if _, ok := fields[i+1].(string); ok {
			fields[i+1] = "****"
		}
	}
	return fields
}

func isSensitive(key string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}
