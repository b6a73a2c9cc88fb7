package core

import (
	"slices"
	"strings"
)

const RedactedValue = "[REDACTED]"

// Keys containing any of these fragments are masked.
var secretFragments = []string{
	"secret", "token", "session_key", "js_code", "code", "sig", "authorization", "password",
}

// Keys kept visible even when they contain a secret fragment.
var visibleKeys = map[string]struct{}{
	"app_id": {}, "appid": {}, "openid": {}, "offer_id": {}, "path": {}, "method": {},
	"errcode": {}, "status_code": {}, "request_id": {}, "key": {},
}

// RedactSensitiveMap returns a deep copy of metadata with secret-bearing keys masked.
func RedactSensitiveMap(metadata map[string]any) map[string]any {
	masked := make(map[string]any, len(metadata))
	for key, value := range metadata {
		if isSecretKey(key) {
			masked[key] = RedactedValue
		} else {
			masked[key] = redactNested(value)
		}
	}
	return masked
}

func redactNested(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return RedactSensitiveMap(v)
	case map[string]string:
		widened := make(map[string]any, len(v))
		for key, item := range v {
			widened[key] = item
		}
		return RedactSensitiveMap(widened)
	case []any:
		items := make([]any, 0, len(v))
		for _, item := range v {
			items = append(items, redactNested(item))
		}
		return items
	}
	return value
}

func isSecretKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if _, visible := visibleKeys[key]; visible || key == "" {
		return false
	}
	return slices.ContainsFunc(secretFragments, func(fragment string) bool {
		return strings.Contains(key, fragment)
	})
}
