package main

import (
	"context"
	"os"
	"strconv"
	"strings"
)

const envPrefix = "MINIAPP_"

// envLoader feeds MINIAPP_* variables to the config provider.
type envLoader struct {
	lookup func(string) (string, bool)
}

func (l envLoader) LoadRaw(context.Context) (map[string]any, error) {
	lookup := l.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	out := map[string]any{}
	for _, key := range []string{"app_id", "app_secret", "offer_id", "pay_secret", "base_url"} {
		if value, ok := lookup(envPrefix + strings.ToUpper(key)); ok && strings.TrimSpace(value) != "" {
			out[key] = strings.TrimSpace(value)
		}
	}
	if value, ok := lookup(envPrefix + "TIMEOUT_MS"); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			out["timeout_ms"] = parsed
		}
	}
	if value, ok := lookup(envPrefix + "DEBUG"); ok {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			out["debug"] = parsed
		}
	}
	return out, nil
}

// envOr returns the flag value, then the MINIAPP_* variable, then fallback.
func envOr(flagValue string, name string, fallback string) string {
	if strings.TrimSpace(flagValue) != "" {
		return strings.TrimSpace(flagValue)
	}
	if value, ok := os.LookupEnv(envPrefix + name); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}
