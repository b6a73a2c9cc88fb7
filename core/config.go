package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type PersistenceConfig struct {
	TokenKey    string `koanf:"token_key" mapstructure:"token_key"`
	SessionsKey string `koanf:"sessions_key" mapstructure:"sessions_key"`
}

type Config struct {
	AppID     string `koanf:"app_id" mapstructure:"app_id"`
	AppSecret string `koanf:"app_secret" mapstructure:"app_secret"`
	OfferID   string `koanf:"offer_id" mapstructure:"offer_id"`
	PaySecret string `koanf:"pay_secret" mapstructure:"pay_secret"`
	BaseURL   string `koanf:"base_url" mapstructure:"base_url"`
	// TimeoutMS bounds every transport call, in milliseconds.
	TimeoutMS   int               `koanf:"timeout_ms" mapstructure:"timeout_ms"`
	Debug       bool              `koanf:"debug" mapstructure:"debug"`
	Persistence PersistenceConfig `koanf:"persistence" mapstructure:"persistence"`
}

func DefaultConfig() Config {
	return Config{
		BaseURL:   PrimaryBaseURL,
		TimeoutMS: int(DefaultTimeout / time.Millisecond),
		Persistence: PersistenceConfig{
			TokenKey:    "access_token",
			SessionsKey: "session_keys",
		},
	}
}

// Validate only checks structural soundness. Credentials are checked by
// NewClient so partially filled layers can still be merged.
func (c Config) Validate() error {
	if c.TimeoutMS < 0 {
		return fmt.Errorf("core: timeout_ms must not be negative")
	}
	if base := strings.TrimSpace(c.BaseURL); base != "" {
		parsed, err := url.Parse(base)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("core: base_url %q is invalid", base)
		}
	}
	if c.Persistence.TokenKey != "" && c.Persistence.TokenKey == c.Persistence.SessionsKey {
		return fmt.Errorf("core: persistence token_key and sessions_key must differ")
	}
	return nil
}

// ValidateCredentials checks the fields every client needs.
func (c Config) ValidateCredentials() error {
	if strings.TrimSpace(c.AppID) == "" {
		return fmt.Errorf("core: app_id is required")
	}
	if strings.TrimSpace(c.AppSecret) == "" {
		return fmt.Errorf("core: app_secret is required")
	}
	return nil
}

func (c Config) Timeout() time.Duration {
	if c.TimeoutMS <= 0 {
		return DefaultTimeout
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

func (c Config) ResolvedBaseURL() string {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		return PrimaryBaseURL
	}
	return base
}

func (c Config) tokenKey() string {
	if key := strings.TrimSpace(c.Persistence.TokenKey); key != "" {
		return key
	}
	return "access_token"
}

func (c Config) sessionsKey() string {
	if key := strings.TrimSpace(c.Persistence.SessionsKey); key != "" {
		return key
	}
	return "session_keys"
}
