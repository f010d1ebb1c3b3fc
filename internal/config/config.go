// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"nostr-core/internal/cache"
)

// Config holds the settings shared by the CLI and library callers.
type Config struct {
	LogLevel string

	// Relays
	PrivateRelay      string
	PublicRelays      []string
	AllowPrivateHosts bool

	// Policy tables file (yaml or json); missing file means built-in tables
	PolicyConfig string

	// Cache service
	CacheURL     string
	CacheTimeout time.Duration

	// Wallet
	WalletTimeout time.Duration
	NWCURI        string

	// Identity, hex secret key
	NostrSecret string

	// Storage
	RedisURL    string
	RedisPrefix string
	Cache       cache.Config

	MetricsAddr string
}

var defaultPublicRelays = []string{
	"wss://relay.damus.io",
	"wss://nos.lol",
	"wss://relay.primal.net",
}

// Load reads the configuration from environment variables, falling back to
// defaults for anything unset or unparsable.
func Load() *Config {
	defaults := cache.DefaultConfig()
	cfg := &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),

		PrivateRelay:      strings.TrimSuffix(getEnv("PRIVATE_RELAY", "ws://localhost:7777"), "/"),
		PublicRelays:      getEnvList("PUBLIC_RELAYS", defaultPublicRelays),
		AllowPrivateHosts: getEnvBool("ALLOW_PRIVATE_HOSTS", false),

		PolicyConfig: getEnv("POLICY_CONFIG", "config/policy.yaml"),

		CacheURL:     getEnv("CACHE_URL", "wss://cache2.primal.net/v1"),
		CacheTimeout: getEnvDuration("CACHE_TIMEOUT", 10*time.Second),

		WalletTimeout: getEnvDuration("WALLET_TIMEOUT", 30*time.Second),
		NWCURI:        getEnv("NWC_URI", ""),

		NostrSecret: getEnv("NOSTR_SECRET", ""),

		RedisURL:    getEnv("REDIS_URL", ""),
		RedisPrefix: getEnv("REDIS_PREFIX", "nostrcore:"),
		Cache: cache.Config{
			WalletConnectionTTL: getEnvDuration("WALLET_STORE_TTL", defaults.WalletConnectionTTL),
			LNURLPayInfoTTL:     getEnvDuration("LNURL_CACHE_TTL", defaults.LNURLPayInfoTTL),
		},

		MetricsAddr: getEnv("METRICS_ADDR", ""),
	}

	slog.Debug("configuration loaded",
		"private_relay", cfg.PrivateRelay,
		"public_relays", len(cfg.PublicRelays),
		"cache_url", cfg.CacheURL,
		"redis", cfg.RedisURL != "")
	return cfg
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error
	if c.PrivateRelay == "" {
		errs = append(errs, errors.New("PRIVATE_RELAY is required"))
	} else if !isWebsocketURL(c.PrivateRelay) {
		errs = append(errs, fmt.Errorf("PRIVATE_RELAY must be a ws:// or wss:// URL: %s", c.PrivateRelay))
	}
	for _, r := range c.PublicRelays {
		if !isWebsocketURL(r) {
			errs = append(errs, fmt.Errorf("PUBLIC_RELAYS entry must be a ws:// or wss:// URL: %s", r))
		}
	}
	if c.CacheURL != "" && !isWebsocketURL(c.CacheURL) {
		errs = append(errs, fmt.Errorf("CACHE_URL must be a ws:// or wss:// URL: %s", c.CacheURL))
	}
	return errors.Join(errs...)
}

func isWebsocketURL(s string) bool {
	return strings.HasPrefix(s, "ws://") || strings.HasPrefix(s, "wss://")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvDuration accepts Go durations ("45s") or plain seconds ("45").
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	slog.Warn("invalid duration in environment, using default", "key", key, "value", val)
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return append([]string(nil), defaultVal...)
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
