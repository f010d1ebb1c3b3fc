package cache

import "time"

// Config holds cache TTL configuration
type Config struct {
	WalletConnectionTTL time.Duration
	LNURLPayInfoTTL     time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		WalletConnectionTTL: 0,                // kept until the user disconnects
		LNURLPayInfoTTL:     10 * time.Minute, // callbacks and limits rarely change
	}
}
