package config

import "time"

// CacheConfig controls the month status cache.  When Enabled is false every
// lookup recomputes from the ledger.  With no Redis client the cache lives
// in process memory; Prefix namespaces the Redis keys.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
	Prefix  string
}

// LoadCacheConfig reads the cache switches; ttl comes from MONTH_CACHE_TTL
// via Config.
func LoadCacheConfig(ttl time.Duration) CacheConfig {
	cfg := CacheConfig{
		Enabled: envBool("CACHE_ENABLED", true),
		TTL:     ttl,
		Prefix:  envStr("CACHE_PREFIX", "sake:month"),
	}
	if cfg.TTL <= 0 {
		cfg.Enabled = false
	}
	return cfg
}
