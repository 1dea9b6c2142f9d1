// Package config loads agent configuration from environment variables.
package config

import (
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

type Config struct {
	// Listen is the agent's HTTP bind address.
	Listen string `env:"MEDICARE_AGENT_LISTEN" envDefault:":8787"`
	// Upstream is the origin of the hospital application.
	Upstream string `env:"MEDICARE_AGENT_UPSTREAM" envDefault:"http://localhost:8000"`
	// CacheDB is the path of the local cache database. Ignored when
	// CacheSock is set.
	CacheDB string `env:"MEDICARE_AGENT_CACHE_DB"`
	// CacheSock points at a running cache daemon socket. When set, the
	// agent uses the daemon instead of opening CacheDB directly.
	CacheSock string `env:"MEDICARE_AGENT_CACHE_SOCK"`
	// CacheVersion suffixes the namespace names. Bump it to force a purge
	// of previously cached content at activation.
	CacheVersion string `env:"MEDICARE_AGENT_CACHE_VERSION" envDefault:"v1"`
	// CDNHosts are cross-origin hosts eligible for caching.
	CDNHosts []string `env:"MEDICARE_AGENT_CDN_HOSTS" envDefault:"cdn.jsdelivr.net,fonts.googleapis.com,fonts.gstatic.com"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, errors.Wrap(err, "parse env")
	}
	if cfg.CacheDB == "" {
		cfg.CacheDB = DefaultDBPath()
	}
	return &cfg, nil
}

// DefaultDBPath returns the default cache database location.
func DefaultDBPath() string {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "."
	}
	return filepath.Join(home, ".cache", "medicare-agent", "cache.bbolt")
}

// DefaultSocketPath returns the default cache daemon socket location.
func DefaultSocketPath() string {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "."
	}
	return filepath.Join(home, ".cache", "medicare-agent", "cache.sock")
}
