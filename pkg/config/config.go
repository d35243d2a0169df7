// Package config loads harvester settings from defaults, an optional TOML
// file and the environment. Command-line flags are applied last by the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/redis/go-redis/v9"
)

// Config holds every setting of a harvest or analysis run.
type Config struct {
	Token   string `toml:"token"`
	BaseURL string `toml:"base_url"`

	Location     string `toml:"location"`
	MinFollowers int    `toml:"min_followers"`
	MaxRepos     int    `toml:"max_repos"`
	Workers      int    `toml:"workers"`

	// RequestsPerSecond paces requests client-side; 0 disables pacing
	RequestsPerSecond float64       `toml:"requests_per_second"`
	Timeout           time.Duration `toml:"timeout"`

	OutputDir  string `toml:"output_dir"`
	UsersFile  string `toml:"users_file"`
	ReposFile  string `toml:"repos_file"`
	SQLitePath string `toml:"sqlite_path"`

	// RedisURL enables the shared rate limit store and the ETag cache.
	// Either a redis:// URL or a bare host:port.
	RedisURL string `toml:"redis_url"`

	// MetricsAddr serves /metrics and /health when set (e.g. ":9090")
	MetricsAddr string `toml:"metrics_addr"`

	LogLevel  string `toml:"log_level"`
	LogPretty bool   `toml:"log_pretty"`
}

// Default returns the settings of the classic Austin harvest.
func Default() Config {
	return Config{
		BaseURL:      "https://api.github.com",
		Location:     "Austin",
		MinFollowers: 100,
		MaxRepos:     500,
		Workers:      1,
		Timeout:      30 * time.Second,
		OutputDir:    ".",
		UsersFile:    "users.csv",
		ReposFile:    "repositories.csv",
		LogLevel:     "info",
	}
}

// Load returns the defaults overlaid with the TOML file at path (if path is
// not empty) and then with the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		meta, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return Config{}, fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

// applyEnv overrides fields from GITHUB_TOKEN and GHH_* variables.
func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("GITHUB_TOKEN", &c.Token)
	str("GHH_BASE_URL", &c.BaseURL)
	str("GHH_LOCATION", &c.Location)
	num("GHH_MIN_FOLLOWERS", &c.MinFollowers)
	num("GHH_MAX_REPOS", &c.MaxRepos)
	num("GHH_WORKERS", &c.Workers)
	str("GHH_OUTPUT_DIR", &c.OutputDir)
	str("GHH_SQLITE_PATH", &c.SQLitePath)
	str("GHH_REDIS_URL", &c.RedisURL)
	str("GHH_METRICS_ADDR", &c.MetricsAddr)
	str("GHH_LOG_LEVEL", &c.LogLevel)

	if v, ok := lookup("GHH_RPS"); ok && v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("GHH_RPS: %w", err))
		} else {
			c.RequestsPerSecond = rps
		}
	}
	if v, ok := lookup("GHH_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("GHH_TIMEOUT: %w", err))
		} else {
			c.Timeout = d
		}
	}
	if v, ok := lookup("GHH_LOG_PRETTY"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("GHH_LOG_PRETTY: %w", err))
		} else {
			c.LogPretty = b
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	return nil
}

// Validate checks the harvest settings. The token is checked by the client.
func (c Config) Validate() error {
	var errs []error
	if c.Location == "" {
		errs = append(errs, errors.New("location must not be empty"))
	}
	if c.MinFollowers < 0 {
		errs = append(errs, fmt.Errorf("min_followers must be >= 0 (got %d)", c.MinFollowers))
	}
	if c.MaxRepos < 1 {
		errs = append(errs, fmt.Errorf("max_repos must be >= 1 (got %d)", c.MaxRepos))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be >= 1 (got %d)", c.Workers))
	}
	if c.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("requests_per_second must be >= 0 (got %v)", c.RequestsPerSecond))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be > 0 (got %v)", c.Timeout))
	}
	return errors.Join(errs...)
}

// RedisOptions parses RedisURL. It returns nil when Redis is not configured.
func (c Config) RedisOptions() (*redis.Options, error) {
	if c.RedisURL == "" {
		return nil, nil
	}
	if strings.Contains(c.RedisURL, "://") {
		opts, err := redis.ParseURL(c.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: c.RedisURL}, nil
}
