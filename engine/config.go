package engine

import (
	stdsql "database/sql"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds pool sizing and instrumentation settings. The zero value is
// not meaningful; start from DefaultConfig or LoadConfig.
type Config struct {
	// MaxOpenConns caps the pool size. <= 0 means unlimited.
	MaxOpenConns int `yaml:"max_open_conns"`
	// MaxIdleConns caps idle connections kept in the pool.
	MaxIdleConns int `yaml:"max_idle_conns"`
	// ConnMaxLifetime recycles connections older than this. 0 keeps them
	// forever.
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	// ConnMaxIdleTime closes connections idle longer than this.
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`

	// CollectStats wraps the pool with query counters.
	CollectStats bool `yaml:"collect_stats"`
	// SlowQueryThreshold marks queries slower than this. Only read when
	// CollectStats is set.
	SlowQueryThreshold time.Duration `yaml:"slow_query_threshold"`
	// LogSlowQueries logs slow queries through slog.
	LogSlowQueries bool `yaml:"log_slow_queries"`
}

// DefaultConfig returns the settings used by New when none are given.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:       10,
		MaxIdleConns:       5,
		ConnMaxLifetime:    time.Hour,
		SlowQueryThreshold: 100 * time.Millisecond,
	}
}

// LoadConfig reads a YAML config file and overlays it on DefaultConfig,
// so a file only needs the keys it changes.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("engine: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("engine: parse config %s: %w", path, err)
	}
	return cfg, nil
}

// UnmarshalYAML overlays the document on the receiver. Durations are
// written in time.ParseDuration form ("250ms", "1h"); absent keys keep
// their current values.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		MaxOpenConns       *int    `yaml:"max_open_conns"`
		MaxIdleConns       *int    `yaml:"max_idle_conns"`
		ConnMaxLifetime    *string `yaml:"conn_max_lifetime"`
		ConnMaxIdleTime    *string `yaml:"conn_max_idle_time"`
		CollectStats       *bool   `yaml:"collect_stats"`
		SlowQueryThreshold *string `yaml:"slow_query_threshold"`
		LogSlowQueries     *bool   `yaml:"log_slow_queries"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.MaxOpenConns != nil {
		c.MaxOpenConns = *raw.MaxOpenConns
	}
	if raw.MaxIdleConns != nil {
		c.MaxIdleConns = *raw.MaxIdleConns
	}
	if raw.CollectStats != nil {
		c.CollectStats = *raw.CollectStats
	}
	if raw.LogSlowQueries != nil {
		c.LogSlowQueries = *raw.LogSlowQueries
	}
	for _, f := range []struct {
		raw  *string
		dst  *time.Duration
		name string
	}{
		{raw.ConnMaxLifetime, &c.ConnMaxLifetime, "conn_max_lifetime"},
		{raw.ConnMaxIdleTime, &c.ConnMaxIdleTime, "conn_max_idle_time"},
		{raw.SlowQueryThreshold, &c.SlowQueryThreshold, "slow_query_threshold"},
	} {
		if f.raw == nil {
			continue
		}
		d, err := time.ParseDuration(*f.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = d
	}
	return nil
}

func (c Config) applyPool(db *stdsql.DB) {
	db.SetMaxOpenConns(c.MaxOpenConns)
	db.SetMaxIdleConns(c.MaxIdleConns)
	db.SetConnMaxLifetime(c.ConnMaxLifetime)
	db.SetConnMaxIdleTime(c.ConnMaxIdleTime)
}
