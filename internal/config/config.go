// Package config loads the chemledger settings: table storage, remote
// replication target, fallback mirror and logging.
package config

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Table drivers.
const (
	TableFile     = "file"
	TableMemory   = "memory"
	TableSQLite   = "sqlite"
	TablePostgres = "postgres"
)

// Remote drivers.
const (
	RemoteWebHDFS = "webhdfs"
	RemoteS3      = "s3"
)

// Config holds all chemledger configuration.
type Config struct {
	Table    TableConfig    `yaml:"table"`
	Remote   RemoteConfig   `yaml:"remote"`
	Fallback FallbackConfig `yaml:"fallback"`
	Audit    AuditConfig    `yaml:"audit"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// TableConfig selects where the local record table lives.
type TableConfig struct {
	Driver      string `yaml:"driver"` // file, memory, sqlite, postgres
	Path        string `yaml:"path"`   // table file; its base name is the replicated name
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// RemoteConfig describes the remote store. An empty URL (webhdfs) or bucket
// (s3) disables it.
type RemoteConfig struct {
	Driver  string   `yaml:"driver"` // webhdfs, s3
	URL     string   `yaml:"url"`
	User    string   `yaml:"user"`
	Dir     string   `yaml:"dir"` // defaults to /user/<user>
	Timeout string   `yaml:"timeout"`
	Reprobe bool     `yaml:"reprobe"`
	S3      S3Config `yaml:"s3"`
}

// S3Config addresses an S3 compatible bucket.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// FallbackConfig locates the local mirror directory.
type FallbackConfig struct {
	Dir string `yaml:"dir"`
}

// AuditConfig names the creation journal.
type AuditConfig struct {
	Name string `yaml:"name"`
}

// LoggingConfig configures the CLI logger.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	Trace bool   `yaml:"trace"` // JSON span per operation on stderr
}

// MetricsConfig configures the optional metrics dump.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"` // prometheus text exposition written on exit
	Expvar   string `yaml:"expvar"`   // expvar snapshot (JSON) written on exit
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Table: TableConfig{
			Driver:     TableFile,
			Path:       "paraquat_data.json",
			SQLitePath: "chemledger.db",
		},
		Remote: RemoteConfig{
			Driver:  RemoteWebHDFS,
			User:    "hdfs",
			Timeout: "10s",
			Reprobe: true,
			S3:      S3Config{Region: "us-east-1"},
		},
		Fallback: FallbackConfig{Dir: "hdfs_fallback"},
		Audit:    AuditConfig{Name: "creations.log"},
		Logging:  LoggingConfig{Level: "info"},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file, or an empty path, yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnvOverrides(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides:
//
//	CHEMLEDGER_TABLE_DRIVER: file|memory|sqlite|postgres
//	CHEMLEDGER_TABLE_PATH, CHEMLEDGER_SQLITE_PATH, CHEMLEDGER_POSTGRES_DSN
//	CHEMLEDGER_REMOTE_DRIVER: webhdfs|s3
//	CHEMLEDGER_REMOTE_URL (or HDFS_URL), CHEMLEDGER_REMOTE_USER (or HDFS_USER)
//	CHEMLEDGER_REMOTE_DIR (or HDFS_DIR), CHEMLEDGER_REMOTE_TIMEOUT
//	CHEMLEDGER_REMOTE_REPROBE: true|false
//	CHEMLEDGER_S3_BUCKET, CHEMLEDGER_S3_REGION, CHEMLEDGER_S3_ENDPOINT, CHEMLEDGER_S3_PATH_STYLE
//	CHEMLEDGER_FALLBACK_DIR, CHEMLEDGER_AUDIT_NAME
//	CHEMLEDGER_LOG_LEVEL, CHEMLEDGER_METRICS_TEXTFILE
func (c *Config) applyEnvOverrides(lookup func(string) (string, bool)) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	boolean := func(dst *bool, key string) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
		return nil
	}

	str(&c.Table.Driver, "CHEMLEDGER_TABLE_DRIVER")
	str(&c.Table.Path, "CHEMLEDGER_TABLE_PATH")
	str(&c.Table.SQLitePath, "CHEMLEDGER_SQLITE_PATH")
	str(&c.Table.PostgresDSN, "CHEMLEDGER_POSTGRES_DSN")
	str(&c.Remote.Driver, "CHEMLEDGER_REMOTE_DRIVER")
	str(&c.Remote.URL, "CHEMLEDGER_REMOTE_URL", "HDFS_URL")
	str(&c.Remote.User, "CHEMLEDGER_REMOTE_USER", "HDFS_USER")
	str(&c.Remote.Dir, "CHEMLEDGER_REMOTE_DIR", "HDFS_DIR")
	str(&c.Remote.Timeout, "CHEMLEDGER_REMOTE_TIMEOUT")
	str(&c.Remote.S3.Bucket, "CHEMLEDGER_S3_BUCKET")
	str(&c.Remote.S3.Region, "CHEMLEDGER_S3_REGION")
	str(&c.Remote.S3.Endpoint, "CHEMLEDGER_S3_ENDPOINT")
	str(&c.Fallback.Dir, "CHEMLEDGER_FALLBACK_DIR")
	str(&c.Audit.Name, "CHEMLEDGER_AUDIT_NAME")
	str(&c.Logging.Level, "CHEMLEDGER_LOG_LEVEL")
	str(&c.Metrics.Textfile, "CHEMLEDGER_METRICS_TEXTFILE")
	str(&c.Metrics.Expvar, "CHEMLEDGER_METRICS_EXPVAR")
	if err := boolean(&c.Logging.Trace, "CHEMLEDGER_LOG_TRACE"); err != nil {
		return err
	}
	if err := boolean(&c.Remote.Reprobe, "CHEMLEDGER_REMOTE_REPROBE"); err != nil {
		return err
	}
	return boolean(&c.Remote.S3.PathStyle, "CHEMLEDGER_S3_PATH_STYLE")
}

// Validate reports settings that cannot be used.
func (c *Config) Validate() error {
	switch c.Table.Driver {
	case TableFile, TableMemory, TableSQLite, TablePostgres:
	default:
		return fmt.Errorf("invalid table driver %q", c.Table.Driver)
	}
	if strings.TrimSpace(c.Table.Path) == "" {
		return fmt.Errorf("table path required")
	}
	switch c.Remote.Driver {
	case RemoteWebHDFS, RemoteS3:
	default:
		return fmt.Errorf("invalid remote driver %q", c.Remote.Driver)
	}
	if _, err := c.RemoteTimeout(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Fallback.Dir) == "" {
		return fmt.Errorf("fallback directory required")
	}
	if strings.TrimSpace(c.Audit.Name) == "" {
		return fmt.Errorf("audit log name required")
	}
	return nil
}

// RemoteEnabled reports whether a remote store is configured at all.
func (c *Config) RemoteEnabled() bool {
	switch c.Remote.Driver {
	case RemoteS3:
		return strings.TrimSpace(c.Remote.S3.Bucket) != ""
	default:
		return strings.TrimSpace(c.Remote.URL) != ""
	}
}

// RemoteDir returns the remote directory, /user/<user> unless set.
func (c *Config) RemoteDir() string {
	if c.Remote.Dir != "" {
		return c.Remote.Dir
	}
	return path.Join("/user", c.Remote.User)
}

// RemoteTimeout parses the per request remote timeout. Empty means none.
func (c *Config) RemoteTimeout() (time.Duration, error) {
	if c.Remote.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Remote.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid remote timeout %q: %w", c.Remote.Timeout, err)
	}
	return d, nil
}

// TableName is the name the table is replicated under.
func (c *Config) TableName() string {
	return filepath.Base(c.Table.Path)
}
