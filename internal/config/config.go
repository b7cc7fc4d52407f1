// Package config loads trialcore settings from trialcore.yaml, TRIALCORE_*
// environment variables and defaults, in increasing order of precedence:
// defaults < file < environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"trialcore/internal/blob"
	"trialcore/internal/persistence"
	"trialcore/internal/trial"
)

const (
	// EnvPrefix prefixes every environment override, e.g.
	// TRIALCORE_STORAGE_DRIVER for storage.driver.
	EnvPrefix      = "TRIALCORE"
	configFileName = "trialcore"
	configFileType = "yaml"
)

// Lock drivers.
const (
	LockMemory = "memory"
	LockRedis  = "redis"
)

// Metrics drivers.
const (
	MetricsNone       = "none"
	MetricsExpvar     = "expvar"
	MetricsPrometheus = "prometheus"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the resolved configuration.
type Config struct {
	Storage        StorageConfig `mapstructure:"storage"`
	Blob           BlobConfig    `mapstructure:"blob"`
	Lock           LockConfig    `mapstructure:"lock"`
	Metrics        MetricsConfig `mapstructure:"metrics"`
	SchemaDir      string        `mapstructure:"schema_dir"`
	TemplateDir    string        `mapstructure:"template_dir"`
	EncryptKey     string        `mapstructure:"encrypt_key"`
	IdentityFields []string      `mapstructure:"identity_fields"`
	LogLevel       string        `mapstructure:"log_level"`
}

type StorageConfig struct {
	Driver      string `mapstructure:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

type BlobConfig struct {
	Driver string   `mapstructure:"driver"`
	FSRoot string   `mapstructure:"fs_root"`
	S3     S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	PathStyle       bool   `mapstructure:"path_style"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

type LockConfig struct {
	Driver   string        `mapstructure:"driver"`
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type MetricsConfig struct {
	Driver string `mapstructure:"driver"`
	// Name is the expvar map name.
	Name string `mapstructure:"name"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.driver", string(persistence.DriverSQLite))
	v.SetDefault("storage.sqlite_path", "trialcore.db")
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("blob.driver", string(blob.DriverFilesystem))
	v.SetDefault("blob.fs_root", "artifacts")
	v.SetDefault("blob.s3.bucket", "")
	v.SetDefault("blob.s3.region", "us-east-1")
	v.SetDefault("blob.s3.endpoint", "")
	v.SetDefault("blob.s3.path_style", false)
	v.SetDefault("blob.s3.access_key_id", "")
	v.SetDefault("blob.s3.secret_access_key", "")
	v.SetDefault("lock.driver", LockMemory)
	v.SetDefault("lock.redis_url", "redis://localhost:6379/0")
	v.SetDefault("lock.ttl", 30*time.Second)
	v.SetDefault("metrics.driver", MetricsNone)
	v.SetDefault("metrics.name", "trialcore")
	v.SetDefault("schema_dir", "")
	v.SetDefault("template_dir", "")
	v.SetDefault("encrypt_key", "")
	v.SetDefault("identity_fields", []string{})
	v.SetDefault("log_level", "info")
}

// Load resolves the configuration. An explicit path must exist; without one
// trialcore.yaml is looked up in the working directory and may be absent.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks driver names and the settings each driver needs.
func (c *Config) Validate() error {
	var problems []string
	switch persistence.Driver(c.Storage.Driver) {
	case persistence.DriverMemory, persistence.DriverSQLite:
	case persistence.DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			problems = append(problems, "storage.postgres_dsn is required for the postgres driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown storage.driver %q", c.Storage.Driver))
	}
	switch blob.Driver(c.Blob.Driver) {
	case blob.DriverMemory:
	case blob.DriverFilesystem:
		if c.Blob.FSRoot == "" {
			problems = append(problems, "blob.fs_root is required for the fs driver")
		}
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			problems = append(problems, "blob.s3.bucket is required for the s3 driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown blob.driver %q", c.Blob.Driver))
	}
	switch c.Lock.Driver {
	case LockMemory:
	case LockRedis:
		if c.Lock.RedisURL == "" {
			problems = append(problems, "lock.redis_url is required for the redis driver")
		}
		if c.Lock.TTL <= 0 {
			problems = append(problems, "lock.ttl must be positive")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown lock.driver %q", c.Lock.Driver))
	}
	switch c.Metrics.Driver {
	case MetricsNone, MetricsExpvar, MetricsPrometheus:
	default:
		problems = append(problems, fmt.Sprintf("unknown metrics.driver %q", c.Metrics.Driver))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// StoreConfig returns the trial store settings.
func (c *Config) StoreConfig() trial.StoreConfig {
	return trial.StoreConfig{
		Driver:      persistence.Driver(c.Storage.Driver),
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
	}
}

// BlobConfig returns the artifact storage settings.
func (c *Config) BlobConfig() blob.Config {
	return blob.Config{
		Driver: blob.Driver(c.Blob.Driver),
		FSRoot: c.Blob.FSRoot,
		S3: blob.S3Config{
			Region:          c.Blob.S3.Region,
			Bucket:          c.Blob.S3.Bucket,
			Endpoint:        c.Blob.S3.Endpoint,
			AccessKeyID:     c.Blob.S3.AccessKeyID,
			SecretAccessKey: c.Blob.S3.SecretAccessKey,
			PathStyle:       c.Blob.S3.PathStyle,
		},
	}
}
