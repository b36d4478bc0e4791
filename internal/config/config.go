// Package config holds app wide settings unmarshalled from viper: an
// optional config file, VIRSIFT_* environment variables and bound CLI flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"virsift/internal/blob"
	"virsift/internal/core"
	"virsift/pkg/domain"
)

// EnvPrefix prefixes every environment override, e.g. VIRSIFT_STORAGE_DRIVER.
const EnvPrefix = "VIRSIFT"

// QualityConfig are the default quality filter thresholds.
type QualityConfig struct {
	MinLength int `mapstructure:"min_length"`
	MaxNRun   int `mapstructure:"max_n_run"`
}

// TimelineConfig are the default timeline settings.
type TimelineConfig struct {
	MinClusterSize   int    `mapstructure:"min_cluster_size"`
	Representative   string `mapstructure:"representative"`
	QualifyBySubtype bool   `mapstructure:"qualify_by_subtype"`
}

// CacheConfig sizes the clone partition cache.
type CacheConfig struct {
	Partitions int `mapstructure:"partitions"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig configures the Prometheus recorder.
type MetricsConfig struct {
	// Textfile, when set, receives the registry in node-exporter format on exit.
	Textfile string `mapstructure:"textfile"`
}

// TraceConfig configures JSON-lines span output.
type TraceConfig struct {
	Path string `mapstructure:"path"`
}

// Config is the root settings struct.
type Config struct {
	Storage  core.StorageConfig `mapstructure:"storage"`
	Blob     blob.Config        `mapstructure:"blob"`
	Hosts    domain.HostTable   `mapstructure:"hosts"`
	Quality  QualityConfig      `mapstructure:"quality"`
	Timeline TimelineConfig     `mapstructure:"timeline"`
	Workers  int                `mapstructure:"workers"`
	Cache    CacheConfig        `mapstructure:"cache"`
	Log      LogConfig          `mapstructure:"log"`
	Metrics  MetricsConfig      `mapstructure:"metrics"`
	Trace    TraceConfig        `mapstructure:"trace"`
}

// SetDefaults registers the built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("storage.driver", string(core.StorageSQLite))
	v.SetDefault("storage.sqlite_path", "virsift.db")
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("blob.driver", string(blob.DriverFilesystem))
	v.SetDefault("blob.fs_root", "./virsift-artifacts")
	v.SetDefault("blob.s3.bucket", "")
	v.SetDefault("blob.s3.region", "")
	v.SetDefault("blob.s3.endpoint", "")
	v.SetDefault("blob.s3.prefix", "")
	v.SetDefault("blob.s3.path_style", false)
	v.SetDefault("blob.s3.access_key_id", "")
	v.SetDefault("blob.s3.secret_access_key", "")
	v.SetDefault("blob.s3.session_token", "")
	v.SetDefault("hosts.fallback", domain.HostHuman)
	v.SetDefault("quality.min_length", 0)
	v.SetDefault("quality.max_n_run", 10)
	v.SetDefault("timeline.min_cluster_size", 3)
	v.SetDefault("timeline.representative", string(core.HighestQuality))
	v.SetDefault("timeline.qualify_by_subtype", false)
	v.SetDefault("workers", 0)
	v.SetDefault("cache.partitions", 16)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("trace.path", "")
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags binds each key to the named flag when the flag exists.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	for key, name := range keys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind %s: %w", name, err)
		}
	}
	return nil
}

// Load reads path (when non-empty) into v and decodes the result.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects settings that cannot be clamped into range.
func (c Config) Validate() error {
	var errs []error
	if _, err := c.HostTable(); err != nil {
		errs = append(errs, err)
	}
	if _, err := core.ParseRepresentativePolicy(c.Timeline.Representative); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// HostTable returns the configured keyword table, or the default table when
// no rules are configured.
func (c Config) HostTable() (domain.HostTable, error) {
	if len(c.Hosts.Rules) == 0 {
		t := domain.DefaultHostTable()
		if c.Hosts.Fallback != "" {
			t.Fallback = c.Hosts.Fallback
		}
		return t, nil
	}
	return domain.NewHostTable(c.Hosts.Rules, c.Hosts.Fallback)
}

// Representative returns the parsed default representative policy.
func (c Config) Representative() core.RepresentativePolicy {
	p, err := core.ParseRepresentativePolicy(c.Timeline.Representative)
	if err != nil {
		return core.HighestQuality
	}
	return p
}

// LogLevel parses Log.Level.
func (c Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if c.Log.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level: %w", err)
	}
	return level, nil
}

// NewLogger builds the slog logger described by Log, writing to w.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	level, _ := c.LogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
