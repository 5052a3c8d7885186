// Package config loads the layered configuration for a blockpack run: a YAML
// config file overrides the defaults below, and environment variables
// (BLOCKPACK_*) override the keys that file sets. Without a config file only
// the defaults apply, and no command-line flag besides --config feeds a
// setting. This mirrors the
// teacher's pkg/config package (viper + mapstructure + validator/v10), cut
// down to the settings the Data Block Processor and its demo CLI actually
// consume.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/blockpack/blockpack/internal/bytesize"
)

// Config is the complete configuration for a blockpack run.
type Config struct {
	// Logging controls output behavior for internal/logger.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Volume configures the Block Volume Writer and Capacity Planner (C2/C4).
	Volume VolumeConfig `mapstructure:"volume" yaml:"volume"`

	// IndexFilePolicy selects whether the Index Accumulator (C3) is
	// populated: "none", "lookup", or "full".
	IndexFilePolicy string `mapstructure:"index_file_policy" validate:"required,oneof=none lookup full" yaml:"index_file_policy"`

	// Index configures the Block Index Client backend (C1).
	Index IndexConfig `mapstructure:"index" yaml:"index"`

	// Uploader configures the remote sink draining Output/SpillPickup.
	Uploader UploaderConfig `mapstructure:"uploader" yaml:"uploader"`

	// Shards is the number of Pipeline Core instances run concurrently over
	// one shared Input channel.
	Shards int `mapstructure:"shards" validate:"required,min=1" yaml:"shards"`

	// TempDir is where C2/C3 scratch files are created. Empty uses the OS
	// default temp directory.
	TempDir string `mapstructure:"temp_dir" yaml:"temp_dir,omitempty"`
}

// LoggingConfig controls internal/logger's behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// VolumeConfig configures the target volume size and compression codec.
type VolumeConfig struct {
	// Size is the target maximum compressed volume size. Supports
	// human-readable formats ("64MiB", "1GB") via bytesize.ByteSize.
	Size bytesize.ByteSize `mapstructure:"size" validate:"required" yaml:"size"`

	// Codec names the compression codec: currently only "zstd".
	Codec string `mapstructure:"codec" validate:"required,oneof=zstd" yaml:"codec"`

	// ZstdLevel selects the zstd encoder level: "fastest", "default",
	// "better", or "best".
	ZstdLevel string `mapstructure:"zstd_level" validate:"omitempty,oneof=fastest default better best" yaml:"zstd_level,omitempty"`
}

// IndexConfig selects and configures the Block Index Client backend.
type IndexConfig struct {
	// Backend selects the index implementation: "badger" or "postgres".
	Backend string `mapstructure:"backend" validate:"required,oneof=badger postgres" yaml:"backend"`

	// BadgerDir is the on-disk directory for the embedded Badger index,
	// used when Backend == "badger".
	BadgerDir string `mapstructure:"badger_dir" validate:"required_if=Backend badger" yaml:"badger_dir,omitempty"`

	// PostgresDSN is the connection string, used when Backend == "postgres".
	PostgresDSN string `mapstructure:"postgres_dsn" validate:"required_if=Backend postgres" yaml:"postgres_dsn,omitempty"`
}

// UploaderConfig configures the remote storage sink and worker pool.
type UploaderConfig struct {
	// Backend selects the remote store: "s3" or "filesystem".
	Backend string `mapstructure:"backend" validate:"required,oneof=s3 filesystem" yaml:"backend"`

	// Workers is the number of concurrent upload goroutines.
	Workers int `mapstructure:"workers" validate:"required,min=1" yaml:"workers"`

	// QueueSize bounds how many VolumeUploadRequests may be pending.
	QueueSize int `mapstructure:"queue_size" validate:"required,min=1" yaml:"queue_size"`

	// StopTimeout bounds how long graceful Stop waits for the queue to drain.
	StopTimeout time.Duration `mapstructure:"stop_timeout" validate:"required,gt=0" yaml:"stop_timeout"`

	// S3 holds settings used when Backend == "s3".
	S3 S3Config `mapstructure:"s3" yaml:"s3,omitempty"`

	// FilesystemDir holds the destination directory when Backend == "filesystem".
	FilesystemDir string `mapstructure:"filesystem_dir" validate:"required_if=Backend filesystem" yaml:"filesystem_dir,omitempty"`
}

// S3Config configures the S3 uploader backend.
type S3Config struct {
	Bucket string `mapstructure:"bucket" validate:"required_if=Backend s3" yaml:"bucket,omitempty"`
	Prefix string `mapstructure:"prefix" yaml:"prefix,omitempty"`
	Region string `mapstructure:"region" yaml:"region,omitempty"`
}

// DefaultConfig returns the configuration used when no file, env var, or
// flag overrides a setting.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
			Output: "stdout",
		},
		Volume: VolumeConfig{
			Size:      64 * bytesize.MiB,
			Codec:     "zstd",
			ZstdLevel: "default",
		},
		IndexFilePolicy: "full",
		Index: IndexConfig{
			Backend:   "badger",
			BadgerDir: "./blockpack-index",
		},
		Uploader: UploaderConfig{
			Backend:       "filesystem",
			Workers:       4,
			QueueSize:     64,
			StopTimeout:   30 * time.Second,
			FilesystemDir: "./blockpack-remote",
		},
		Shards: 1,
	}
}

// Load loads configuration from configPath (if non-empty and it exists),
// with environment variables prefixed BLOCKPACK_ overriding keys present in
// that file, and applies defaults for anything left unset. When no config
// file is found, environment variables are not read and the defaults are
// returned. Returns a validated Config.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if found {
		if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHooks())); err != nil {
			return nil, fmt.Errorf("config: unmarshal: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return cfg, nil
}

// Validate runs struct-tag validation over cfg.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

// Save writes cfg to path as YAML.
func Save(cfg *Config, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: mkdir: %w", err)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("BLOCKPACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("blockpack")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("config: read file: %w", err)
	}
	return true, nil
}

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}
