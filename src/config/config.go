package config

import (
	"errors"
	"strings"

	"github.com/PatchWorkCreations/iriseup-foundation/src/oops"
	"github.com/spf13/viper"
)

const (
	DefaultHardMaxBytes = 10 * 1024 * 1024
	// 93% of the hard cap leaves headroom for encoder and metadata overhead.
	DefaultTargetBytes = DefaultHardMaxBytes * 93 / 100
)

// The active configuration. Commands load it once at startup and hand the
// relevant pieces to constructors; library code never reads it directly.
var Config = Defaults()

func Defaults() IriseupConfig {
	return IriseupConfig{
		Env:      Dev,
		Addr:     ":9001",
		BaseUrl:  "http://localhost:9001",
		LogLevel: "info",
		LogFile: LogFileConfig{
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
		Postgres: PostgresConfig{
			User:     "iriseup",
			Password: "password",
			Hostname: "localhost",
			Port:     5432,
			DbName:   "iriseup",
			LogLevel: "warn",
			MinConn:  2,
			MaxConn:  10,
		},
		Media: MediaConfig{
			StorageRoot:    "media",
			MediaURL:       "/media",
			HardMaxBytes:   DefaultHardMaxBytes,
			TargetBytes:    DefaultTargetBytes,
			MaxUploadBytes: 50 * 1024 * 1024,
			MinQuality:     60,
			MaxQuality:     85,
			DefaultFolder:  "default",
		},
		Remote: RemoteConfig{
			Region:       "us-east-1",
			UsePathStyle: true,
		},
		Uploads: RateLimitConfig{
			PerSecond: 2,
			Burst:     5,
		},
	}
}

/*
Reads configuration from an optional file plus IRISEUP_* environment variables,
layered over Defaults. Nested keys map to env vars with underscores, so
media.storage_root becomes IRISEUP_MEDIA_STORAGE_ROOT.
*/
func Load(path string) (IriseupConfig, error) {
	v := viper.New()
	setDefaults(v, Defaults())

	v.SetEnvPrefix("iriseup")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return IriseupConfig{}, oops.New(err, "failed to read config file %s", path)
		}
	} else {
		v.SetConfigName("iriseup")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return IriseupConfig{}, oops.New(err, "failed to read config file")
			}
		}
	}

	var cfg IriseupConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return IriseupConfig{}, oops.New(err, "failed to decode config")
	}

	// Keep the 93% relationship when only the hard cap was overridden.
	if cfg.Media.TargetBytes <= 0 {
		cfg.Media.TargetBytes = cfg.Media.HardMaxBytes * 93 / 100
	}

	if err := cfg.Media.Validate(); err != nil {
		return IriseupConfig{}, oops.New(err, "invalid media config")
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, d IriseupConfig) {
	v.SetDefault("env", string(d.Env))
	v.SetDefault("addr", d.Addr)
	v.SetDefault("base_url", d.BaseUrl)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("trust_proxy", d.TrustProxy)

	v.SetDefault("log_file.path", d.LogFile.Path)
	v.SetDefault("log_file.max_size_mb", d.LogFile.MaxSizeMB)
	v.SetDefault("log_file.max_backups", d.LogFile.MaxBackups)
	v.SetDefault("log_file.max_age_days", d.LogFile.MaxAgeDays)
	v.SetDefault("log_file.compress", d.LogFile.Compress)

	v.SetDefault("postgres.user", d.Postgres.User)
	v.SetDefault("postgres.password", d.Postgres.Password)
	v.SetDefault("postgres.hostname", d.Postgres.Hostname)
	v.SetDefault("postgres.port", d.Postgres.Port)
	v.SetDefault("postgres.db_name", d.Postgres.DbName)
	v.SetDefault("postgres.log_level", d.Postgres.LogLevel)
	v.SetDefault("postgres.min_conn", d.Postgres.MinConn)
	v.SetDefault("postgres.max_conn", d.Postgres.MaxConn)

	v.SetDefault("media.storage_root", d.Media.StorageRoot)
	v.SetDefault("media.media_url", d.Media.MediaURL)
	v.SetDefault("media.hard_max_bytes", d.Media.HardMaxBytes)
	v.SetDefault("media.max_upload_bytes", d.Media.MaxUploadBytes)
	v.SetDefault("media.allow_oversize", d.Media.AllowOversize)
	v.SetDefault("media.min_quality", d.Media.MinQuality)
	v.SetDefault("media.max_quality", d.Media.MaxQuality)
	v.SetDefault("media.default_folder", d.Media.DefaultFolder)
	// Registered with a zero default so the env var is still picked up; Load
	// derives the real value from the hard cap.
	v.SetDefault("media.target_bytes", 0)

	v.SetDefault("remote.cloud_name", d.Remote.CloudName)
	v.SetDefault("remote.api_key", d.Remote.APIKey)
	v.SetDefault("remote.api_secret", d.Remote.APISecret)
	v.SetDefault("remote.region", d.Remote.Region)
	v.SetDefault("remote.endpoint", d.Remote.Endpoint)
	v.SetDefault("remote.delivery_url", d.Remote.DeliveryURL)
	v.SetDefault("remote.use_path_style", d.Remote.UsePathStyle)

	v.SetDefault("uploads.per_second", d.Uploads.PerSecond)
	v.SetDefault("uploads.burst", d.Uploads.Burst)
}
