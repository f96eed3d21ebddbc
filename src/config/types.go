package config

import (
	"fmt"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
)

type Environment string

const (
	Live Environment = "live"
	Beta Environment = "beta"
	Dev  Environment = "dev"
)

type IriseupConfig struct {
	Env      Environment     `mapstructure:"env"`
	Addr     string          `mapstructure:"addr"`
	BaseUrl  string          `mapstructure:"base_url"`
	LogLevel string          `mapstructure:"log_level"`
	LogFile  LogFileConfig   `mapstructure:"log_file"`
	Postgres PostgresConfig  `mapstructure:"postgres"`
	Media    MediaConfig     `mapstructure:"media"`
	Remote   RemoteConfig    `mapstructure:"remote"`
	Uploads  RateLimitConfig `mapstructure:"uploads"`

	// Set when running behind a reverse proxy that sets X-Forwarded-For.
	// Otherwise the header is ignored, since any client can send it.
	TrustProxy bool `mapstructure:"trust_proxy"`
}

func (c IriseupConfig) ZerologLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return level
}

type PostgresConfig struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Hostname string `mapstructure:"hostname"`
	Port     int    `mapstructure:"port"`
	DbName   string `mapstructure:"db_name"`
	LogLevel string `mapstructure:"log_level"`
	MinConn  int32  `mapstructure:"min_conn"`
	MaxConn  int32  `mapstructure:"max_conn"`
}

func (info PostgresConfig) DSN() string {
	return fmt.Sprintf("user=%s password=%s host=%s port=%d dbname=%s", info.User, info.Password, info.Hostname, info.Port, info.DbName)
}

func (info PostgresConfig) TraceLevel() tracelog.LogLevel {
	level, err := tracelog.LogLevelFromString(info.LogLevel)
	if err != nil {
		return tracelog.LogLevelWarn
	}
	return level
}

// Rotating JSON log file, written alongside the console output. Disabled when
// Path is empty.
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type MediaConfig struct {
	// Local backend files live under StorageRoot and are served from MediaURL.
	StorageRoot string `mapstructure:"storage_root"`
	MediaURL    string `mapstructure:"media_url"`

	HardMaxBytes   int  `mapstructure:"hard_max_bytes"`
	TargetBytes    int  `mapstructure:"target_bytes"`
	MaxUploadBytes int  `mapstructure:"max_upload_bytes"`
	AllowOversize  bool `mapstructure:"allow_oversize"`

	MinQuality int `mapstructure:"min_quality"`
	MaxQuality int `mapstructure:"max_quality"`

	DefaultFolder string `mapstructure:"default_folder"`
}

func (m MediaConfig) Validate() error {
	if m.HardMaxBytes <= 0 {
		return fmt.Errorf("media.hard_max_bytes must be positive, got %d", m.HardMaxBytes)
	}
	if m.TargetBytes <= 0 || m.TargetBytes > m.HardMaxBytes {
		return fmt.Errorf("media.target_bytes must be in (0, %d], got %d", m.HardMaxBytes, m.TargetBytes)
	}
	if m.MaxUploadBytes < m.HardMaxBytes {
		return fmt.Errorf("media.max_upload_bytes (%d) must be at least media.hard_max_bytes (%d)", m.MaxUploadBytes, m.HardMaxBytes)
	}
	if m.MinQuality < 1 || m.MaxQuality > 100 || m.MinQuality > m.MaxQuality {
		return fmt.Errorf("media quality range must satisfy 1 <= min <= max <= 100, got %d-%d", m.MinQuality, m.MaxQuality)
	}
	return nil
}

// The remote store is an S3-compatible bucket behind an image CDN. CloudName
// is the bucket; APIKey and APISecret are the access key pair.
type RemoteConfig struct {
	CloudName    string `mapstructure:"cloud_name"`
	APIKey       string `mapstructure:"api_key"`
	APISecret    string `mapstructure:"api_secret"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	DeliveryURL  string `mapstructure:"delivery_url"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

func (r RemoteConfig) Enabled() bool {
	return r.CloudName != "" && r.APIKey != "" && r.APISecret != ""
}

type RateLimitConfig struct {
	PerSecond float64 `mapstructure:"per_second"`
	Burst     int     `mapstructure:"burst"`
}
