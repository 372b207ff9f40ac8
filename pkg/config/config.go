package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       Server   `mapstructure:"server"`
	Postgres     Postgres `mapstructure:"postgres"`
	Sync         Sync     `mapstructure:"sync"`
	Data         Data     `mapstructure:"data"`
	LoggingLevel string   `mapstructure:"logging-level"`
}

type Server struct {
	Port          string `mapstructure:"port"`
	BodyLimit     int    `mapstructure:"body_limit"`
	SwaggerHost   string `mapstructure:"swagger_host"`
	SwaggerSchema string `mapstructure:"swagger_schema"`
}

type Postgres struct {
	ConnString     string `mapstructure:"conn_string"`
	MaxConnections int32  `mapstructure:"max_connections"`
}

type Sync struct {
	// Scheduler intervals in robfig/cron spec format
	SyncInterval  string `mapstructure:"syncInterval"`  // default "@every 15m"
	RetryInterval string `mapstructure:"retryInterval"` // default "@every 15m"
	// Daily cleanup in cron format (with seconds), e.g. "0 30 2 * * *"
	CleanupSchedule string `mapstructure:"cleanupSchedule"`

	MaxAttempts             int           `mapstructure:"maxAttempts"`            // retry budget per outbox entry, default 3
	TransientRetries        int           `mapstructure:"transientRetries"`       // extra attempts per remote call, default 1
	RetentionDays           int           `mapstructure:"retentionDays"`          // outbox/audit retention, default 30
	LogRetentionDays        int           `mapstructure:"logRetentionDays"`       // rotated log files, default 15
	BootstrapWindow         time.Duration `mapstructure:"bootstrapWindow"`        // pull window when no checkpoint, default 24h
	OfflineCooldown         time.Duration `mapstructure:"offlineCooldown"`        // circuit cooldown, default 45s
	ProbeInterval           time.Duration `mapstructure:"probeInterval"`          // circuit probe period, default 10s
	CleanupWorkers          int           `mapstructure:"cleanupWorkers"`         // dependent-delete fan-out, default 4
	AllowPlaceholderParents bool          `mapstructure:"allowPlaceholderParents"`
}

type Data struct {
	Dir string `mapstructure:"dir"` // root of the JSON mirror, default "data"
}

func NewConfig() (Config, error) {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	var conf Config
	err := viper.ReadInConfig()
	// Missing .env is fine, environment variables still apply
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return conf, err
		}
	}

	if err = viper.Unmarshal(&conf); err != nil {
		return conf, err
	}

	conf.applyDefaults()
	return conf, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Data.Dir == "" {
		c.Data.Dir = "data"
	}
	if c.Server.SwaggerHost == "" {
		c.Server.SwaggerHost = "localhost:" + c.Server.Port
	}
	if c.Server.SwaggerSchema == "" {
		c.Server.SwaggerSchema = "http"
	}
	if c.Sync.SyncInterval == "" {
		c.Sync.SyncInterval = "@every 15m"
	}
	if c.Sync.RetryInterval == "" {
		c.Sync.RetryInterval = "@every 15m"
	}
	if c.Sync.CleanupSchedule == "" {
		c.Sync.CleanupSchedule = "0 30 2 * * *"
	}
	if c.Sync.MaxAttempts <= 0 {
		c.Sync.MaxAttempts = 3
	}
	if c.Sync.TransientRetries <= 0 {
		c.Sync.TransientRetries = 1
	}
	if c.Sync.RetentionDays <= 0 {
		c.Sync.RetentionDays = 30
	}
	if c.Sync.LogRetentionDays <= 0 {
		c.Sync.LogRetentionDays = 15
	}
	if c.Sync.BootstrapWindow <= 0 {
		c.Sync.BootstrapWindow = 24 * time.Hour
	}
	if c.Sync.OfflineCooldown <= 0 {
		c.Sync.OfflineCooldown = 45 * time.Second
	}
	if c.Sync.ProbeInterval <= 0 {
		c.Sync.ProbeInterval = 10 * time.Second
	}
	if c.Sync.CleanupWorkers <= 0 {
		c.Sync.CleanupWorkers = 4
	}
}
