package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type LocalConfig struct {
	// Path of the SQLite file. Empty means memory-only.
	Path string `mapstructure:"path"`
}

type RemoteConfig struct {
	Backend      string        `mapstructure:"backend"`
	Bucket       string        `mapstructure:"bucket"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type ConnectivityConfig struct {
	ProbeURL string `mapstructure:"probe_url"`
	Schedule string `mapstructure:"schedule"`
}

type ReportsConfig struct {
	Project      string `mapstructure:"project"`
	Dataset      string `mapstructure:"dataset"`
	Model        string `mapstructure:"model"`
	HistoryLimit int    `mapstructure:"history_limit"`
}

type ServerConfig struct {
	Port  string `mapstructure:"port"`
	Token string `mapstructure:"token"`
}

type SyncConfig struct {
	SeedDefaults bool `mapstructure:"seed_defaults"`
}

type Config struct {
	UserID       string             `mapstructure:"user_id"`
	Mode         string             `mapstructure:"mode"`
	Installed    bool               `mapstructure:"installed"`
	Log          LogConfig          `mapstructure:"log"`
	Local        LocalConfig        `mapstructure:"local"`
	Remote       RemoteConfig       `mapstructure:"remote"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`
	Reports      ReportsConfig      `mapstructure:"reports"`
	Server       ServerConfig       `mapstructure:"server"`
	Sync         SyncConfig         `mapstructure:"sync"`
}

const envPrefix = "BUDGETSYNC"

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "auto")
	v.SetDefault("installed", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("local.path", "data/budgetsync.db")
	v.SetDefault("remote.backend", "memory")
	v.SetDefault("remote.poll_interval", 10*time.Second)
	v.SetDefault("connectivity.schedule", "@every 15s")
	v.SetDefault("reports.dataset", "budgetsync")
	v.SetDefault("reports.model", "gemini-2.5-flash")
	v.SetDefault("reports.history_limit", 10)
	v.SetDefault("server.port", "8080")
	v.SetDefault("sync.seed_defaults", true)
}

// Load reads configuration from path (YAML). A missing file is not an error:
// defaults and BUDGETSYNC_* environment variables still apply. A .env file
// in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	// environment overrides, e.g. BUDGETSYNC_REMOTE_BUCKET=my-bucket
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Mode {
	case "auto", "cache", "direct":
	default:
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}
	switch c.Remote.Backend {
	case "memory":
	case "gcs":
		if c.Remote.Bucket == "" {
			return fmt.Errorf("config: remote.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("config: unknown remote backend %q", c.Remote.Backend)
	}
	if c.Reports.HistoryLimit <= 0 {
		c.Reports.HistoryLimit = 10
	}
	return nil
}
