package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

type Config struct {
	ArchiveName string   `mapstructure:"archive_name"`
	LogsName    string   `mapstructure:"logs_name"`
	ShadowName  string   `mapstructure:"shadow_name"`
	RunPrefix   string   `mapstructure:"run_prefix"`
	IgnoreList  []string `mapstructure:"ignore_list"`
	Engine      string   `mapstructure:"engine"`
	DBPath      string   `mapstructure:"db_path"`
}

var Default = Config{
	ArchiveName: "__ARCHIVE",
	LogsName:    "__LOGS",
	ShadowName:  ".__SHADOW",
	RunPrefix:   "run-",
	IgnoreList:  []string{"*.tmp", "*.swp"},
	Engine:      "native",
	DBPath:      "linksnap.db",
}

func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home dir: %w", err)
	}

	configDir := filepath.Join(home, ".linksnap")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config dir: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)

	viper.SetDefault("archive_name", Default.ArchiveName)
	viper.SetDefault("logs_name", Default.LogsName)
	viper.SetDefault("shadow_name", Default.ShadowName)
	viper.SetDefault("run_prefix", Default.RunPrefix)
	viper.SetDefault("ignore_list", Default.IgnoreList)
	viper.SetDefault("engine", Default.Engine)
	viper.SetDefault("db_path", filepath.Join(configDir, Default.DBPath))

	viper.SetEnvPrefix("LINKSNAP")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(err, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Engine != "native" && cfg.Engine != "rsync" {
		return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
	}

	return &cfg, nil
}
