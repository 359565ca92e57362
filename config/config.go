package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/karaokehub/karaokehub/globals"
	"github.com/karaokehub/karaokehub/types"
)

const (
	defaultAdminUser            = "admin"
	defaultGracePeriodSeconds   = 30
	defaultIdleSweepSpec        = "@every 30m"
	defaultIdleThresholdMinutes = 60
	defaultSessionTTLHours      = 24 * 30
)

// Config is the global configuration object which is filled via the
// configuration file, environment (prefix KARAOKEHUB) and flags.
type Config struct {
	// SessionSecret signs the per-connection session tokens. Mandatory.
	SessionSecret   string `mapstructure:"session_secret"`
	SessionTTLHours int    `mapstructure:"session_ttl_hours"`

	// GracePeriodSeconds is the delay between an ephemeral room becoming
	// empty and its deletion; a reconnect within the window cancels it.
	GracePeriodSeconds int `mapstructure:"grace_period_seconds"`
	// IdleSweepSpec is a cron spec for the backstop sweep of idle
	// ephemeral rooms, e.g. "@every 30m".
	IdleSweepSpec        string `mapstructure:"idle_sweep_spec"`
	IdleThresholdMinutes int    `mapstructure:"idle_threshold_minutes"`

	AdminUser string `mapstructure:"admin_user"`
	LogLevel  string `mapstructure:"log_level"`

	Persistence  PersistenceConfig `mapstructure:"persistence"`
	DefaultPrefs types.Prefs       `mapstructure:"default_prefs"`
}

// PersistenceConfig selects the storage backend: "sqlite", "postgres" or
// "buntdb" (DSN is the file path, or ":memory:").
type PersistenceConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`
}

func (c *Config) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodSeconds) * time.Second
}

func (c *Config) IdleThreshold() time.Duration {
	return time.Duration(c.IdleThresholdMinutes) * time.Minute
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.StringP("admin-user", "a", "", "username of the admin user")
	flagSet.String("session-secret", "", "secret used to sign session tokens")
	return flagSet
}

// wordSepNormalizeFunc allows for normalization of the flag names (which use - as a separator)
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.Replace(name, "-", "_", -1))
}

// ReadConfiguration reads and parses the configuration located at
// configPath, which can either point to a single TOML file or to a
// directory, in which case all *.toml files in this directory are
// concatenated. It returns a Config object.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	cfg := Config{}
	flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
	viper.SetDefault("admin_user", defaultAdminUser)
	viper.SetDefault("grace_period_seconds", defaultGracePeriodSeconds)
	viper.SetDefault("idle_sweep_spec", defaultIdleSweepSpec)
	viper.SetDefault("idle_threshold_minutes", defaultIdleThresholdMinutes)
	viper.SetDefault("session_ttl_hours", defaultSessionTTLHours)
	viper.SetDefault("default_prefs.allow_queue_add", true)
	err := viper.BindPFlags(flagSet)
	if err != nil {
		globals.AppLogger.Error("could not bind flags (ignored)", "error", err)
	}
	viper.SetEnvPrefix("KARAOKEHUB")
	viper.AutomaticEnv()
	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, err
		}
		contents := make([]byte, 0)
		files := []string{configPath}
		if fi.IsDir() {
			files, err = filepath.Glob(filepath.Join(configPath, "*.toml"))
			if err != nil {
				return nil, err
			}
		}
		for _, configFile := range files {
			fileContents, err := os.ReadFile(configFile)
			if err != nil {
				return nil, err
			}
			contents = append(contents, fileContents...)
			contents = append(contents, '\n')
		}
		viper.SetConfigType("toml")
		err = viper.ReadConfig(bytes.NewBuffer(contents))
		if err != nil {
			globals.AppLogger.Error("could not read config:", "error", err)
		}
	}
	err = viper.Unmarshal(&cfg)
	if err != nil {
		globals.AppLogger.Error("could not unmarshal config:", "error", err)
	}

	return &cfg, nil
}
