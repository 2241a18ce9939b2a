// Package config loads tickle's runtime configuration from flags, an
// optional per-invocation config file, and an optional XDG-located global
// defaults file, in that order of precedence. Environment variables are
// not read.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"dario.cat/mergo"
	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// Config holds every tunable of a tickle invocation. Paths are stored
// exactly as resolved on the command line (relative to the process's
// working directory); callers resolve them against a target directory
// before use.
type Config struct {
	Mode           string `mapstructure:"mode"`
	Workers        int    `mapstructure:"workers"`
	AgendaPath     string `mapstructure:"agenda"`
	DependPath     string `mapstructure:"depend"`
	CachePath      string `mapstructure:"cache"`
	LogPath        string `mapstructure:"log"`
	LogFormat      string `mapstructure:"log-format"`
	Debug          bool   `mapstructure:"debug"`
	ReconcileCron  string `mapstructure:"reconcile-cron"`
	ConfigFilePath string `mapstructure:"config"`
}

// DefaultWorkerCount returns logical_cores - 1, floored at 1.
func DefaultWorkerCount() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		return 1
	}
	return n
}

// Defaults returns the compiled-in default configuration.
func Defaults() *Config {
	return &Config{
		Mode:       "offline",
		Workers:    DefaultWorkerCount(),
		AgendaPath: "./agenda.yaml",
		DependPath: "./depend.yaml",
		CachePath:  "./tickle.cache",
		LogPath:    "./tickle.log",
		LogFormat:  "text",
	}
}

// GlobalConfigPath returns the path of the optional XDG-located global
// defaults file, e.g. $XDG_CONFIG_HOME/tickle/config.yaml.
func GlobalConfigPath() string {
	path, err := xdg.ConfigFile(filepath.Join("tickle", "config.yaml"))
	if err != nil {
		return ""
	}
	return path
}

// Load builds a Config by merging, from lowest to highest precedence:
// compiled-in defaults, the global XDG config file (if present), the
// v viper instance (which itself layers an explicit config file and bound
// flags).
func Load(v *viper.Viper) (*Config, error) {
	cfg := Defaults()

	if globalPath := GlobalConfigPath(); globalPath != "" {
		if _, err := os.Stat(globalPath); err == nil {
			global := viper.New()
			global.SetConfigFile(globalPath)
			if err := global.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("reading global config %s: %w", globalPath, err)
			}
			var fileCfg Config
			if err := global.Unmarshal(&fileCfg); err != nil {
				return nil, fmt.Errorf("decoding global config %s: %w", globalPath, err)
			}
			if err := mergo.Merge(cfg, fileCfg, mergo.WithOverride); err != nil {
				return nil, fmt.Errorf("merging global config: %w", err)
			}
		}
	}

	var flagCfg Config
	if err := v.Unmarshal(&flagCfg); err != nil {
		return nil, fmt.Errorf("decoding flags: %w", err)
	}
	if err := mergo.Merge(cfg, flagCfg, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merging flags: %w", err)
	}

	return cfg, nil
}
