// Package config loads runtime settings and model calibration files.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"tworate/internal/model"
	"tworate/internal/storage"
)

const EnvPrefix = "TWORATE"

// Settings are the runtime knobs shared by every command. Values come from
// defaults, an optional settings file, TWORATE_* variables and bound flags,
// in increasing precedence.
type Settings struct {
	StoreKind  string `mapstructure:"store"`
	DBPath     string `mapstructure:"db_path"`
	RunsDir    string `mapstructure:"runs_dir"`
	ExportsDir string `mapstructure:"exports_dir"`
	LogLevel   string `mapstructure:"log_level"`
	LogFormat  string `mapstructure:"log_format"`
}

// NewViper returns a viper instance with defaults and environment binding in
// place. Callers bind flags on it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store", storage.KindMemory)
	v.SetDefault("db_path", "tworate.db")
	v.SetDefault("runs_dir", "runs")
	v.SetDefault("exports_dir", "exports")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
}

// Load reads the optional settings file at path and decodes the merged view.
func Load(v *viper.Viper, path string) (Settings, error) {
	if v == nil {
		v = NewViper()
	}
	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("read settings file %s: %w", path, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) Validate() error {
	switch s.StoreKind {
	case storage.KindMemory:
	case storage.KindSQLite, storage.KindPostgres:
		if strings.TrimSpace(s.DBPath) == "" {
			return model.NewConfigError("db_path", "required for the %s store", s.StoreKind)
		}
	default:
		return model.NewConfigError("store", "unsupported backend %q", s.StoreKind)
	}
	if strings.TrimSpace(s.RunsDir) == "" {
		return model.NewConfigError("runs_dir", "must not be empty")
	}
	if strings.TrimSpace(s.ExportsDir) == "" {
		return model.NewConfigError("exports_dir", "must not be empty")
	}
	return nil
}
