package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings configure gagyebuctl. They come from ~/.gagyebuctl.toml (or --config),
// overridden by GAGYEBU_* environment variables and then by flags.
type Settings struct {
	APIURL   string        `mapstructure:"api_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Timezone string        `mapstructure:"timezone"`
	// User is the default user_name for add.
	User     string `mapstructure:"user"`
	LogLevel string `mapstructure:"log_level"`
}

// Location resolves Timezone, falling back to UTC.
func (s Settings) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("api_url", "http://localhost:8000")
	v.SetDefault("timeout", "10s")
	v.SetDefault("timezone", "Asia/Seoul")
	v.SetDefault("user", "")
	v.SetDefault("log_level", "warn")

	v.SetEnvPrefix("GAGYEBU")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// LoadSettings reads path, or ~/.gagyebuctl.toml when path is empty. Only an
// explicit path has to exist.
func LoadSettings(v *viper.Viper, path string) (Settings, error) {
	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(".gagyebuctl")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Settings{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if s.Timeout <= 0 {
		return Settings{}, fmt.Errorf("invalid timeout %s: must be positive", s.Timeout)
	}
	return s, nil
}
