package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/viper"

	"github.com/roman-kulish/spacelabel/internal/epoch"
)

const envPrefix = "SPACELABEL"

// Settings are the options shared by every command. Values come from
// flags, SPACELABEL_* environment variables and an optional
// .spacelabel.yaml, in that order of precedence.
type Settings struct {
	ConfigDir  string `mapstructure:"config_dir"`
	Spacecraft string `mapstructure:"spacecraft"`
	Year       int    `mapstructure:"year"`
	NoCache    bool   `mapstructure:"no_cache"`
	LogLevel   string `mapstructure:"log_level"`
}

// Config is the configuration of a labelling session.
type Config struct {
	Settings `mapstructure:",squash"`

	Path       string           `mapstructure:"-"`
	Start, End epoch.JulianDate `mapstructure:"-"`

	// Nil leaves the instrument default in place.
	FrequencyResolution *int     `mapstructure:"-"`
	TimeMinimum         *float64 `mapstructure:"-"`

	Measurements []string `mapstructure:"measurement"`
	Windows      int      `mapstructure:"windows"`
	Save         bool     `mapstructure:"save"`
}

// initSettings points v at the settings file and the environment and
// applies the log level.
func initSettings(v *viper.Viper, level *slog.LevelVar) error {
	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(".spacelabel")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("reading settings: %w", err)
		}
	}

	if err := level.UnmarshalText([]byte(v.GetString("log_level"))); err != nil {
		return fmt.Errorf("invalid log level %q: %w", v.GetString("log_level"), err)
	}
	return nil
}

func loadSettings(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decoding settings: %w", err)
	}
	return &s, nil
}

// LoadConfig builds the session configuration from v and the positional
// FILE START END arguments.
func LoadConfig(v *viper.Viper, args []string) (*Config, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("expected FILE START END, got %d arguments", len(args))
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decoding settings: %w", err)
	}
	c.Path = args[0]

	var err error
	if c.Start, err = parseDate(args[1]); err != nil {
		return nil, err
	}
	if c.End, err = parseDate(args[2]); err != nil {
		return nil, err
	}

	if v.IsSet("frequency_resolution") {
		r := v.GetInt("frequency_resolution")
		c.FrequencyResolution = &r
	}
	if v.IsSet("time_minimum") {
		m := v.GetFloat64("time_minimum")
		c.TimeMinimum = &m
	}

	if c.Windows < 1 {
		return nil, fmt.Errorf("windows must be at least 1, got %d", c.Windows)
	}
	return &c, nil
}

func parseDate(s string) (epoch.JulianDate, error) {
	t, err := epoch.Parse(s)
	if err != nil {
		return 0, fmt.Errorf("date %q is not in ISO format; use YYYY-MM-DD, e.g. 2005-01-01, or YYYYDDD: %w", s, err)
	}
	return t, nil
}
