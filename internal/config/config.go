// Package config loads the daemon's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vtekvtek/caldav-eventsync/caldav"
)

// Config is the top-level daemon configuration. Calendar credentials are
// deliberately absent: they come from the environment, named by the
// calendar's env prefix, so they never sit in a file.
type Config struct {
	// Listen is the HTTP listen address for the operation API.
	Listen string `yaml:"listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// AddUIDPolicy controls ADD_EVENT requests that carry a uid:
	// "honor" (upsert-by-uid, default) or "reject".
	AddUIDPolicy string `yaml:"add_uid_policy"`

	// DefaultCalendar, if set, is used for requests that omit a config
	// block of their own.
	DefaultCalendar *caldav.CalendarConfig `yaml:"default_calendar,omitempty"`
}

// Default returns the in-memory default configuration.
func Default() *Config {
	return &Config{
		Listen:       "127.0.0.1:8793",
		LogLevel:     "info",
		AddUIDPolicy: string(caldav.AddUIDHonor),
	}
}

// Load reads the configuration at path. An empty path or a missing file
// yields the defaults; a present but invalid file is an error.
func Load(path string) (*Config, error) {
	conf := Default()
	if path == "" {
		return conf, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return conf, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := conf.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return conf, nil
}

func (c *Config) validate() error {
	if c.Listen == "" {
		return errors.New("listen address must not be empty")
	}
	switch c.AddUIDPolicy {
	case string(caldav.AddUIDHonor), string(caldav.AddUIDReject):
	default:
		return fmt.Errorf("unknown add_uid_policy %q", c.AddUIDPolicy)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}
