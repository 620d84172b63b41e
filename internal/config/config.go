package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultBaseURL is the Rally Web Services API root.
const DefaultBaseURL = "https://rally1.rallydev.com/slm/webservice/v2.0"

// Config holds persistent configuration loaded from ~/.rally/config.yaml.
type Config struct {
	APIAddr  string `yaml:"api_addr"`
	Socket   string `yaml:"socket"`
	BaseURL  string `yaml:"base_url"`
	LogLevel string `yaml:"log_level"`
}

// Home returns the rally home directory (~/.rally).
func Home() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".rally"), nil
}

// DefaultPath returns the default config file path: ~/.rally/config.yaml.
func DefaultPath() string {
	dir, err := Home()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// Load reads a YAML config file from path. If the file does not exist,
// it returns an empty Config and no error. An empty or all-comment file
// also returns an empty Config with no error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Level parses LogLevel, defaulting to info.
func (c *Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return lvl, nil
}

// ResolveURL returns target unchanged if it is absolute, otherwise joins it
// onto BaseURL (or DefaultBaseURL).
func (c *Config) ResolveURL(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	if u.IsAbs() {
		return target, nil
	}

	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(target, "/"), nil
}
