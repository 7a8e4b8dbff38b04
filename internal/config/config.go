// Package config loads the sourcectl command line configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the CLI configuration.
type Config struct {
	ServerURL string        `yaml:"server_url"`
	Token     string        `yaml:"token"`
	Timeout   time.Duration `yaml:"timeout"`
	// RateLimitRPS throttles outgoing API calls; 0 disables throttling.
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
}

// Load reads configuration from a YAML file and environment variables.
// Environment variables override YAML values. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := &Config{
		ServerURL: "http://localhost:8080",
		Timeout:   30 * time.Second,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if v := os.Getenv("SOURCECTL_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("SOURCECTL_TOKEN"); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv("SOURCECTL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("SOURCECTL_TIMEOUT: %w", err)
		}
		cfg.Timeout = d
	}
	if v := os.Getenv("SOURCECTL_RATE_LIMIT_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("SOURCECTL_RATE_LIMIT_RPS: %w", err)
		}
		cfg.RateLimitRPS = rps
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return errors.New("server_url is required (set SOURCECTL_SERVER_URL or yaml)")
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server_url %q must be an absolute http(s) URL", c.ServerURL)
	}
	if c.Timeout < time.Second {
		return errors.New("timeout must be at least 1s")
	}
	if c.RateLimitRPS < 0 {
		return errors.New("rate_limit_rps must not be negative")
	}
	return nil
}
