// Package config handles configuration loading and validation for the telemetry client.
// It supports YAML configuration files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the telemetry client and collector
type Config struct {
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Verifier  VerifierConfig  `yaml:"verifier"`
	Browser   BrowserConfig   `yaml:"browser"`
	Storage   StorageConfig   `yaml:"storage"`
	Collector CollectorConfig `yaml:"collector"`

	LogLevel string `yaml:"log_level"`
}

// TelemetryConfig holds remote protocol settings
type TelemetryConfig struct {
	BaseURL               string `yaml:"base_url"`
	FingerprintVersion    int    `yaml:"fingerprint_version"`
	ClientVersion         string `yaml:"client_version"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
	ReadRetries           int    `yaml:"read_retries"`
}

// RequestTimeout returns the per-request HTTP timeout
func (t TelemetryConfig) RequestTimeout() time.Duration {
	return time.Duration(t.RequestTimeoutSeconds) * time.Second
}

// VerifierConfig holds the consistency check policy
type VerifierConfig struct {
	Attempts int `yaml:"attempts"`
	DelayMs  int `yaml:"delay_ms"`
}

// Delay returns the pause between consecutive samples
func (v VerifierConfig) Delay() time.Duration {
	return time.Duration(v.DelayMs) * time.Millisecond
}

// BrowserConfig holds settings for the page that hosts the probes
type BrowserConfig struct {
	Headless       bool   `yaml:"headless"`
	UserDataDir    string `yaml:"user_data_dir"`
	ViewportWidth  int    `yaml:"viewport_width"`
	ViewportHeight int    `yaml:"viewport_height"`
	Stealth        bool   `yaml:"stealth"`
	PageURL        string `yaml:"page_url"`
}

// StorageConfig holds client-side persistence settings
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// CollectorConfig holds settings for the reference collection service
type CollectorConfig struct {
	ListenAddr    string `yaml:"listen_addr"`
	DatabasePath  string `yaml:"database_path"`
	WritesPerHour int    `yaml:"writes_per_hour"`
}

// Default returns the compiled-in configuration
func Default() *Config {
	return &Config{
		Telemetry: TelemetryConfig{
			BaseURL:               "http://127.0.0.1:8787",
			FingerprintVersion:    1,
			ClientVersion:         "0.1.0",
			RequestTimeoutSeconds: 10,
			ReadRetries:           3,
		},
		Verifier: VerifierConfig{
			Attempts: 3,
			DelayMs:  20,
		},
		Browser: BrowserConfig{
			Headless:       true,
			UserDataDir:    "./data/browser",
			ViewportWidth:  1920,
			ViewportHeight: 1080,
			PageURL:        "about:blank",
		},
		Storage: StorageConfig{
			DatabasePath: "./data/client.db",
		},
		Collector: CollectorConfig{
			ListenAddr:    ":8787",
			DatabasePath:  "./data/collector.db",
			WritesPerHour: 600,
		},
		LogLevel: "info",
	}
}

// Load reads configuration from YAML file and environment variables
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// File doesn't exist, use defaults
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	cfg.loadEnvOverrides()

	return cfg, nil
}

// loadEnvOverrides applies environment variable overrides to config
func (c *Config) loadEnvOverrides() {
	if v := os.Getenv("TELEMETRY_BASE_URL"); v != "" {
		c.Telemetry.BaseURL = v
	}

	if v := os.Getenv("TELEMETRY_PAGE_URL"); v != "" {
		c.Browser.PageURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(v)
	}

	if v := os.Getenv("HEADLESS"); v != "" {
		c.Browser.Headless = strings.ToLower(v) == "true"
	}

	if v := os.Getenv("VERIFIER_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Verifier.Attempts = n
		}
	}

	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.Storage.DatabasePath = v
	}

	if v := os.Getenv("COLLECTOR_ADDR"); v != "" {
		c.Collector.ListenAddr = v
	}

	if v := os.Getenv("COLLECTOR_DATABASE_PATH"); v != "" {
		c.Collector.DatabasePath = v
	}
}
