// Package config loads the engine's YAML configuration, filling in the
// defaults the original engine shipped with when a key is left unset.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Thresholds ThresholdConfig `yaml:"thresholds"`
	Bandit    BanditConfig    `yaml:"bandit"`
	Features  FeaturesConfig  `yaml:"features"`
	Intel     IntelConfig     `yaml:"intel"`
	Logging   LoggingConfig   `yaml:"logging"`
	Storage   StorageConfig   `yaml:"storage"`
}

// ServerConfig controls the HTTP bind address and auth.
type ServerConfig struct {
	Bind          string `yaml:"bind"`
	AuthToken     string `yaml:"auth_token"`
	AllowedOrigins string `yaml:"allowed_origins"`
}

// ThresholdConfig carries the block/allow decision boundaries.
type ThresholdConfig struct {
	Allow float64 `yaml:"allow"`
	Block float64 `yaml:"block"`
}

// BanditConfig carries the LinUCB hyperparameters.
type BanditConfig struct {
	Alpha      float64  `yaml:"alpha"`
	Dimensions int      `yaml:"dimensions"`
	Arms       []string `yaml:"arms"`
}

// FeaturesConfig carries feature-extraction tunables.
type FeaturesConfig struct {
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	CacheCapacity int           `yaml:"cache_capacity"`
	BrandList     []string      `yaml:"brand_list"`
	SuspiciousTLDs []string     `yaml:"suspicious_tlds"`
}

// IntelConfig carries hard-intel source file locations and refresh cadence.
type IntelConfig struct {
	RefreshInterval time.Duration       `yaml:"refresh_interval"`
	Sources         []IntelSourceConfig `yaml:"sources"`
	DynamicDNSFile  string              `yaml:"dynamic_dns_file"`
}

// IntelSourceConfig is one hard-intel feed.
type IntelSourceConfig struct {
	Name       string  `yaml:"name"`
	Category   string  `yaml:"category"`
	Confidence float64 `yaml:"confidence"`
	FilePath   string  `yaml:"file_path"`
	URL        string  `yaml:"url,omitempty"`
}

// LoggingConfig controls the zerolog setup.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StorageConfig carries connection strings for the decision-log sink,
// bandit-state persistence, and task queue.
type StorageConfig struct {
	PostgresDSN    string `yaml:"postgres_dsn"`
	RedisAddr      string `yaml:"redis_addr"`
	StudentModelPath string `yaml:"student_model_path"`
}

// Default returns the engine's built-in defaults. Every value here mirrors
// the defaults the reference implementation shipped with.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Bind: ":8080",
		},
		Thresholds: ThresholdConfig{
			Allow: 0.3,
			Block: 0.8,
		},
		Bandit: BanditConfig{
			Alpha:      1.0,
			Dimensions: 16,
			Arms:       []string{"ALLOW", "WARN", "BLOCK"},
		},
		Features: FeaturesConfig{
			CacheTTL:      300 * time.Second,
			CacheCapacity: 50000,
			SuspiciousTLDs: []string{
				"tk", "ml", "ga", "cf", "gq", "xyz", "top", "work", "click",
			},
			BrandList: []string{
				"paypal", "google", "microsoft", "apple", "amazon",
				"facebook", "netflix", "chase", "wellsfargo", "bankofamerica",
			},
		},
		Intel: IntelConfig{
			RefreshInterval: time.Hour,
			Sources: []IntelSourceConfig{
				{Name: "abuse.ch", Category: "malware", Confidence: 0.95},
				{Name: "spamhaus_drop", Category: "spam", Confidence: 0.92},
				{Name: "coinblocker", Category: "cryptojacking", Confidence: 0.85},
				{Name: "phishtank", Category: "phishing", Confidence: 0.90},
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Storage: StorageConfig{
			RedisAddr: "localhost:6379",
		},
	}
}

// Load reads a YAML document from path and overlays it onto Default().
// A missing file is not an error — the caller runs on defaults alone.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
