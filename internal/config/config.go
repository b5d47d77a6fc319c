package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		CatalogPath string `yaml:"catalog_path"`
		TTL         string `yaml:"ttl"`
	} `yaml:"quiz"`
	Scores struct {
		Path string `yaml:"path"`
	} `yaml:"scores"`
	LLM struct {
		Provider       string             `yaml:"provider"`
		RequestTimeout string             `yaml:"request_timeout"`
		Defaults       Profile            `yaml:"defaults"`
		Profiles       map[string]Profile `yaml:"profiles"`
	} `yaml:"llm"`
}

// Profile is per-provider sampling configuration. Unset fields fall back to
// the defaults block, then to the baseline (temperature 0.7, top_p 1.0,
// provider-default top_k).
type Profile struct {
	Model       string   `yaml:"model"`
	Temperature *float64 `yaml:"temperature"`
	TopP        *float64 `yaml:"top_p"`
	TopK        *int     `yaml:"top_k"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
