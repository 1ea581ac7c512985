package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
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
	Questionnaire struct {
		ID  string `yaml:"id"`
		TTL string `yaml:"ttl"`
	} `yaml:"questionnaire"`
	AI  AIConfig `yaml:"ai"`
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
}

// AIConfig configures the remote text-generation service.
type AIConfig struct {
	BaseURL           string `yaml:"base_url"`
	APIKey            string `yaml:"api_key"`
	Model             string `yaml:"model"`
	Timeout           string `yaml:"timeout"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

const (
	DefaultAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"
	DefaultAIModel   = "gemini-2.5-flash"
)

// Load reads YAML config from path and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// LoadOrDefault behaves like Load but treats a missing file as an empty config.
func LoadOrDefault(path string) (Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Config{}
		cfg.applyEnv()
		cfg.applyDefaults()
		return cfg, nil
	}
	return cfg, err
}

func (c *Config) applyEnv() {
	if key := os.Getenv("API_KEY"); key != "" {
		c.AI.APIKey = key
	} else if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.AI.APIKey = key
	}
	if model := os.Getenv("GEMINI_MODEL"); model != "" {
		c.AI.Model = model
	}
}

func (c *Config) applyDefaults() {
	if c.AI.BaseURL == "" {
		c.AI.BaseURL = DefaultAIBaseURL
	}
	if c.AI.Model == "" {
		c.AI.Model = DefaultAIModel
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
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
