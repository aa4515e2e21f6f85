package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr          string        `yaml:"addr"`
	JWTSecret     string        `yaml:"jwt_secret"`
	APITimeout    time.Duration `yaml:"timeout"`
	DatabasePath  string        `yaml:"database_path"`
	StoreTimeout  time.Duration `yaml:"store_timeout"`
	TokenDuration time.Duration `yaml:"token_duration"`
	WorkerCount   int           `yaml:"worker_count"`
	Notify        NotifyConfig  `yaml:"notify"`
}

type NotifyConfig struct {
	WebhookURL  string        `yaml:"webhook_url"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
}

func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Addr:          getEnv("MARKET_ADDR", ":8080"),
		JWTSecret:     getEnv("MARKET_JWT_SECRET", "supersecretkey"),
		APITimeout:    15 * time.Second,
		DatabasePath:  getEnv("MARKET_DATABASE_PATH", "marketplace.db"),
		StoreTimeout:  5 * time.Second,
		TokenDuration: 24 * time.Hour,
		WorkerCount:   4,
		Notify: NotifyConfig{
			WebhookURL:  getEnv("MARKET_NOTIFY_WEBHOOK", ""),
			Timeout:     5 * time.Second,
			MaxAttempts: 3,
		},
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}
