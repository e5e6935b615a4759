package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

type LLMConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
}

type WebhookConfig struct {
	Secret             string   `toml:"secret"`
	DedupWindowMinutes int      `toml:"dedup_window_minutes"`
	Collaborators      []string `toml:"collaborators"`
}

type CheckerConfig struct {
	Prompt         string `toml:"prompt"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Retries        int    `toml:"retries"`
}

type ContentConfig struct {
	// Dir is the root the build pipeline renders into, one subdirectory of
	// per-path text files per revision.
	Dir string `toml:"dir"`
}

type CacheConfig struct {
	File string `toml:"file"`
}

type ConcurrencyConfig struct {
	MaxRuns int `toml:"max_runs"`
}

type Config struct {
	LLM         LLMConfig         `toml:"llm"`
	Webhook     WebhookConfig     `toml:"webhook"`
	Checker     CheckerConfig     `toml:"checker"`
	Content     ContentConfig     `toml:"content"`
	Cache       CacheConfig       `toml:"cache"`
	Concurrency ConcurrencyConfig `toml:"concurrency"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	return &cfg, nil
}
