// Copyright (c) 2026 The Wrapped Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// GmailConfig holds the mailbox sweep settings.
type GmailConfig struct {
	// AccessToken authenticates against the Gmail REST API. Empty
	// disables the background poller; the HTTP ingest surface still works.
	AccessToken string
	Query       string
	PageSize    int
	PageDelay   time.Duration
}

// Config holds all configuration for the ingestion service.
type Config struct {
	Gmail GmailConfig

	// Poller
	PollInterval time.Duration

	// Redis
	RedisURL    string
	RenderQueue string

	// Postgres
	DatabaseURL string

	// API server
	Port int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Gmail struct {
		AccessToken string `yaml:"access_token"`
		Query       string `yaml:"query"`
		PageSize    int    `yaml:"page_size"`
		PageDelay   string `yaml:"page_delay"`
	} `yaml:"gmail"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Render string `yaml:"render"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings. A missing config file is
// not an error; everything has an env fallback.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "config.yaml")

	var raw rawConfig
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	case os.IsNotExist(err):
		// env-only configuration
	default:
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	cfg := &Config{
		Gmail: GmailConfig{
			AccessToken: firstNonEmpty(raw.Gmail.AccessToken, os.Getenv("GMAIL_ACCESS_TOKEN")),
			Query:       firstNonEmpty(raw.Gmail.Query, os.Getenv("GMAIL_QUERY")),
			PageSize:    raw.Gmail.PageSize,
			PageDelay:   parseDurationOr(raw.Gmail.PageDelay, 500*time.Millisecond),
		},
		PollInterval: envOrDefaultDuration("POLL_INTERVAL", time.Hour),
		RedisURL:     firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		RenderQueue:  firstNonEmpty(raw.Redis.Queues.Render, envOrDefault("RENDER_QUEUE", "wrapped_render")),
		DatabaseURL:  firstNonEmpty(raw.Database.URL, os.Getenv("DATABASE_URL")),
		Port:         envOrDefaultInt("PORT", 8080),
	}

	if cfg.Gmail.PageSize == 0 {
		cfg.Gmail.PageSize = envOrDefaultInt("GMAIL_PAGE_SIZE", 500)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
