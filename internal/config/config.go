// Package config loads chainsaw's ambient configuration: environment
// variables (with optional .env overrides) plus an optional project-level
// chainsaw.yaml describing source roots and resolution conventions.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the environment-derived settings shared by every subcommand.
type Config struct {
	DatabaseURL string // optional; only required by `push`/`pull`
	ServerPort  string
	MCPPort     string
	Workers     int
}

// Load reads environment variables, applying .env as a fallback source —
// real environment variables always take precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	return &Config{
		DatabaseURL: os.Getenv("CHAINSAW_DATABASE_URL"),
		ServerPort:  getEnvDefault("CHAINSAW_SERVER_PORT", "8080"),
		MCPPort:     getEnvDefault("CHAINSAW_MCP_PORT", "8090"),
		Workers:     getEnvInt("CHAINSAW_WORKERS", 0),
	}, nil
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// ProjectConfig is the optional chainsaw.yaml at a project root.
// SourceRoots and Platform are folded into the cache's resolver
// fingerprint, so a graph built under one value of them is not served back
// under another; Ignore is not folded in. The walker and resolver read none
// of these fields.
type ProjectConfig struct {
	SourceRoots []string `yaml:"sourceRoots"`
	Ignore      []string `yaml:"ignore"`
	Platform    string   `yaml:"platform"` // "node", "deno", "bun"; the built-in module set does not depend on it
}

// LoadProjectConfig reads <root>/chainsaw.yaml, if present. A missing file
// is not an error: it returns the zero ProjectConfig.
func LoadProjectConfig(root string) (ProjectConfig, error) {
	data, err := os.ReadFile(filepath.Join(root, "chainsaw.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return ProjectConfig{}, nil
		}
		return ProjectConfig{}, fmt.Errorf("reading chainsaw.yaml: %w", err)
	}
	var pc ProjectConfig
	if err := yaml.Unmarshal(data, &pc); err != nil {
		return ProjectConfig{}, fmt.Errorf("parsing chainsaw.yaml: %w", err)
	}
	return pc, nil
}

// Fingerprint returns the flag/config map that feeds cache.Fingerprint;
// a change to any value here invalidates tier-2 cache reuse.
func (pc ProjectConfig) Fingerprint() map[string]string {
	return map[string]string{
		"platform": pc.Platform,
	}
}
