// Copyright 2025 Quillworks Labs
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

// Package config provides YAML configuration loading for the service.
// Secrets are never stored in the file; fields ending in _env name the
// environment variable holding the value.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Convert   ConvertConfig   `yaml:"convert"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Cache     CacheConfig     `yaml:"cache"`
	Search    SearchConfig    `yaml:"search"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	RequestTimeoutSecs int    `yaml:"request_timeout_secs"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// RequestTimeout returns the per-request timeout.
func (s ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSecs) * time.Second
}

// StorageConfig holds the document store location.
type StorageConfig struct {
	// Path is the badger database directory. Ignored when InMemory is set.
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// ConvertConfig holds conversion service settings.
type ConvertConfig struct {
	ServiceURL  string `yaml:"service_url"`
	TimeoutSecs int    `yaml:"timeout_secs"`

	// AllowedTypes restricts accepted upload media types. Empty means the
	// converter's built-in set.
	AllowedTypes []string `yaml:"allowed_types"`
}

// Timeout returns the per-conversion timeout.
func (c ConvertConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// EmbeddingConfig holds the provider registry settings.
type EmbeddingConfig struct {
	// Default names the provider used when a request does not pick one.
	// Empty means the first configured provider.
	Default   string           `yaml:"default"`
	Providers []ProviderConfig `yaml:"providers"`
}

// ProviderConfig configures one embedding provider.
type ProviderConfig struct {
	Name string `yaml:"name"`

	// Type selects the adapter: "openai" or "rest".
	Type string `yaml:"type"`

	// BaseURL is the API root for openai providers, or the full
	// embeddings endpoint for rest providers.
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`

	// APIKeyEnv names the environment variable holding the key.
	APIKeyEnv string `yaml:"api_key_env"`

	// RequestsPerSecond throttles rest providers. Zero disables throttling.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
}

// APIKey resolves the provider key from the environment.
func (p ProviderConfig) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// Timeout returns the per-call timeout.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSecs) * time.Second
}

// IndexConfig holds vector index settings.
type IndexConfig struct {
	// Kind selects the backend: "memory" or "elastic".
	Kind string `yaml:"kind"`

	// URL is the Elasticsearch cluster root. Only used when Kind is
	// "elastic".
	URL         string `yaml:"url"`
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
	IndexName   string `yaml:"index_name"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// Password resolves the cluster password from the environment.
func (i IndexConfig) Password() string {
	if i.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(i.PasswordEnv)
}

// Timeout returns the per-call timeout.
func (i IndexConfig) Timeout() time.Duration {
	return time.Duration(i.TimeoutSecs) * time.Second
}

// PipelineConfig holds processing settings.
type PipelineConfig struct {
	// PoolSize is the worker pool size. Zero sizes the pool from the
	// CPU count.
	PoolSize         int `yaml:"pool_size"`
	StageTimeoutSecs int `yaml:"stage_timeout_secs"`
	MaxContentSizeMB int `yaml:"max_content_size_mb"`
}

// StageTimeout returns the per-stage timeout.
func (p PipelineConfig) StageTimeout() time.Duration {
	return time.Duration(p.StageTimeoutSecs) * time.Second
}

// MaxContentSize returns the upload cap in bytes.
func (p PipelineConfig) MaxContentSize() int64 {
	return int64(p.MaxContentSizeMB) << 20
}

// ChunkingConfig holds chunking settings.
type ChunkingConfig struct {
	// MaxChunkSize bounds chunk text length in runes.
	MaxChunkSize int `yaml:"max_chunk_size"`
}

// CacheConfig holds cache sizing and expiry.
type CacheConfig struct {
	EmbeddingMaxEntries int `yaml:"embedding_max_entries"`
	EmbeddingTTLSecs    int `yaml:"embedding_ttl_secs"`
	SearchMaxEntries    int `yaml:"search_max_entries"`
	SearchTTLSecs       int `yaml:"search_ttl_secs"`
}

// EmbeddingTTL returns the embedding cache entry lifetime.
func (c CacheConfig) EmbeddingTTL() time.Duration {
	return time.Duration(c.EmbeddingTTLSecs) * time.Second
}

// SearchTTL returns the search result cache entry lifetime.
func (c CacheConfig) SearchTTL() time.Duration {
	return time.Duration(c.SearchTTLSecs) * time.Second
}

// SearchConfig holds search bounds.
type SearchConfig struct {
	DefaultK int `yaml:"default_k"`
	MaxK     int `yaml:"max_k"`
}

// Load reads and parses the config file at path, applies defaults,
// expands the storage path, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	cfg.Storage.Path = expandPath(cfg.Storage.Path, filepath.Dir(path))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// expandPath converts a relative path to absolute. Paths starting with
// "./" are relative to configDir; everything else is left as given.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	return path
}
