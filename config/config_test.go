package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func validConfig() *Config {
	cfg := &Config{
		Embedding: EmbeddingConfig{
			Providers: []ProviderConfig{{
				Name:       "nomic",
				Type:       "rest",
				BaseURL:    "http://localhost:8000/v1/embeddings",
				Model:      "nomic-embed-text-v1.5",
				Dimensions: 768,
			}},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "0.0.0.0"
  port: 9000
storage:
  path: "./data/db"
convert:
  service_url: "http://docling:5001"
embedding:
  default: granite
  providers:
    - name: granite
      type: rest
      base_url: "http://models:8080/v1/embeddings"
      model: "granite-embedding-125m"
      dimensions: 768
      api_key_env: "GRANITE_API_KEY"
      requests_per_second: 10
    - name: openai
      type: openai
      base_url: "https://api.openai.com/v1"
      model: "text-embedding-3-small"
      dimensions: 1536
      api_key_env: "OPENAI_API_KEY"
index:
  kind: elastic
  url: "http://elastic:9200"
search:
  default_k: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "data", "db"), cfg.Storage.Path)
	assert.Equal(t, "http://docling:5001", cfg.Convert.ServiceURL)
	assert.Equal(t, "granite", cfg.Embedding.Default)
	require.Len(t, cfg.Embedding.Providers, 2)
	assert.Equal(t, "rest", cfg.Embedding.Providers[0].Type)
	assert.Equal(t, 10.0, cfg.Embedding.Providers[0].RequestsPerSecond)
	assert.Equal(t, "elastic", cfg.Index.Kind)
	assert.Equal(t, 5, cfg.Search.DefaultK)

	// Defaults fill what the file leaves out.
	assert.Equal(t, DefaultRequestTimeoutSecs, cfg.Server.RequestTimeoutSecs)
	assert.Equal(t, DefaultMaxChunkSize, cfg.Chunking.MaxChunkSize)
	assert.Equal(t, DefaultSearchMaxK, cfg.Search.MaxK)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a map")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestLoad_InvalidValues(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 99000
embedding:
  providers:
    - name: nomic
      type: rest
      base_url: "http://localhost:8000/v1/embeddings"
      model: "nomic-embed-text-v1.5"
      dimensions: 768
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port out of range")
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, DefaultHost, cfg.Server.Host)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, DefaultStoragePath, cfg.Storage.Path)
	assert.Equal(t, DefaultConvertURL, cfg.Convert.ServiceURL)
	assert.Equal(t, DefaultIndexKind, cfg.Index.Kind)
	assert.Equal(t, DefaultStageTimeoutSecs, cfg.Pipeline.StageTimeoutSecs)
	assert.Equal(t, DefaultMaxContentSizeMB, cfg.Pipeline.MaxContentSizeMB)
	assert.Equal(t, DefaultMaxChunkSize, cfg.Chunking.MaxChunkSize)
	assert.Equal(t, DefaultEmbeddingEntries, cfg.Cache.EmbeddingMaxEntries)
	assert.Equal(t, DefaultSearchK, cfg.Search.DefaultK)
	assert.Equal(t, DefaultSearchMaxK, cfg.Search.MaxK)
	assert.Empty(t, cfg.Convert.AllowedTypes, "media types default to the converter's set")
	assert.Zero(t, cfg.Pipeline.PoolSize, "pool size defaults to the CPU count downstream")
}

func TestApplyDefaults_FirstProviderBecomesDefault(t *testing.T) {
	cfg := &Config{
		Embedding: EmbeddingConfig{
			Providers: []ProviderConfig{
				{Name: "nomic"},
				{Name: "openai"},
			},
		},
	}
	ApplyDefaults(cfg)
	assert.Equal(t, "nomic", cfg.Embedding.Default)
}

func TestApplyDefaults_ElasticURL(t *testing.T) {
	cfg := &Config{Index: IndexConfig{Kind: "elastic"}}
	ApplyDefaults(cfg)
	assert.Equal(t, DefaultElasticURL, cfg.Index.URL)

	cfg = &Config{}
	ApplyDefaults(cfg)
	assert.Empty(t, cfg.Index.URL, "memory backend needs no URL")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "port out of range",
		},
		{
			name:    "no providers",
			mutate:  func(c *Config) { c.Embedding.Providers = nil },
			wantErr: "at least one provider",
		},
		{
			name: "duplicate provider",
			mutate: func(c *Config) {
				c.Embedding.Providers = append(c.Embedding.Providers, c.Embedding.Providers[0])
			},
			wantErr: "duplicate provider",
		},
		{
			name:    "unknown provider type",
			mutate:  func(c *Config) { c.Embedding.Providers[0].Type = "grpc" },
			wantErr: "unknown type",
		},
		{
			name:    "missing model",
			mutate:  func(c *Config) { c.Embedding.Providers[0].Model = "" },
			wantErr: "needs model",
		},
		{
			name:    "zero dimensions",
			mutate:  func(c *Config) { c.Embedding.Providers[0].Dimensions = 0 },
			wantErr: "positive dimensions",
		},
		{
			name:    "default not configured",
			mutate:  func(c *Config) { c.Embedding.Default = "missing" },
			wantErr: "not configured",
		},
		{
			name:    "unknown index kind",
			mutate:  func(c *Config) { c.Index.Kind = "faiss" },
			wantErr: "unknown kind",
		},
		{
			name: "elastic without url",
			mutate: func(c *Config) {
				c.Index.Kind = "elastic"
				c.Index.URL = ""
			},
			wantErr: "url required",
		},
		{
			name:    "zero chunk size",
			mutate:  func(c *Config) { c.Chunking.MaxChunkSize = 0 },
			wantErr: "max_chunk_size",
		},
		{
			name: "max_k below default_k",
			mutate: func(c *Config) {
				c.Search.DefaultK = 20
				c.Search.MaxK = 10
			},
			wantErr: "max_k",
		},
		{
			name:    "storage path cleared",
			mutate:  func(c *Config) { c.Storage.Path = "" },
			wantErr: "path required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_InMemoryNeedsNoPath(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.InMemory = true
	cfg.Storage.Path = ""
	assert.NoError(t, cfg.Validate())
}

func TestProviderConfig_APIKey(t *testing.T) {
	t.Setenv("DOCPIPE_TEST_KEY", "sekret")

	p := ProviderConfig{APIKeyEnv: "DOCPIPE_TEST_KEY"}
	assert.Equal(t, "sekret", p.APIKey())

	p = ProviderConfig{}
	assert.Empty(t, p.APIKey())
}

func TestServerConfig_Addr(t *testing.T) {
	s := ServerConfig{Host: "localhost", Port: 8080}
	assert.Equal(t, "localhost:8080", s.Addr())

	s = ServerConfig{Host: "::1", Port: 9000}
	assert.Equal(t, "[::1]:9000", s.Addr())
}

func TestDurationAccessors(t *testing.T) {
	assert.Equal(t, 30*time.Second, ServerConfig{RequestTimeoutSecs: 30}.RequestTimeout())
	assert.Equal(t, 2*time.Minute, ConvertConfig{TimeoutSecs: 120}.Timeout())
	assert.Equal(t, 5*time.Minute, CacheConfig{SearchTTLSecs: 300}.SearchTTL())
	assert.Equal(t, int64(50<<20), PipelineConfig{MaxContentSizeMB: 50}.MaxContentSize())
}
