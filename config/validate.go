package config

import "fmt"

var providerTypes = map[string]struct{}{
	"openai": {},
	"rest":   {},
}

var indexKinds = map[string]struct{}{
	"memory":  {},
	"elastic": {},
}

// Validate checks the configuration for values no component can run
// with. Call after ApplyDefaults.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server: port out of range: %d", c.Server.Port)
	}
	if c.Server.RequestTimeoutSecs <= 0 {
		return fmt.Errorf("server: request_timeout_secs must be positive, got %d", c.Server.RequestTimeoutSecs)
	}
	if !c.Storage.InMemory && c.Storage.Path == "" {
		return fmt.Errorf("storage: path required unless in_memory is set")
	}
	if c.Convert.ServiceURL == "" {
		return fmt.Errorf("convert: service_url required")
	}
	if c.Convert.TimeoutSecs <= 0 {
		return fmt.Errorf("convert: timeout_secs must be positive, got %d", c.Convert.TimeoutSecs)
	}
	if err := c.validateEmbedding(); err != nil {
		return err
	}
	if _, ok := indexKinds[c.Index.Kind]; !ok {
		return fmt.Errorf("index: unknown kind %q", c.Index.Kind)
	}
	if c.Index.Kind == "elastic" && c.Index.URL == "" {
		return fmt.Errorf("index: url required for the elastic backend")
	}
	if c.Pipeline.PoolSize < 0 {
		return fmt.Errorf("pipeline: pool_size cannot be negative, got %d", c.Pipeline.PoolSize)
	}
	if c.Pipeline.StageTimeoutSecs <= 0 {
		return fmt.Errorf("pipeline: stage_timeout_secs must be positive, got %d", c.Pipeline.StageTimeoutSecs)
	}
	if c.Pipeline.MaxContentSizeMB <= 0 {
		return fmt.Errorf("pipeline: max_content_size_mb must be positive, got %d", c.Pipeline.MaxContentSizeMB)
	}
	if c.Chunking.MaxChunkSize <= 0 {
		return fmt.Errorf("chunking: max_chunk_size must be positive, got %d", c.Chunking.MaxChunkSize)
	}
	if c.Cache.EmbeddingMaxEntries <= 0 {
		return fmt.Errorf("cache: embedding_max_entries must be positive, got %d", c.Cache.EmbeddingMaxEntries)
	}
	if c.Cache.EmbeddingTTLSecs <= 0 {
		return fmt.Errorf("cache: embedding_ttl_secs must be positive, got %d", c.Cache.EmbeddingTTLSecs)
	}
	if c.Cache.SearchMaxEntries <= 0 {
		return fmt.Errorf("cache: search_max_entries must be positive, got %d", c.Cache.SearchMaxEntries)
	}
	if c.Cache.SearchTTLSecs <= 0 {
		return fmt.Errorf("cache: search_ttl_secs must be positive, got %d", c.Cache.SearchTTLSecs)
	}
	if c.Search.DefaultK < 1 {
		return fmt.Errorf("search: default_k must be at least 1, got %d", c.Search.DefaultK)
	}
	if c.Search.MaxK < c.Search.DefaultK {
		return fmt.Errorf("search: max_k %d below default_k %d", c.Search.MaxK, c.Search.DefaultK)
	}
	return nil
}

func (c *Config) validateEmbedding() error {
	if len(c.Embedding.Providers) == 0 {
		return fmt.Errorf("embedding: at least one provider required")
	}

	seen := make(map[string]struct{}, len(c.Embedding.Providers))
	for _, p := range c.Embedding.Providers {
		if p.Name == "" {
			return fmt.Errorf("embedding: provider name required")
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("embedding: duplicate provider %q", p.Name)
		}
		seen[p.Name] = struct{}{}

		if _, ok := providerTypes[p.Type]; !ok {
			return fmt.Errorf("embedding: provider %q has unknown type %q", p.Name, p.Type)
		}
		if p.BaseURL == "" {
			return fmt.Errorf("embedding: provider %q needs base_url", p.Name)
		}
		if p.Model == "" {
			return fmt.Errorf("embedding: provider %q needs model", p.Name)
		}
		if p.Dimensions <= 0 {
			return fmt.Errorf("embedding: provider %q needs positive dimensions, got %d", p.Name, p.Dimensions)
		}
		if p.RequestsPerSecond < 0 {
			return fmt.Errorf("embedding: provider %q has negative requests_per_second", p.Name)
		}
	}

	if _, ok := seen[c.Embedding.Default]; !ok {
		return fmt.Errorf("embedding: default provider %q not configured", c.Embedding.Default)
	}
	return nil
}
