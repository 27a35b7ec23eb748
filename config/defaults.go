package config

// Default values applied to unset fields.
const (
	DefaultHost               = "localhost"
	DefaultPort               = 8080
	DefaultRequestTimeoutSecs = 60
	DefaultStoragePath        = "./data/docpipe"
	DefaultConvertURL         = "http://localhost:5001"
	DefaultConvertTimeoutSecs = 120
	DefaultIndexKind          = "memory"
	DefaultElasticURL         = "http://localhost:9200"
	DefaultStageTimeoutSecs   = 120
	DefaultMaxContentSizeMB   = 50
	DefaultMaxChunkSize       = 1000
	DefaultEmbeddingEntries   = 100000
	DefaultEmbeddingTTLSecs   = 86400
	DefaultSearchEntries      = 10000
	DefaultSearchTTLSecs      = 300
	DefaultSearchK            = 10
	DefaultSearchMaxK         = 50
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.RequestTimeoutSecs == 0 {
		cfg.Server.RequestTimeoutSecs = DefaultRequestTimeoutSecs
	}
	if cfg.Storage.Path == "" && !cfg.Storage.InMemory {
		cfg.Storage.Path = DefaultStoragePath
	}
	if cfg.Convert.ServiceURL == "" {
		cfg.Convert.ServiceURL = DefaultConvertURL
	}
	if cfg.Convert.TimeoutSecs == 0 {
		cfg.Convert.TimeoutSecs = DefaultConvertTimeoutSecs
	}
	if cfg.Index.Kind == "" {
		cfg.Index.Kind = DefaultIndexKind
	}
	if cfg.Index.Kind == "elastic" && cfg.Index.URL == "" {
		cfg.Index.URL = DefaultElasticURL
	}
	if cfg.Pipeline.StageTimeoutSecs == 0 {
		cfg.Pipeline.StageTimeoutSecs = DefaultStageTimeoutSecs
	}
	if cfg.Pipeline.MaxContentSizeMB == 0 {
		cfg.Pipeline.MaxContentSizeMB = DefaultMaxContentSizeMB
	}
	if cfg.Chunking.MaxChunkSize == 0 {
		cfg.Chunking.MaxChunkSize = DefaultMaxChunkSize
	}
	if cfg.Cache.EmbeddingMaxEntries == 0 {
		cfg.Cache.EmbeddingMaxEntries = DefaultEmbeddingEntries
	}
	if cfg.Cache.EmbeddingTTLSecs == 0 {
		cfg.Cache.EmbeddingTTLSecs = DefaultEmbeddingTTLSecs
	}
	if cfg.Cache.SearchMaxEntries == 0 {
		cfg.Cache.SearchMaxEntries = DefaultSearchEntries
	}
	if cfg.Cache.SearchTTLSecs == 0 {
		cfg.Cache.SearchTTLSecs = DefaultSearchTTLSecs
	}
	if cfg.Search.DefaultK == 0 {
		cfg.Search.DefaultK = DefaultSearchK
	}
	if cfg.Search.MaxK == 0 {
		cfg.Search.MaxK = DefaultSearchMaxK
	}
	if cfg.Embedding.Default == "" && len(cfg.Embedding.Providers) > 0 {
		cfg.Embedding.Default = cfg.Embedding.Providers[0].Name
	}
}
