// Package config provides configuration loading for careerd.
//
// Configuration is layered: hardcoded defaults, an optional YAML file, then
// CAREERD_* environment variables. A handful of unprefixed variables used
// by earlier deployments (OPENAI_API_KEY, CHROMA_DIR, ...) are honored too.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Provider names accepted by the embeddings, generation and vector store sections.
const (
	ProviderOpenAI    = "openai"
	ProviderTEI       = "tei"
	ProviderGemini    = "gemini"
	ProviderLocal     = "local"
	ProviderAnthropic = "anthropic"
	ProviderNone      = "none"

	StoreChromem  = "chromem"
	StoreQdrant   = "qdrant"
	StorePostgres = "postgres"
)

// DefaultCollection is the collection that holds every user's documents.
const DefaultCollection = "user_profiles"

var collectionPattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// Config holds the complete careerd configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	Generation  GenerationConfig  `koanf:"generation"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Retrieval   RetrievalConfig   `koanf:"retrieval"`
	PDF         PDFConfig         `koanf:"pdf"`
	Log         LogConfig         `koanf:"log"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ReadTimeout     Duration `koanf:"read_timeout"`
	WriteTimeout    Duration `koanf:"write_timeout"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string `koanf:"cors_origins"`
	MaxUploadMB     int      `koanf:"max_upload_mb"`
}

// EmbeddingsConfig selects and configures the embedding backend.
type EmbeddingsConfig struct {
	Provider  string `koanf:"provider"`
	Model     string `koanf:"model"`
	BaseURL   string `koanf:"base_url"`
	APIKey    Secret `koanf:"api_key"`
	Dimension int    `koanf:"dimension"`
}

// GenerationConfig selects and configures the language model backend.
type GenerationConfig struct {
	Provider          string   `koanf:"provider"`
	Model             string   `koanf:"model"`
	BaseURL           string   `koanf:"base_url"`
	APIKey            Secret   `koanf:"api_key"`
	Temperature       float64  `koanf:"temperature"`
	MaxTokens         int      `koanf:"max_tokens"`
	RequestsPerMinute int      `koanf:"requests_per_minute"`
	MaxRetries        int      `koanf:"max_retries"`
	Timeout           Duration `koanf:"timeout"`
}

// VectorStoreConfig selects and configures the persistent index.
type VectorStoreConfig struct {
	Provider        string `koanf:"provider"`
	Collection      string `koanf:"collection"`
	ChromemPath     string `koanf:"chromem_path"`
	ChromemCompress bool   `koanf:"chromem_compress"`
	QdrantHost      string `koanf:"qdrant_host"`
	QdrantPort      int    `koanf:"qdrant_port"`
	QdrantTLS       bool   `koanf:"qdrant_tls"`
	QdrantAPIKey    Secret `koanf:"qdrant_api_key"`
	PostgresDSN     Secret `koanf:"postgres_dsn"`
}

// RetrievalConfig tunes context retrieval.
type RetrievalConfig struct {
	TopK            int `koanf:"top_k"`
	MaxContextChars int `koanf:"max_context_chars"`
}

// PDFConfig configures text extraction from uploaded PDFs.
type PDFConfig struct {
	ToolPath string   `koanf:"pdftotext_path"`
	Timeout  Duration `koanf:"timeout"`
}

// LogConfig is the subset of logging settings exposed to operators.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig controls OTLP export of traces and metrics. Prometheus
// exposition on /metrics is always on.
type TelemetryConfig struct {
	Enabled         bool     `koanf:"enabled"`
	Endpoint        string   `koanf:"endpoint"`
	Protocol        string   `koanf:"protocol"` // grpc or http/protobuf
	Insecure        bool     `koanf:"insecure"`
	TLSSkipVerify   bool     `koanf:"tls_skip_verify"`
	ServiceName     string   `koanf:"service_name"`
	SamplingRate    float64  `koanf:"sampling_rate"`
	ExportInterval  Duration `koanf:"export_interval"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// Default returns a configuration populated with defaults.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = Duration(30 * time.Second)
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = Duration(120 * time.Second)
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 10
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = ProviderOpenAI
	}
	if cfg.Embeddings.Model == "" {
		switch cfg.Embeddings.Provider {
		case ProviderGemini:
			cfg.Embeddings.Model = "text-embedding-004"
		case ProviderTEI:
			cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
		default:
			cfg.Embeddings.Model = "text-embedding-3-small"
		}
	}
	if cfg.Embeddings.Provider == ProviderTEI && cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}
	if cfg.Embeddings.Dimension == 0 && cfg.Embeddings.Provider == ProviderLocal {
		cfg.Embeddings.Dimension = 256
	}

	if cfg.Generation.Provider == "" {
		cfg.Generation.Provider = ProviderOpenAI
	}
	if cfg.Generation.Model == "" {
		switch cfg.Generation.Provider {
		case ProviderAnthropic:
			cfg.Generation.Model = "claude-3-5-haiku-latest"
		case ProviderGemini:
			cfg.Generation.Model = "gemini-1.5-flash"
		default:
			cfg.Generation.Model = "gpt-4o-mini"
		}
	}
	if cfg.Generation.Temperature == 0 {
		cfg.Generation.Temperature = 0.2
	}
	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = 1024
	}
	if cfg.Generation.RequestsPerMinute == 0 {
		cfg.Generation.RequestsPerMinute = 50
	}
	if cfg.Generation.Timeout == 0 {
		cfg.Generation.Timeout = Duration(60 * time.Second)
	}

	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = StoreChromem
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = DefaultCollection
	}
	if cfg.VectorStore.ChromemPath == "" {
		cfg.VectorStore.ChromemPath = "~/.local/share/careerd/chroma"
	}
	if cfg.VectorStore.QdrantHost == "" {
		cfg.VectorStore.QdrantHost = "localhost"
	}
	if cfg.VectorStore.QdrantPort == 0 {
		cfg.VectorStore.QdrantPort = 6334
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.MaxContextChars == 0 {
		cfg.Retrieval.MaxContextChars = 12000
	}

	if cfg.PDF.ToolPath == "" {
		cfg.PDF.ToolPath = "pdftotext"
	}
	if cfg.PDF.Timeout == 0 {
		cfg.PDF.Timeout = Duration(30 * time.Second)
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
		cfg.Telemetry.Insecure = true
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "careerd"
	}
	if cfg.Telemetry.SamplingRate == 0 {
		cfg.Telemetry.SamplingRate = 1.0
	}
	if cfg.Telemetry.ExportInterval == 0 {
		cfg.Telemetry.ExportInterval = Duration(15 * time.Second)
	}
	if cfg.Telemetry.ShutdownTimeout == 0 {
		cfg.Telemetry.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port))
	}
	if c.Server.MaxUploadMB < 0 {
		errs = append(errs, fmt.Errorf("server max_upload_mb cannot be negative: %d", c.Server.MaxUploadMB))
	}

	switch c.Embeddings.Provider {
	case ProviderOpenAI, ProviderTEI, ProviderGemini, ProviderLocal:
	default:
		errs = append(errs, fmt.Errorf("unknown embeddings provider %q", c.Embeddings.Provider))
	}
	if c.Embeddings.Dimension < 0 {
		errs = append(errs, fmt.Errorf("embeddings dimension cannot be negative: %d", c.Embeddings.Dimension))
	}

	switch c.Generation.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderNone:
	default:
		errs = append(errs, fmt.Errorf("unknown generation provider %q", c.Generation.Provider))
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		errs = append(errs, fmt.Errorf("generation temperature must be within [0, 2], got %v", c.Generation.Temperature))
	}
	if c.Generation.RequestsPerMinute < 1 {
		errs = append(errs, fmt.Errorf("generation requests_per_minute must be positive, got %d", c.Generation.RequestsPerMinute))
	}
	if c.Generation.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("generation max_retries cannot be negative, got %d", c.Generation.MaxRetries))
	}

	switch c.VectorStore.Provider {
	case StoreChromem, StoreQdrant:
	case StorePostgres:
		if !c.VectorStore.PostgresDSN.IsSet() {
			errs = append(errs, errors.New("vectorstore postgres_dsn is required for the postgres provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown vectorstore provider %q", c.VectorStore.Provider))
	}
	if !collectionPattern.MatchString(c.VectorStore.Collection) {
		errs = append(errs, fmt.Errorf("invalid collection name %q (must match %s)", c.VectorStore.Collection, collectionPattern))
	}

	if c.Retrieval.TopK < 1 {
		errs = append(errs, fmt.Errorf("retrieval top_k must be positive, got %d", c.Retrieval.TopK))
	}
	if c.Retrieval.MaxContextChars < 1 {
		errs = append(errs, fmt.Errorf("retrieval max_context_chars must be positive, got %d", c.Retrieval.MaxContextChars))
	}

	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = append(errs, fmt.Errorf("log format must be 'json' or 'console', got %q", c.Log.Format))
	}

	if c.Telemetry.Protocol != "grpc" && c.Telemetry.Protocol != "http/protobuf" {
		errs = append(errs, fmt.Errorf("telemetry protocol must be 'grpc' or 'http/protobuf', got %q", c.Telemetry.Protocol))
	}
	if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
		errs = append(errs, fmt.Errorf("telemetry sampling_rate must be within [0, 1], got %v", c.Telemetry.SamplingRate))
	}

	return errors.Join(errs...)
}
