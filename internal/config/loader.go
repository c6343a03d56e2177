package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix prefixes every careerd environment variable.
	EnvPrefix = "CAREERD_"
)

// Load loads configuration from defaults and the environment only.
func Load() (*Config, error) {
	return load(nil)
}

// LoadWithFile loads configuration from a YAML file, then overrides it with
// environment variables.
//
// Precedence (highest to lowest):
//  1. CAREERD_* environment variables (CAREERD_SERVER_HTTP_PORT, ...)
//  2. Legacy unprefixed variables (OPENAI_API_KEY, CHROMA_DIR, RETRIEVAL_TOP_K, ...)
//  3. YAML config file
//  4. Hardcoded defaults
//
// An empty configPath uses ~/.config/careerd/config.yaml. A missing file is
// not an error. Files must live under ~/.config/careerd/ or /etc/careerd/,
// must not be group or world writable, and must not exceed 1MB.
//
// # Environment Variable Mapping
//
// After stripping the prefix the first underscore separates section and field:
//
//	CAREERD_SERVER_HTTP_PORT      -> server.http_port
//	CAREERD_RETRIEVAL_TOP_K       -> retrieval.top_k
//	CAREERD_VECTORSTORE_QDRANT_HOST -> vectorstore.qdrant_host
func LoadWithFile(configPath string) (*Config, error) {
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "careerd", "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	content, err := readConfigFile(configPath)
	if err != nil {
		return nil, err
	}
	return load(content)
}

func load(yamlContent []byte) (*Config, error) {
	k := koanf.New(".")

	if len(yamlContent) > 0 {
		if err := k.Load(rawbytes.Provider(yamlContent), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyLegacyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// listKeys are the config keys whose environment values are comma-separated lists.
var listKeys = map[string]bool{
	"server.cors_origins": true,
}

// envValue maps an environment variable to its config key, splitting list
// values on commas.
func envValue(name, value string) (string, interface{}) {
	key := envKey(name)
	if !listKeys[key] {
		return key, value
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return key, items
}

// envKey maps CAREERD_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, found := strings.Cut(lower, "_")
	if !found {
		return lower
	}
	return section + "." + field
}

// readConfigFile returns nil content when the file does not exist.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	// Validate through the open descriptor to avoid a TOCTOU race.
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// validateConfigPath checks the path resolves into an allowed directory.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		// Paths that don't exist yet are validated as given.
		resolved = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	allowedDirs := []string{
		filepath.Join(home, ".config", "careerd"),
		"/etc/careerd",
	}
	for _, dir := range allowedDirs {
		if resolved == dir || strings.HasPrefix(resolved, dir+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("config file must be in ~/.config/careerd/ or /etc/careerd/")
}

func validateConfigFileProperties(info os.FileInfo) error {
	if !info.Mode().IsRegular() {
		return fmt.Errorf("config path is not a regular file")
	}
	if runtime.GOOS != "windows" {
		if perm := info.Mode().Perm(); perm&0o022 != 0 {
			return fmt.Errorf("insecure config file permissions: %v (must not be group or world writable)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

// applyLegacyEnv fills unset fields from the unprefixed variables the
// service historically read.
func applyLegacyEnv(cfg *Config) error {
	isOpenAI := func(p string) bool { return p == "" || p == ProviderOpenAI }

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if isOpenAI(cfg.Embeddings.Provider) && !cfg.Embeddings.APIKey.IsSet() {
			cfg.Embeddings.APIKey = Secret(key)
		}
		if isOpenAI(cfg.Generation.Provider) && !cfg.Generation.APIKey.IsSet() {
			cfg.Generation.APIKey = Secret(key)
		}
	}
	if base := os.Getenv("OPENAI_API_BASE"); base != "" {
		if isOpenAI(cfg.Embeddings.Provider) && cfg.Embeddings.BaseURL == "" {
			cfg.Embeddings.BaseURL = base
		}
		if isOpenAI(cfg.Generation.Provider) && cfg.Generation.BaseURL == "" {
			cfg.Generation.BaseURL = base
		}
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" && isOpenAI(cfg.Generation.Provider) && cfg.Generation.Model == "" {
		cfg.Generation.Model = model
	}
	if model := os.Getenv("EMBEDDING_MODEL"); model != "" && cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = model
	}

	if key := firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY"); key != "" {
		if cfg.Embeddings.Provider == ProviderGemini && !cfg.Embeddings.APIKey.IsSet() {
			cfg.Embeddings.APIKey = Secret(key)
		}
		if cfg.Generation.Provider == ProviderGemini && !cfg.Generation.APIKey.IsSet() {
			cfg.Generation.APIKey = Secret(key)
		}
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && cfg.Generation.Provider == ProviderAnthropic && !cfg.Generation.APIKey.IsSet() {
		cfg.Generation.APIKey = Secret(key)
	}

	if dir := os.Getenv("CHROMA_DIR"); dir != "" && cfg.VectorStore.ChromemPath == "" {
		cfg.VectorStore.ChromemPath = dir
	}

	if err := legacyInt("RETRIEVAL_TOP_K", &cfg.Retrieval.TopK); err != nil {
		return err
	}
	return legacyInt("MAX_CTX_CHARS", &cfg.Retrieval.MaxContextChars)
}

func legacyInt(name string, dst *int) error {
	raw := os.Getenv(name)
	if raw == "" || *dst != 0 {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = v
	return nil
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}
