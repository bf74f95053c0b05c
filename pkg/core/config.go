package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config contains the complete configuration for a brain graph client.
//
// It includes settings for:
//   - Store (the relational backend holding the graph)
//   - Embedder (for vector generation)
//   - Decay (batch scoring cadence and TTL)
//   - Search (hybrid ranking defaults)
//   - Signals (retention of the interaction log)
//
// Example:
//
//	config := &core.Config{
//	    Store: core.StoreConfig{
//	        Provider: "sqlite",
//	        Config: map[string]interface{}{
//	            "db_path": "./braingraph.db",
//	        },
//	    },
//	    Embedder: core.EmbedderConfig{
//	        Provider: "hash",
//	    },
//	}
type Config struct {
	// Store contains storage backend configuration.
	Store StoreConfig `json:"store"`

	// Embedder contains embedding provider configuration.
	Embedder EmbedderConfig `json:"embedder"`

	// Decay contains decay engine configuration (optional).
	Decay *DecaySettings `json:"decay,omitempty"`

	// Search contains hybrid search defaults (optional).
	Search *SearchSettings `json:"search,omitempty"`

	// Signals contains signal log retention configuration (optional).
	Signals *SignalSettings `json:"signals,omitempty"`
}

// StoreConfig contains configuration for the storage backend.
//
// Supported providers: sqlite, postgres, mysql
//
// Example:
//
//	storeConfig := core.StoreConfig{
//	    Provider: "postgres",
//	    Config: map[string]interface{}{
//	        "host":    "localhost",
//	        "port":    5432,
//	        "user":    "postgres",
//	        "db_name": "braingraph",
//	    },
//	}
type StoreConfig struct {
	// Provider is the storage backend name (sqlite, postgres, mysql).
	Provider string `json:"provider"`

	// Config contains provider-specific configuration.
	// For SQLite: db_path
	// For PostgreSQL: host, port, user, password, db_name, ssl_mode
	// For MySQL: host, port, user, password, db_name
	Config map[string]interface{} `json:"config"`
}

// EmbedderConfig contains configuration for the embedding provider.
//
// Supported providers: openai (any OpenAI-compatible endpoint), qwen
// (DashScope), hash (deterministic local fallback, no network).
type EmbedderConfig struct {
	// Provider is the embedding provider name (openai, qwen, hash).
	Provider string `json:"provider"`

	// APIKey is the API key for the embedding provider.
	APIKey string `json:"api_key,omitempty"`

	// Model is the embedding model name.
	Model string `json:"model,omitempty"`

	// BaseURL is the base URL for the API (optional, uses provider default
	// if empty).
	BaseURL string `json:"base_url,omitempty"`

	// Dimensions is the dimension of the embedding vectors.
	Dimensions int `json:"dimensions,omitempty"`
}

// DecaySettings controls the batch decay scorer.
type DecaySettings struct {
	// Interval is how often the background loop recomputes all scores.
	// Default: 1h.
	Interval time.Duration `json:"interval,omitempty"`
}

// SearchSettings holds hybrid search defaults applied when a request leaves
// the corresponding field zero.
type SearchSettings struct {
	// Alpha is the default lexical/vector blend weight (0 = lexical only,
	// 1 = vector only). Default: 0.5.
	Alpha float64 `json:"alpha,omitempty"`

	// Limit is the default result count. Default: 10.
	Limit int `json:"limit,omitempty"`

	// ContextSize is the default chunk context window. Default: 0.
	ContextSize int `json:"context_size,omitempty"`
}

// SignalSettings controls retention of the interaction signal log.
type SignalSettings struct {
	// RetentionDays is how long signal log entries are kept before cleanup.
	// Default: 90.
	RetentionDays int `json:"retention_days,omitempty"`
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Parses environment variables into a Config struct
//
// Supported environment variables:
//   - DATABASE_PROVIDER (sqlite, postgres, mysql)
//   - SQLITE_PATH
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD, etc.
//   - MYSQL_HOST, MYSQL_PORT, MYSQL_USER, MYSQL_PASSWORD, MYSQL_DATABASE
//   - EMBEDDING_PROVIDER, EMBEDDING_API_KEY, EMBEDDING_MODEL,
//     EMBEDDING_BASE_URL, EMBEDDING_DIMENSIONS
//   - DECAY_INTERVAL (Go duration, e.g. "1h")
//   - SEARCH_ALPHA, SEARCH_LIMIT, SEARCH_CONTEXT_SIZE
//   - SIGNAL_RETENTION_DAYS
//
// Returns a Config instance, or an error if loading fails.
//
// Example:
//
//	config, err := core.LoadConfigFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
func LoadConfigFromEnv() (*Config, error) {
	// Use FindEnvFile to locate .env file (supports upward search)
	envPath, found := FindEnvFile()
	if found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	provider := getEnvOrDefault("DATABASE_PROVIDER", "sqlite")

	storeConfig := make(map[string]interface{})
	switch provider {
	case "sqlite":
		storeConfig = map[string]interface{}{
			"db_path": getEnvOrDefault("SQLITE_PATH", "./braingraph.db"),
		}
	case "postgres":
		port, _ := strconv.Atoi(getEnvOrDefault("POSTGRES_PORT", "5432"))
		storeConfig = map[string]interface{}{
			"host":     getEnvOrDefault("POSTGRES_HOST", "localhost"),
			"port":     port,
			"user":     getEnvOrDefault("POSTGRES_USER", "postgres"),
			"password": os.Getenv("POSTGRES_PASSWORD"),
			"db_name":  getEnvOrDefault("POSTGRES_DATABASE", "braingraph"),
			"ssl_mode": getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		}
	case "mysql":
		port, _ := strconv.Atoi(getEnvOrDefault("MYSQL_PORT", "3306"))
		storeConfig = map[string]interface{}{
			"host":     getEnvOrDefault("MYSQL_HOST", "127.0.0.1"),
			"port":     port,
			"user":     getEnvOrDefault("MYSQL_USER", "root"),
			"password": os.Getenv("MYSQL_PASSWORD"),
			"db_name":  getEnvOrDefault("MYSQL_DATABASE", "braingraph"),
		}
	}

	embedderProvider := getEnvOrDefault("EMBEDDING_PROVIDER", "hash")
	embedderModel := os.Getenv("EMBEDDING_MODEL")
	embedderBaseURL := os.Getenv("EMBEDDING_BASE_URL")
	if embedderProvider == "openai" {
		if embedderBaseURL == "" {
			embedderBaseURL = "https://api.openai.com/v1"
		}
		if embedderModel == "" {
			embedderModel = "text-embedding-3-small"
		}
	}
	dims, _ := strconv.Atoi(getEnvOrDefault("EMBEDDING_DIMENSIONS", "768"))

	config := &Config{
		Store: StoreConfig{
			Provider: provider,
			Config:   storeConfig,
		},
		Embedder: EmbedderConfig{
			Provider:   embedderProvider,
			APIKey:     os.Getenv("EMBEDDING_API_KEY"),
			Model:      embedderModel,
			BaseURL:    embedderBaseURL,
			Dimensions: dims,
		},
	}

	if v := os.Getenv("DECAY_INTERVAL"); v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid DECAY_INTERVAL %q: %w", v, err)
		}
		config.Decay = &DecaySettings{Interval: interval}
	}

	if os.Getenv("SEARCH_ALPHA") != "" || os.Getenv("SEARCH_LIMIT") != "" || os.Getenv("SEARCH_CONTEXT_SIZE") != "" {
		alpha, _ := strconv.ParseFloat(getEnvOrDefault("SEARCH_ALPHA", "0.5"), 64)
		limit, _ := strconv.Atoi(getEnvOrDefault("SEARCH_LIMIT", "10"))
		contextSize, _ := strconv.Atoi(getEnvOrDefault("SEARCH_CONTEXT_SIZE", "0"))
		config.Search = &SearchSettings{
			Alpha:       alpha,
			Limit:       limit,
			ContextSize: contextSize,
		}
	}

	if v := os.Getenv("SIGNAL_RETENTION_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SIGNAL_RETENTION_DAYS %q: %w", v, err)
		}
		config.Signals = &SignalSettings{RetentionDays: days}
	}

	return config, nil
}

// LoadConfigFromEnvFile loads configuration from a specific .env file.
//
// Parameters:
//   - envPath: Path to the .env file
//
// Returns a Config instance, or an error if loading fails.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return LoadConfigFromEnv()
}

// LoadConfigFromJSON loads configuration from a JSON file.
//
// Parameters:
//   - path: Path to the JSON configuration file
//
// Returns a Config instance, or an error if loading or parsing fails.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewGraphError("LoadConfigFromJSON", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, NewGraphError("LoadConfigFromJSON", err)
	}

	return &config, nil
}

// Validate validates the configuration.
//
// Checks that all required fields are set:
//   - Store provider must be specified
//   - Embedder provider must be specified
//   - Search alpha, when set, must be in [0, 1]
//
// Returns an error if validation fails, nil otherwise.
func (c *Config) Validate() error {
	if c.Store.Provider == "" {
		return NewGraphError("Validate", ErrInvalidConfig)
	}
	if c.Embedder.Provider == "" {
		return NewGraphError("Validate", ErrInvalidConfig)
	}
	if c.Search != nil && (c.Search.Alpha < 0 || c.Search.Alpha > 1) {
		return NewGraphError("Validate", ErrInvalidConfig)
	}
	return nil
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FindEnvFile searches for .env or .env.example files.
//
// The search:
//  1. Checks the current directory
//  2. Searches up to 5 directory levels up
//  3. Returns the first .env or .env.example file found
//
// Returns:
//   - path: Path to the found file (empty if not found)
//   - found: True if a file was found, false otherwise
func FindEnvFile() (string, bool) {
	// First check the current directory
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	// Check project root directory (search upward)
	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}
