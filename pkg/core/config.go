package core

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/memgate/memgate-go/pkg/relevance"
)

// Config contains the complete configuration for a MemGate engine.
//
// It includes settings for:
//   - Store (where memories persist: sqlite, postgres, mysql)
//   - Memory (selection and save-gate bounds)
//   - Cache (injection plan cache)
//   - Summarizer (optional compaction of long responses before saving)
//
// Example:
//
//	config := &core.Config{
//	    Store: core.StoreConfig{
//	        Provider: "sqlite",
//	        Path:     "./memgate.db",
//	    },
//	    Memory: core.DefaultMemoryConfig(),
//	}
type Config struct {
	// Store contains persistence configuration.
	Store StoreConfig `json:"store"`

	// Memory contains selection and save-gate bounds.
	Memory MemoryConfig `json:"memory"`

	// Cache contains injection plan cache configuration.
	Cache CacheConfig `json:"cache"`

	// Summarizer contains optional summarizer configuration.
	Summarizer SummarizerConfig `json:"summarizer"`

	// Debug enables diagnostic logging to stderr. Failures that resolve to
	// safe defaults are only visible with this on.
	Debug bool `json:"debug,omitempty"`
}

// StoreConfig contains configuration for the memory store.
//
// Supported providers: sqlite, postgres, mysql
type StoreConfig struct {
	// Provider is the store provider name (sqlite, postgres, mysql).
	Provider string `json:"provider"`

	// Path is the database file path. SQLite only.
	Path string `json:"path,omitempty"`

	// Host is the database host. Postgres and MySQL.
	Host string `json:"host,omitempty"`

	// Port is the database port. Postgres and MySQL.
	Port int `json:"port,omitempty"`

	// User is the database user. Postgres and MySQL.
	User string `json:"user,omitempty"`

	// Password is the database password. Postgres and MySQL.
	Password string `json:"password,omitempty"`

	// DBName is the database name. Postgres and MySQL.
	DBName string `json:"db_name,omitempty"`

	// TableName is the memories table name. Defaults to "memories".
	TableName string `json:"table_name,omitempty"`

	// SSLMode is the connection SSL mode. Postgres only.
	SSLMode string `json:"ssl_mode,omitempty"`
}

// MemoryConfig contains the selection and save-gate bounds.
type MemoryConfig struct {
	// MaxMemoriesToInject caps how many memories join a single turn.
	MaxMemoriesToInject int `json:"max_memories_to_inject"`

	// MaxMemoriesToScan caps how many memories are fetched for scoring.
	MaxMemoriesToScan int `json:"max_memories_to_scan"`

	// MaxInjectionChars caps the rendered injection block, in runes.
	MaxInjectionChars int `json:"max_injection_chars"`

	// RelevanceThreshold is the minimum score for injection.
	RelevanceThreshold float64 `json:"relevance_threshold"`

	// SimilarityThreshold is the near-duplicate bound for saving.
	SimilarityThreshold float64 `json:"similarity_threshold"`

	// MinResponseLength is the minimum combined turn length to save,
	// in runes.
	MinResponseLength int `json:"min_response_length"`

	// MaxResponseLength is the maximum stored content length, in runes.
	MaxResponseLength int `json:"max_response_length"`

	// SummarizeThreshold is the content length above which the summarizer
	// runs, in runes. Zero disables summarization.
	SummarizeThreshold int `json:"summarize_threshold,omitempty"`

	// Weights tunes the relevance scorer's signal mix. The zero value uses
	// the scorer defaults.
	Weights relevance.Weights `json:"weights,omitempty"`
}

// CacheConfig contains injection plan cache configuration.
type CacheConfig struct {
	// TTLSeconds is how long a cached plan stays valid.
	TTLSeconds int `json:"ttl_seconds"`

	// MaxSize is the cache entry capacity.
	MaxSize int `json:"max_size"`
}

// SummarizerConfig contains configuration for the optional summarizer.
//
// Supported providers: none, openai
type SummarizerConfig struct {
	// Provider is the summarizer provider name (none, openai).
	Provider string `json:"provider,omitempty"`

	// APIKey is the API key for the provider.
	APIKey string `json:"api_key,omitempty"`

	// Model is the model name to use (e.g., "gpt-4o-mini").
	Model string `json:"model,omitempty"`

	// BaseURL is the base URL for the API (optional).
	BaseURL string `json:"base_url,omitempty"`
}

// DefaultMemoryConfig returns the tuned memory bounds.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		MaxMemoriesToInject: 5,
		MaxMemoriesToScan:   300,
		MaxInjectionChars:   4000,
		RelevanceThreshold:  0.05,
		SimilarityThreshold: 0.8,
		MinResponseLength:   10,
		MaxResponseLength:   2000,
	}
}

// DefaultConfig returns a Config with a local SQLite store and the default
// bounds. Ready to use without environment setup.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Provider:  "sqlite",
			Path:      "./memgate.db",
			TableName: "memories",
		},
		Memory: DefaultMemoryConfig(),
		Cache: CacheConfig{
			TTLSeconds: 3600,
			MaxSize:    128,
		},
		Summarizer: SummarizerConfig{Provider: "none"},
	}
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
//   - SQLITE_PATH, SQLITE_TABLE
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD,
//     POSTGRES_DATABASE, POSTGRES_TABLE, POSTGRES_SSLMODE
//   - MYSQL_HOST, MYSQL_PORT, MYSQL_USER, MYSQL_PASSWORD, MYSQL_DATABASE,
//     MYSQL_TABLE
//   - MEMGATE_MAX_INJECT, MEMGATE_MAX_SCAN, MEMGATE_MAX_INJECTION_CHARS,
//     MEMGATE_RELEVANCE_THRESHOLD, MEMGATE_SIMILARITY_THRESHOLD,
//     MEMGATE_MIN_RESPONSE_LENGTH, MEMGATE_MAX_RESPONSE_LENGTH
//   - MEMGATE_CACHE_TTL_SECONDS, MEMGATE_CACHE_MAX_SIZE
//   - SUMMARIZER_PROVIDER, SUMMARIZER_API_KEY, SUMMARIZER_MODEL,
//     SUMMARIZER_BASE_URL, MEMGATE_SUMMARIZE_THRESHOLD
//   - MEMGATE_DEBUG (set to "true" to enable diagnostics)
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

	config := DefaultConfig()

	provider := getEnvOrDefault("DATABASE_PROVIDER", "sqlite")
	switch provider {
	case "postgres":
		port, _ := strconv.Atoi(getEnvOrDefault("POSTGRES_PORT", "5432"))
		config.Store = StoreConfig{
			Provider:  "postgres",
			Host:      getEnvOrDefault("POSTGRES_HOST", "localhost"),
			Port:      port,
			User:      getEnvOrDefault("POSTGRES_USER", "postgres"),
			Password:  os.Getenv("POSTGRES_PASSWORD"),
			DBName:    getEnvOrDefault("POSTGRES_DATABASE", "memgate"),
			TableName: getEnvOrDefault("POSTGRES_TABLE", "memories"),
			SSLMode:   getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		}
	case "mysql":
		port, _ := strconv.Atoi(getEnvOrDefault("MYSQL_PORT", "3306"))
		config.Store = StoreConfig{
			Provider:  "mysql",
			Host:      getEnvOrDefault("MYSQL_HOST", "localhost"),
			Port:      port,
			User:      getEnvOrDefault("MYSQL_USER", "root"),
			Password:  os.Getenv("MYSQL_PASSWORD"),
			DBName:    getEnvOrDefault("MYSQL_DATABASE", "memgate"),
			TableName: getEnvOrDefault("MYSQL_TABLE", "memories"),
		}
	default:
		config.Store = StoreConfig{
			Provider:  "sqlite",
			Path:      getEnvOrDefault("SQLITE_PATH", "./memgate.db"),
			TableName: getEnvOrDefault("SQLITE_TABLE", "memories"),
		}
	}

	config.Memory.MaxMemoriesToInject = getEnvInt("MEMGATE_MAX_INJECT", config.Memory.MaxMemoriesToInject)
	config.Memory.MaxMemoriesToScan = getEnvInt("MEMGATE_MAX_SCAN", config.Memory.MaxMemoriesToScan)
	config.Memory.MaxInjectionChars = getEnvInt("MEMGATE_MAX_INJECTION_CHARS", config.Memory.MaxInjectionChars)
	config.Memory.RelevanceThreshold = getEnvFloat("MEMGATE_RELEVANCE_THRESHOLD", config.Memory.RelevanceThreshold)
	config.Memory.SimilarityThreshold = getEnvFloat("MEMGATE_SIMILARITY_THRESHOLD", config.Memory.SimilarityThreshold)
	config.Memory.MinResponseLength = getEnvInt("MEMGATE_MIN_RESPONSE_LENGTH", config.Memory.MinResponseLength)
	config.Memory.MaxResponseLength = getEnvInt("MEMGATE_MAX_RESPONSE_LENGTH", config.Memory.MaxResponseLength)
	config.Memory.SummarizeThreshold = getEnvInt("MEMGATE_SUMMARIZE_THRESHOLD", config.Memory.SummarizeThreshold)

	config.Cache.TTLSeconds = getEnvInt("MEMGATE_CACHE_TTL_SECONDS", config.Cache.TTLSeconds)
	config.Cache.MaxSize = getEnvInt("MEMGATE_CACHE_MAX_SIZE", config.Cache.MaxSize)

	if summarizer := os.Getenv("SUMMARIZER_PROVIDER"); summarizer != "" {
		config.Summarizer = SummarizerConfig{
			Provider: summarizer,
			APIKey:   os.Getenv("SUMMARIZER_API_KEY"),
			Model:    getEnvOrDefault("SUMMARIZER_MODEL", "gpt-4o-mini"),
			BaseURL:  os.Getenv("SUMMARIZER_BASE_URL"),
		}
	}

	config.Debug = os.Getenv("MEMGATE_DEBUG") == "true"

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
		return nil, NewMemoryError("LoadConfigFromEnvFile", err)
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
		return nil, NewMemoryError("LoadConfigFromJSON", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON", err)
	}

	return &config, nil
}

// Validate validates the configuration.
//
// Checks that all required fields are set and all bounds are coherent:
//   - Store provider must be sqlite, postgres, or mysql
//   - SQLite needs a path; postgres and mysql need host, user, and db name
//   - Thresholds must stay within [0, 1]
//   - Length bounds must not invert
//
// Returns an error if validation fails, nil otherwise.
func (c *Config) Validate() error {
	switch c.Store.Provider {
	case "sqlite":
		if c.Store.Path == "" {
			return NewMemoryError("Validate", ErrInvalidConfig)
		}
	case "postgres", "mysql":
		if c.Store.Host == "" || c.Store.User == "" || c.Store.DBName == "" {
			return NewMemoryError("Validate", ErrInvalidConfig)
		}
	default:
		return NewMemoryError("Validate", ErrInvalidConfig)
	}

	if c.Memory.RelevanceThreshold < 0 || c.Memory.RelevanceThreshold > 1 {
		return NewMemoryError("Validate", ErrInvalidConfig)
	}
	if c.Memory.SimilarityThreshold < 0 || c.Memory.SimilarityThreshold > 1 {
		return NewMemoryError("Validate", ErrInvalidConfig)
	}
	if c.Memory.MinResponseLength < 0 || c.Memory.MaxResponseLength < 0 {
		return NewMemoryError("Validate", ErrInvalidConfig)
	}
	if c.Memory.MaxResponseLength > 0 && c.Memory.MinResponseLength > c.Memory.MaxResponseLength {
		return NewMemoryError("Validate", ErrInvalidConfig)
	}

	switch c.Summarizer.Provider {
	case "", "none":
	case "openai":
		if c.Summarizer.APIKey == "" {
			return NewMemoryError("Validate", ErrInvalidConfig)
		}
	default:
		return NewMemoryError("Validate", ErrInvalidConfig)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// FindEnvFile locates a .env or .env.example file, searching the current
// directory and then upward through parent directories.
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

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
