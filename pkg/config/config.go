package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Env       string
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Typesense TypesenseConfig
	OTEL      OTELConfig
	Auth      AuthConfig
	ML        MLConfig
	Storage   StorageConfig
	Workflow  WorkflowConfig
	Cache     CacheConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
	MaxUploadMB    int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	Database      string
	SSLMode       string
	RunMigrations bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Enabled  bool
}

// TypesenseConfig holds Typesense configuration
type TypesenseConfig struct {
	URL     string
	APIKey  string
	Enabled bool
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// AuthConfig holds token signing and password hashing settings
type AuthConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	BcryptCost    int
	LoginLimit    int
	RegisterLimit int
	LoginWindow   time.Duration
}

// MLConfig holds settings for the external inference service
type MLConfig struct {
	BaseURL        string
	PredictTimeout time.Duration
	BatchTimeout   time.Duration
	HealthTimeout  time.Duration
}

// StorageConfig holds local file storage settings
type StorageConfig struct {
	UploadDir        string
	HeatmapDir       string
	HeatmapAssetDir  string
	HeatmapSelection string
}

// WorkflowConfig holds status machine settings
type WorkflowConfig struct {
	TerminalPolicy string
}

// CacheConfig holds in-process cache settings
type CacheConfig struct {
	LRUSize    int
	TTLSeconds int
}

// Load loads configuration from environment variables. A .env file in the
// working directory is read first when present; real environment variables
// win over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnvAsInt("SERVER_PORT", 5001),
			AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", []string{"*"}),
			MaxUploadMB:    getEnvAsInt("MAX_UPLOAD_MB", 50),
		},
		Database: DatabaseConfig{
			Host:          getEnv("DB_HOST", "localhost"),
			Port:          getEnvAsInt("DB_PORT", 5432),
			User:          getEnv("DB_USER", "postgres"),
			Password:      getEnv("DB_PASSWORD", ""),
			Database:      getEnv("DB_NAME", "recursiadx"),
			SSLMode:       getEnv("DB_SSLMODE", "disable"),
			RunMigrations: getEnvAsBool("DB_RUN_MIGRATIONS", true),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
		},
		Typesense: TypesenseConfig{
			URL:     getEnv("TYPESENSE_URL", "http://localhost:8108"),
			APIKey:  getEnv("TYPESENSE_API_KEY", "xyz"),
			Enabled: getEnvAsBool("TYPESENSE_ENABLED", false),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "recursiadx-api"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
		Auth: AuthConfig{
			AccessSecret:  getEnv("JWT_ACCESS_SECRET", ""),
			RefreshSecret: getEnv("JWT_REFRESH_SECRET", ""),
			AccessTTL:     getEnvAsDuration("JWT_ACCESS_TTL", 24*time.Hour),
			RefreshTTL:    getEnvAsDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
			BcryptCost:    getEnvAsInt("BCRYPT_COST", 12),
			LoginLimit:    getEnvAsInt("AUTH_RATE_LIMIT", 5),
			RegisterLimit: getEnvAsInt("AUTH_REGISTER_RATE_LIMIT", 3),
			LoginWindow:   getEnvAsDuration("AUTH_RATE_WINDOW", 15*time.Minute),
		},
		ML: MLConfig{
			BaseURL:        getEnv("ML_SERVICE_URL", "http://localhost:5000"),
			PredictTimeout: getEnvAsDuration("ML_PREDICT_TIMEOUT", 30*time.Second),
			BatchTimeout:   getEnvAsDuration("ML_BATCH_TIMEOUT", 60*time.Second),
			HealthTimeout:  getEnvAsDuration("ML_HEALTH_TIMEOUT", 5*time.Second),
		},
		Storage: StorageConfig{
			UploadDir:        getEnv("UPLOAD_DIR", "uploads/images"),
			HeatmapDir:       getEnv("HEATMAP_DIR", "uploads/heatmaps"),
			HeatmapAssetDir:  getEnv("HEATMAP_ASSET_DIR", "assets/heatmaps"),
			HeatmapSelection: getEnv("HEATMAP_SELECTION", "hash"),
		},
		Workflow: WorkflowConfig{
			TerminalPolicy: getEnv("WORKFLOW_TERMINAL_POLICY", "strict"),
		},
		Cache: CacheConfig{
			LRUSize:    getEnvAsInt("CACHE_LRU_SIZE", 1000),
			TTLSeconds: getEnvAsInt("CACHE_TTL_SECONDS", 300),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Env == "production" && (c.Auth.AccessSecret == "" || c.Auth.RefreshSecret == "") {
		return fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET are required in production")
	}
	if c.Auth.AccessSecret == "" {
		c.Auth.AccessSecret = "dev-access-secret"
	}
	if c.Auth.RefreshSecret == "" {
		c.Auth.RefreshSecret = "dev-refresh-secret"
	}
	switch c.Workflow.TerminalPolicy {
	case "strict", "admin_override", "allow":
	default:
		return fmt.Errorf("invalid WORKFLOW_TERMINAL_POLICY %q", c.Workflow.TerminalPolicy)
	}
	switch c.Storage.HeatmapSelection {
	case "hash", "random":
	default:
		return fmt.Errorf("invalid HEATMAP_SELECTION %q", c.Storage.HeatmapSelection)
	}
	return nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// MigrationURL returns the URL form of the connection settings
func (c *DatabaseConfig) MigrationURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
