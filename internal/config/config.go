package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultCORSOrigin is the local frontend dev server, the only origin
// allowed unless CORS_ALLOWED_ORIGINS says otherwise.
const DefaultCORSOrigin = "http://localhost:3000"

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig
	HTTP     HTTPConfig
	Query    QueryConfig
	Auth     AuthConfig
	Upload   UploadConfig
	Chatbot  ChatbotConfig
	Log      LogConfig
}

// DatabaseConfig contains database-related settings.
type DatabaseConfig struct {
	Path string // SQLite database file path
}

// HTTPConfig contains API server settings.
type HTTPConfig struct {
	Address      string   // listen address (e.g., ":8080")
	CORSOrigins  []string // allowed origins; "*" must be opted into explicitly
	CookieSecure bool     // mark the session cookie Secure
}

// QueryConfig contains settings for the meal query server.
type QueryConfig struct {
	Address   string  // TCP listen address (e.g., "127.0.0.1:3001")
	RateLimit float64 // requests per second per connection
	RateBurst int
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	JWTSecret      string        // JWT signing secret
	JWTIssuer      string        // iss claim of issued tokens
	TokenTTL       time.Duration // session lifetime, also the cookie Max-Age
	PasswordScheme string        // "bcrypt" or "plain"
}

// UploadConfig selects where meal images are stored.
type UploadConfig struct {
	Backend  string // "local" or "s3"
	Dir      string // local directory
	MaxBytes int64
	S3       S3Config
}

// S3Config contains S3-compatible object storage settings.
type S3Config struct {
	Bucket        string
	Region        string
	Endpoint      string // custom endpoint, e.g. MinIO
	AccessKey     string
	SecretKey     string
	PublicBaseURL string // prefix for returned image URLs
}

// ChatbotConfig describes the assistant subprocess.
type ChatbotConfig struct {
	Command string
	Args    []string
	Dir     string
	Timeout time.Duration
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string // debug, info, warn, error
}

// Load loads configuration from environment variables with sensible defaults.
// JWT_SECRET has no default.
func Load() (*Config, error) {
	cfg, err := load(getEnv("JWT_SECRET", ""))
	if err != nil {
		return nil, err
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is not set; required for production")
	}
	return cfg, nil
}

// LoadWithDefaults is like Load but uses a safe default for JWT_SECRET in development.
// WARNING: Only use in development! Use Load() in production.
func LoadWithDefaults() (*Config, error) {
	return load(getEnv("JWT_SECRET", "dev-secret-change-me"))
}

func load(secret string) (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "calorie_tracker.db"),
		},
		HTTP: HTTPConfig{
			Address:     getEnv("HTTP_ADDRESS", ":8080"),
			CORSOrigins: parseCSV(getEnv("CORS_ALLOWED_ORIGINS", DefaultCORSOrigin)),
		},
		Query: QueryConfig{
			Address: getEnv("QUERY_ADDRESS", "127.0.0.1:3001"),
		},
		Auth: AuthConfig{
			JWTSecret:      secret,
			JWTIssuer:      getEnv("JWT_ISSUER", "calorie-tracker"),
			PasswordScheme: getEnv("AUTH_PASSWORD_SCHEME", "bcrypt"),
		},
		Upload: UploadConfig{
			Backend: strings.ToLower(getEnv("UPLOAD_BACKEND", "local")),
			Dir:     getEnv("UPLOAD_DIR", "uploads/meals"),
			S3: S3Config{
				Bucket:        getEnv("S3_BUCKET", ""),
				Region:        getEnv("S3_REGION", "us-east-1"),
				Endpoint:      getEnv("S3_ENDPOINT", ""),
				AccessKey:     getEnv("S3_ACCESS_KEY", ""),
				SecretKey:     getEnv("S3_SECRET_KEY", ""),
				PublicBaseURL: getEnv("S3_PUBLIC_BASE_URL", ""),
			},
		},
		Chatbot: ChatbotConfig{
			Command: getEnv("CHATBOT_COMMAND", "python"),
			Args:    strings.Fields(getEnv("CHATBOT_ARGS", "simple_agent.py")),
			Dir:     getEnv("CHATBOT_DIR", "calorie-tracker-agent"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	var err error
	if cfg.HTTP.CookieSecure, err = getEnvBool("COOKIE_SECURE", false); err != nil {
		return nil, err
	}
	if cfg.Auth.TokenTTL, err = getEnvDuration("TOKEN_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.Chatbot.Timeout, err = getEnvDuration("CHATBOT_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	maxBytes, err := getEnvInt("UPLOAD_MAX_BYTES", 5*1024*1024)
	if err != nil {
		return nil, err
	}
	cfg.Upload.MaxBytes = int64(maxBytes)
	if cfg.Query.RateBurst, err = getEnvInt("QUERY_RATE_BURST", 20); err != nil {
		return nil, err
	}
	if cfg.Query.RateLimit, err = getEnvFloat("QUERY_RATE_PER_SEC", 10); err != nil {
		return nil, err
	}
	if cfg.Query.RateLimit <= 0 {
		return nil, fmt.Errorf("QUERY_RATE_PER_SEC must be positive")
	}

	if cfg.Auth.TokenTTL <= 0 {
		return nil, fmt.Errorf("TOKEN_TTL must be positive")
	}
	switch cfg.Upload.Backend {
	case "local":
	case "s3":
		if cfg.Upload.S3.Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET is required when UPLOAD_BACKEND=s3")
		}
	default:
		return nil, fmt.Errorf("unknown UPLOAD_BACKEND %q", cfg.Upload.Backend)
	}
	return cfg, nil
}

// getEnv retrieves an environment variable with a default fallback.
func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return defaultVal
}

// getEnvInt retrieves an environment variable as an integer with a default fallback.
func getEnvInt(key string, defaultVal int) (int, error) {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return intVal, nil
	}
	return defaultVal, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number for %s: %w", key, err)
		}
		return f, nil
	}
	return defaultVal, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return false, fmt.Errorf("invalid boolean for %s: %w", key, err)
		}
		return b, nil
	}
	return defaultVal, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		d, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
		}
		return d, nil
	}
	return defaultVal, nil
}

func parseCSV(input string) []string {
	var out []string
	for _, part := range strings.Split(input, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// String returns a string representation of the config (sensitive values are masked).
func (c *Config) String() string {
	return fmt.Sprintf("Config{DB: %s, HTTP: %s, Query: %s, Upload: %s, Auth: *** (masked) ***}",
		c.Database.Path, c.HTTP.Address, c.Query.Address, c.Upload.Backend)
}
