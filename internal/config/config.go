package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Render   RenderConfig
	Firmware FirmwareConfig
	Redis    RedisConfig
	Admin    AdminConfig
	LogLevel string
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port         int
	ReadTimeout  int
	WriteTimeout int
	CatalogPath  string
}

// RenderConfig holds screen rendering configuration
type RenderConfig struct {
	ScreenImagePath    string
	ReferenceImagePath string
	Workers            int
	Timeout            time.Duration
	BrowserSandbox     bool
	PanelCacheSize     int
	DefaultWidth       int
	DefaultHeight      int
}

// FirmwareConfig holds firmware lookup configuration
type FirmwareConfig struct {
	APIURI   string
	CacheTTL time.Duration
}

// RedisConfig holds Redis-related configuration. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AdminConfig holds the keys accepted by admin endpoints
type AdminConfig struct {
	APIKeys []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (optional)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 10),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 60),
			CatalogPath:  getEnv("CATALOG_PATH", "catalog.yaml"),
		},
		Render: RenderConfig{
			ScreenImagePath:    getEnv("SCREEN_IMAGE_PATH", "screens"),
			ReferenceImagePath: getEnv("REFERENCE_IMAGE_PATH", "references"),
			Workers:            getEnvAsInt("RENDER_WORKERS", 1),
			Timeout:            getEnvAsDuration("RENDER_TIMEOUT", 30*time.Second),
			BrowserSandbox:     getEnvAsBool("BROWSER_SANDBOX", true),
			PanelCacheSize:     getEnvAsInt("PANEL_CACHE_SIZE", 256),
			DefaultWidth:       getEnvAsInt("DEFAULT_WIDTH", 800),
			DefaultHeight:      getEnvAsInt("DEFAULT_HEIGHT", 480),
		},
		Firmware: FirmwareConfig{
			APIURI:   getEnv("FIRMWARE_API_URI", "https://trmnl.app/api"),
			CacheTTL: getEnvAsDuration("FIRMWARE_CACHE_TTL", 6*time.Hour),
		},
		Redis: RedisConfig{
			Addr:     getRedisAddr(),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Admin: AdminConfig{
			APIKeys: getEnvAsList("ADMIN_API_KEYS"),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// getRedisAddr prefers REDIS_URL (with or without the redis:// scheme) over REDIS_ADDR
func getRedisAddr() string {
	if url := os.Getenv("REDIS_URL"); url != "" {
		return strings.TrimPrefix(url, "redis://")
	}
	return getEnv("REDIS_ADDR", "")
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as int or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvAsBool accepts "true"/"1" and "false"/"0"; anything else yields the default
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvAsDuration parses Go duration strings ("30s", "6h")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping empty items
func getEnvAsList(key string) []string {
	var items []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
