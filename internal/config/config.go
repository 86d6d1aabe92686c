package config

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the nutrition server
type Config struct {
	// Auth
	AuthToken string

	// Catalog export config
	DatasetURL   string
	DataDir      string
	DatasetPath  string
	MetadataPath string
	LockFile     string

	// Refresh behavior
	RefreshIntervalHours int
	DisableRemoteCheck   bool
	IgnoreLock           bool

	// Server
	Port        string
	APIPort     string
	Environment string

	// Local state
	SQLitePath string
	BoundsPath string
	SessionTTL time.Duration

	// REST API
	RateLimitRPS   float64
	RateLimitBurst int
	CORSOrigins    string
}

// FileReader abstracts file access so .env loading can be tested
type FileReader interface {
	Open(filename string) (io.ReadCloser, error)
	Stat(filename string) (os.FileInfo, error)
}

type osFileReader struct{}

func (osFileReader) Open(filename string) (io.ReadCloser, error) { return os.Open(filename) }
func (osFileReader) Stat(filename string) (os.FileInfo, error)   { return os.Stat(filename) }

const defaultDatasetURL = "https://static.openpetfoodfacts.org/data/openpetfoodfacts-products.jsonl.gz"

// Load reads configuration from a .env file (if present) and environment variables
func Load() *Config {
	return LoadWithFileReader(osFileReader{})
}

// LoadWithFileReader is Load with an injectable file reader
func LoadWithFileReader(reader FileReader) *Config {
	loadEnvFileWithReader(reader)

	dataDir := getEnv("DATA_DIR", "./data")

	return &Config{
		AuthToken:            getEnv("AUTH_TOKEN", "super-secret-token"),
		DatasetURL:           getEnv("DATASET_URL", defaultDatasetURL),
		DataDir:              dataDir,
		DatasetPath:          getEnv("DATASET_PATH", filepath.Join(dataDir, "openpetfoodfacts-products.jsonl.gz")),
		MetadataPath:         getEnv("METADATA_PATH", filepath.Join(dataDir, "metadata.json")),
		LockFile:             getEnv("LOCK_FILE", filepath.Join(dataDir, "refresh.lock")),
		RefreshIntervalHours: getEnvInt("REFRESH_INTERVAL_HOURS", 24),
		DisableRemoteCheck:   getEnvBool("DISABLE_REMOTE_CHECK"),
		IgnoreLock:           getEnvBool("IGNORE_LOCK"),
		Port:                 getEnv("PORT", "8080"),
		APIPort:              getEnv("API_PORT", "8081"),
		Environment:          getEnv("ENV", "production"),
		SQLitePath:           getEnv("SQLITE_PATH", filepath.Join(dataDir, "petfood.db")),
		BoundsPath:           os.Getenv("BOUNDS_PATH"),
		SessionTTL:           getEnvDuration("SESSION_TTL", 15*time.Minute),
		RateLimitRPS:         getEnvFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:       getEnvInt("RATE_LIMIT_BURST", 10),
		CORSOrigins:          getEnv("CORS_ORIGINS", "*"),
	}
}

// RefreshInterval returns the refresh interval as a duration
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalHours) * time.Hour
}

// IsDevelopment reports whether ENV=development
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// loadEnvFileWithReader sets variables from .env that are not already set
func loadEnvFileWithReader(reader FileReader) {
	if _, err := reader.Stat(".env"); err != nil {
		return
	}
	f, err := reader.Open(".env")
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		os.Setenv(key, value)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string) bool {
	parsed, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return defaultValue
}
