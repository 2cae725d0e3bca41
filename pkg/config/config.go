package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port      string
	Debug     bool
	LogFormat string
	// Page
	OptionsPath  string
	StaticDir    string
	PublicOrigin string
	ImageWait    time.Duration
	// Catalog
	CatalogBaseURL string
	CatalogSize    int
	// Watermark
	WatermarkFontPath string
	WatermarkFontSize float64
	Blurhash          bool
	// Loading
	LoadTimeout    time.Duration
	MaxImageSizeMB int64
	// Sessions
	SessionCacheSize int
	SessionTTL       time.Duration
	// Memory Cache
	MemoryCacheSize       int
	MemoryCacheLimitBytes int64
	CacheTTL              time.Duration
	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// Security
	RateLimit int // Refreshes per second per client
	// S3 image sources
	S3Endpoint       string
	S3Region         string
	S3Bucket         string
	S3BackupBucket   string
	S3AccessKey      string
	S3SecretKey      string
	S3ForcePathStyle bool
	// Observability
	EnableMetrics bool
	EnableTracing bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() Config {
	godotenv.Load()

	return Config{
		Port:                  getEnv("PORT", "8080"),
		Debug:                 getEnvBool("DEBUG", false),
		LogFormat:             getEnv("LOG_FORMAT", "json"),
		OptionsPath:           os.Getenv("OPTIONS_PATH"),
		StaticDir:             os.Getenv("STATIC_DIR"),
		PublicOrigin:          os.Getenv("PUBLIC_ORIGIN"),
		ImageWait:             time.Duration(getEnvInt("IMAGE_WAIT_MS", 3000)) * time.Millisecond,
		CatalogBaseURL:        getEnv("CATALOG_BASE_URL", "https://rjl.codes/error/404/images/"),
		CatalogSize:           getEnvInt("CATALOG_SIZE", 123),
		WatermarkFontPath:     os.Getenv("WATERMARK_FONT_PATH"),
		WatermarkFontSize:     getEnvFloat("WATERMARK_FONT_SIZE", 20),
		Blurhash:              getEnvBool("BLURHASH_PLACEHOLDER", false),
		LoadTimeout:           time.Duration(getEnvInt("LOAD_TIMEOUT_SECS", 30)) * time.Second,
		MaxImageSizeMB:        int64(getEnvInt("MAX_IMAGE_SIZE_MB", 20)),
		SessionCacheSize:      getEnvInt("SESSION_CACHE_SIZE", 10000),
		SessionTTL:            time.Duration(getEnvInt("SESSION_TTL_MINS", 30)) * time.Minute,
		MemoryCacheSize:       getEnvInt("MEMORY_CACHE_SIZE", 100),
		MemoryCacheLimitBytes: int64(getEnvInt("MEMORY_CACHE_LIMIT_BYTES", 0)),
		CacheTTL:              time.Duration(getEnvInt("CACHE_TTL_MINS", 30)) * time.Minute,
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               getEnvInt("REDIS_DB", 0),
		RateLimit:             getEnvInt("RATE_LIMIT", 5),
		S3Endpoint:            os.Getenv("S3_ENDPOINT"),
		S3Region:              getEnv("S3_REGION", "auto"),
		S3Bucket:              os.Getenv("S3_BUCKET"),
		S3BackupBucket:        os.Getenv("S3_BACKUP_BUCKET"),
		S3AccessKey:           os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:           os.Getenv("S3_SECRET_KEY"),
		S3ForcePathStyle:      getEnvBool("S3_FORCE_PATH_STYLE", false),
		EnableMetrics:         getEnvBool("ENABLE_METRICS", false),
		EnableTracing:         getEnvBool("ENABLE_TRACING", false),
	}
}

// S3Enabled reports whether s3:// sources can be resolved.
func (c Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

// RedisAddrs splits REDIS_ADDR on commas.
func (c Config) RedisAddrs() []string {
	if c.RedisAddr == "" {
		return nil
	}
	return splitString(c.RedisAddr)
}

// Helpers
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func splitString(s string) []string {
	// Simple split by comma
	var result []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			result = append(result, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		result = append(result, s[start:])
	}
	return result
}
func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		val, err := strconv.ParseBool(value)
		if err == nil {
			return val
		}
	}
	return fallback
}
func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		val, err := strconv.Atoi(value)
		if err == nil {
			return val
		}
	}
	return fallback
}
func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		val, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return val
		}
	}
	return fallback
}
