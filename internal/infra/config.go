package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv        string
	Port          string
	PublicBaseURL string

	DatabaseURL string
	DBTimeout   time.Duration

	UploadDir      string
	EnhancedDir    string
	MaxUploadBytes int64

	B2Endpoint       string
	B2Region         string
	B2Bucket         string
	B2KeyID          string
	B2ApplicationKey string
	B2UseSSL         bool
	StorageTimeout   time.Duration

	RunPodBaseURL       string
	RunPodEndpointID    string
	RunPodAPIKey        string
	RunPodSubmitTimeout time.Duration
	RunPodStatusTimeout time.Duration

	QueueBackend     string
	QueueWorkers     int
	QueueSize        int
	QueueMaxAttempts int
	TaskTimeout      time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisQueueKey string
	CacheTTL      time.Duration

	CORSAllowedOrigins []string
	RateLimitPerMin    int
	GeoIPDBPath        string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

const (
	QueueBackendPool  = "pool"
	QueueBackendRedis = "redis"
)

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "5000")
	cfg := &Config{
		AppEnv:        getEnv("APP_ENV", "development"),
		Port:          port,
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:"+port), "/"),

		DatabaseURL: getEnv("DIRECT_URL", os.Getenv("DATABASE_URL")),
		DBTimeout:   getEnvDuration("DB_TIMEOUT", 5*time.Second),

		UploadDir:      getEnv("UPLOAD_DIR", "./uploads"),
		EnhancedDir:    getEnv("ENHANCED_DIR", "./enhanced"),
		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20)),

		B2Endpoint:       os.Getenv("B2_ENDPOINT"),
		B2Region:         os.Getenv("B2_REGION"),
		B2Bucket:         os.Getenv("B2_BUCKET"),
		B2KeyID:          os.Getenv("B2_KEY_ID"),
		B2ApplicationKey: os.Getenv("B2_APPLICATION_KEY"),
		B2UseSSL:         getEnvBool("B2_USE_SSL", true),
		StorageTimeout:   getEnvDuration("STORAGE_TIMEOUT", 30*time.Second),

		RunPodBaseURL:       getEnv("RUNPOD_BASE_URL", "https://api.runpod.ai/v2"),
		RunPodEndpointID:    os.Getenv("RUNPOD_ENDPOINT_ID"),
		RunPodAPIKey:        os.Getenv("RUNPOD_API_KEY"),
		RunPodSubmitTimeout: getEnvDuration("RUNPOD_SUBMIT_TIMEOUT", 30*time.Second),
		RunPodStatusTimeout: getEnvDuration("RUNPOD_STATUS_TIMEOUT", 15*time.Second),

		QueueBackend:     strings.ToLower(getEnv("QUEUE_BACKEND", QueueBackendPool)),
		QueueWorkers:     getEnvInt("QUEUE_WORKERS", 4),
		QueueSize:        getEnvInt("QUEUE_SIZE", 64),
		QueueMaxAttempts: getEnvInt("QUEUE_MAX_ATTEMPTS", 3),
		TaskTimeout:      getEnvDuration("TASK_TIMEOUT", 2*time.Minute),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisQueueKey: getEnv("REDIS_QUEUE_KEY", "skinstudio:tasks"),
		CacheTTL:      getEnvDuration("CACHE_TTL", 30*time.Second),

		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 30)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 60)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}

	switch cfg.QueueBackend {
	case QueueBackendPool:
	case QueueBackendRedis:
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("REDIS_ADDR is required when QUEUE_BACKEND=redis")
		}
	default:
		return nil, fmt.Errorf("unsupported QUEUE_BACKEND %q", cfg.QueueBackend)
	}

	return cfg, nil
}

// B2Configured reports whether remote object storage credentials are present.
func (c *Config) B2Configured() bool {
	return c.B2Endpoint != "" && c.B2Bucket != "" && c.B2KeyID != "" && c.B2ApplicationKey != ""
}

// RunPodConfigured reports whether the remote inference provider can be called.
func (c *Config) RunPodConfigured() bool {
	return c.RunPodEndpointID != "" && c.RunPodAPIKey != ""
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
