package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Run policies for generation work that outlives the inbound request.
const (
	RunPolicyDetach = "detach"
	RunPolicyAbort  = "abort"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	JWTSecret   string
	AdminEmails []string
	GeoIPDBPath string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	RedisAddr        string
	RedisPassword    string
	CORSOrigins      []string

	StorageBackend    string
	StoragePath       string
	StorageBaseURL    string
	StoragePublicURL  string
	MinioEndpoint     string
	MinioAccessKey    string
	MinioSecretKey    string
	MinioBucket       string
	MinioUseSSL       bool
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretKey       string
	S3UsePathStyle    bool
	PersistAttempts   int
	PersistMaxBytes   int64
	PersistFetchLimit time.Duration

	SyncRESTBaseURL        string
	SyncRESTAPIKey         string
	FreepikBaseURL         string
	FreepikAPIKey          string
	FalQueueBaseURL        string
	FalAPIKey              string
	StreamBaseURL          string
	StreamAPIKey           string
	VideoGatewayURL        string
	VideoGatewayAPIKey     string
	ProviderRequestTimeout time.Duration
	ProviderRPS            float64

	ImagePollInterval time.Duration
	ImagePollAttempts int
	VideoPollInterval time.Duration
	VideoPollAttempts int

	RunPolicy       string
	AwaitTimeout    time.Duration
	MaxRuntime      time.Duration
	JobStaleAfter   time.Duration
	JanitorInterval time.Duration
	PlanFeatures    string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        port,
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		AdminEmails: splitList(os.Getenv("ADMIN_EMAILS")),
		GeoIPDBPath: os.Getenv("GEOIP_DB_PATH"),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 330)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		CORSOrigins:      splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),

		StorageBackend:    strings.ToLower(getEnv("STORAGE_BACKEND", "filesystem")),
		StoragePath:       getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:    getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"),
		StoragePublicURL:  os.Getenv("STORAGE_PUBLIC_URL"),
		MinioEndpoint:     os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey:    os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:    os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:       getEnv("MINIO_BUCKET", "genesis-media"),
		MinioUseSSL:       getEnvBool("MINIO_USE_SSL", false),
		S3Bucket:          os.Getenv("S3_BUCKET"),
		S3Region:          getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		S3AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
		S3SecretKey:       os.Getenv("S3_SECRET_ACCESS_KEY"),
		S3UsePathStyle:    getEnvBool("S3_USE_PATH_STYLE", false),
		PersistAttempts:   getEnvInt("PERSIST_ATTEMPTS", 3),
		PersistMaxBytes:   int64(getEnvInt("PERSIST_MAX_MB", 200)) * 1024 * 1024,
		PersistFetchLimit: getEnvDuration("PERSIST_FETCH_TIMEOUT", 60*time.Second),

		SyncRESTBaseURL:        getEnv("SYNC_REST_BASE_URL", "https://api.deathprixai.online/image"),
		SyncRESTAPIKey:         os.Getenv("SYNC_REST_API_KEY"),
		FreepikBaseURL:         getEnv("FREEPIK_BASE_URL", "https://api.freepik.com/v1/ai"),
		FreepikAPIKey:          os.Getenv("FREEPIK_API_KEY"),
		FalQueueBaseURL:        getEnv("FAL_QUEUE_BASE_URL", "https://queue.fal.run"),
		FalAPIKey:              os.Getenv("FAL_API_KEY"),
		StreamBaseURL:          getEnv("STREAM_BASE_URL", "https://router.huggingface.co/hf-inference/models"),
		StreamAPIKey:           os.Getenv("STREAM_API_KEY"),
		VideoGatewayURL:        os.Getenv("VIDEO_GATEWAY_URL"),
		VideoGatewayAPIKey:     os.Getenv("VIDEO_GATEWAY_API_KEY"),
		ProviderRequestTimeout: getEnvDuration("PROVIDER_REQUEST_TIMEOUT", 60*time.Second),
		ProviderRPS:            getEnvFloat("PROVIDER_RPS", 5),

		ImagePollInterval: getEnvDuration("IMAGE_POLL_INTERVAL", 2*time.Second),
		ImagePollAttempts: getEnvInt("IMAGE_POLL_ATTEMPTS", 30),
		VideoPollInterval: getEnvDuration("VIDEO_POLL_INTERVAL", 3*time.Second),
		VideoPollAttempts: getEnvInt("VIDEO_POLL_ATTEMPTS", 100),

		RunPolicy:       strings.ToLower(getEnv("GENERATION_RUN_POLICY", RunPolicyDetach)),
		AwaitTimeout:    getEnvDuration("GENERATION_AWAIT_TIMEOUT", 5*time.Minute),
		MaxRuntime:      getEnvDuration("GENERATION_MAX_RUNTIME", 4*time.Minute),
		JobStaleAfter:   getEnvDuration("JOB_STALE_AFTER", 10*time.Minute),
		JanitorInterval: getEnvDuration("JANITOR_INTERVAL", time.Minute),
		PlanFeatures:    getEnv("PLAN_FEATURES", "premium=image;ultra=image,video"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	switch cfg.RunPolicy {
	case RunPolicyDetach, RunPolicyAbort:
	default:
		return nil, fmt.Errorf("GENERATION_RUN_POLICY must be %q or %q", RunPolicyDetach, RunPolicyAbort)
	}

	if limit := cfg.RunLimit(); limit >= cfg.JobStaleAfter {
		return nil, fmt.Errorf("JOB_STALE_AFTER (%s) must exceed the longest run (%s = poll wall time + GENERATION_MAX_RUNTIME)", cfg.JobStaleAfter, limit)
	}

	switch cfg.StorageBackend {
	case "filesystem", "minio", "s3":
	default:
		return nil, fmt.Errorf("unsupported STORAGE_BACKEND %q", cfg.StorageBackend)
	}

	return cfg, nil
}

// RunLimit is the longest a generation may run: the larger poll wall time
// (interval x (attempts-1)) plus MaxRuntime. A live marker must never reach
// the stale cutoff, so LoadConfig requires RunLimit < JobStaleAfter.
func (c *Config) RunLimit() time.Duration {
	wall := func(interval time.Duration, attempts int) time.Duration {
		if attempts <= 1 {
			return 0
		}
		return interval * time.Duration(attempts-1)
	}
	return max(wall(c.ImagePollInterval, c.ImagePollAttempts), wall(c.VideoPollInterval, c.VideoPollAttempts)) + c.MaxRuntime
}

// IsAdminEmail reports whether the address is listed in ADMIN_EMAILS.
func (c *Config) IsAdminEmail(email string) bool {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return false
	}
	for _, candidate := range c.AdminEmails {
		if strings.ToLower(candidate) == email {
			return true
		}
	}
	return false
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

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
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

// getEnvDuration accepts Go duration strings ("3s") or bare seconds ("3").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	v = strings.TrimSpace(v)
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
