package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Fashn     FashnConfig
	Models    ModelsConfig
	Upload    UploadConfig
	Redis     RedisConfig
	Supabase  SupabaseConfig
	Storage   StorageConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
	// Debug turns on verbose proxy logging and the debug error policy
	// (every failure is a 500 tagged with "debug": true).
	Debug bool
}

type FashnConfig struct {
	APIKey         string
	BaseURL        string
	ModelName      string
	PollInterval   time.Duration
	MaxPolls       int
	RequestTimeout time.Duration
}

// ModelsConfig holds the stock model photos used when the caller sends a
// gender instead of their own photo.
type ModelsConfig struct {
	MaleURL   string
	FemaleURL string
}

type UploadConfig struct {
	MaxSize          int64
	TempDir          string
	StrictValidation bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type SupabaseConfig struct {
	URL       string
	JWTSecret string
	// JWKSURL overrides the default {URL}/auth/v1/.well-known/jwks.json.
	JWKSURL string
}

type StorageConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type RateLimitConfig struct {
	TryOnPerHour int
}

// IsConfigured reports whether the S3-compatible archive is usable.
func (s StorageConfig) IsConfigured() bool {
	return s.Endpoint != "" && s.AccessKeyID != "" && s.SecretAccessKey != "" && s.BucketName != ""
}

// JWKSEndpoint returns the JWKS location for the Supabase project, or ""
// when no project URL is configured.
func (s SupabaseConfig) JWKSEndpoint() string {
	if s.JWKSURL != "" {
		return s.JWKSURL
	}
	if s.URL == "" {
		return ""
	}
	return strings.TrimRight(s.URL, "/") + "/auth/v1/.well-known/jwks.json"
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("FASHN_API_KEY")
	readSecret("REDIS_PASSWORD")
	readSecret("SUPABASE_JWT_SECRET")
	readSecret("STORAGE_ACCESS_KEY_ID")
	readSecret("STORAGE_SECRET_ACCESS_KEY")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables
	v.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = v.BindEnv("server.port", "SERVER_PORT", "PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("server.debug", "DEBUG")
	_ = v.BindEnv("fashn.api_key", "FASHN_API_KEY")
	_ = v.BindEnv("fashn.base_url", "FASHN_BASE_URL")
	_ = v.BindEnv("fashn.model_name", "FASHN_MODEL_NAME")
	_ = v.BindEnv("fashn.poll_interval", "FASHN_POLL_INTERVAL")
	_ = v.BindEnv("fashn.max_polls", "FASHN_MAX_POLLS")
	_ = v.BindEnv("fashn.request_timeout", "FASHN_REQUEST_TIMEOUT")
	_ = v.BindEnv("models.male_url", "MALE_MODEL_URL")
	_ = v.BindEnv("models.female_url", "FEMALE_MODEL_URL")
	_ = v.BindEnv("upload.max_size", "UPLOAD_MAX_SIZE")
	_ = v.BindEnv("upload.temp_dir", "UPLOAD_TEMP_DIR")
	_ = v.BindEnv("upload.strict_validation", "UPLOAD_STRICT_VALIDATION")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("supabase.url", "SUPABASE_URL")
	_ = v.BindEnv("supabase.jwt_secret", "SUPABASE_JWT_SECRET")
	_ = v.BindEnv("supabase.jwks_url", "SUPABASE_JWKS_URL")
	_ = v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	_ = v.BindEnv("storage.region", "STORAGE_REGION")
	_ = v.BindEnv("storage.access_key_id", "STORAGE_ACCESS_KEY_ID")
	_ = v.BindEnv("storage.secret_access_key", "STORAGE_SECRET_ACCESS_KEY")
	_ = v.BindEnv("storage.bucket_name", "STORAGE_BUCKET_NAME")
	_ = v.BindEnv("storage.public_url", "STORAGE_PUBLIC_URL")
	_ = v.BindEnv("ratelimit.tryon_per_hour", "RATELIMIT_TRYON_PER_HOUR")

	// Defaults
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.debug", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("ratelimit.tryon_per_hour", 20)

	// Fashn defaults
	v.SetDefault("fashn.base_url", "https://api.fashn.ai")
	v.SetDefault("fashn.model_name", "tryon-v1.6")
	v.SetDefault("fashn.poll_interval", 3*time.Second)
	v.SetDefault("fashn.max_polls", 30)
	v.SetDefault("fashn.request_timeout", 2*time.Minute)

	// Stock model photos
	v.SetDefault("models.male_url", "https://travelclothingclub.com/models/male-model.jpg")
	v.SetDefault("models.female_url", "https://travelclothingclub.com/models/female-model.jpg")

	// Upload defaults
	v.SetDefault("upload.max_size", 10*1024*1024)
	v.SetDefault("upload.temp_dir", os.TempDir())
	v.SetDefault("upload.strict_validation", true)

	// Storage defaults
	v.SetDefault("storage.region", "auto")
	v.SetDefault("storage.bucket_name", "tryon-results")

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     v.GetString("server.port"),
			Env:      v.GetString("server.env"),
			LogLevel: v.GetString("server.log_level"),
			Debug:    v.GetBool("server.debug"),
		},
		Fashn: FashnConfig{
			APIKey:         v.GetString("fashn.api_key"),
			BaseURL:        strings.TrimRight(v.GetString("fashn.base_url"), "/"),
			ModelName:      v.GetString("fashn.model_name"),
			PollInterval:   v.GetDuration("fashn.poll_interval"),
			MaxPolls:       v.GetInt("fashn.max_polls"),
			RequestTimeout: v.GetDuration("fashn.request_timeout"),
		},
		Models: ModelsConfig{
			MaleURL:   v.GetString("models.male_url"),
			FemaleURL: v.GetString("models.female_url"),
		},
		Upload: UploadConfig{
			MaxSize:          v.GetInt64("upload.max_size"),
			TempDir:          v.GetString("upload.temp_dir"),
			StrictValidation: v.GetBool("upload.strict_validation"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Supabase: SupabaseConfig{
			URL:       v.GetString("supabase.url"),
			JWTSecret: v.GetString("supabase.jwt_secret"),
			JWKSURL:   v.GetString("supabase.jwks_url"),
		},
		Storage: StorageConfig{
			Endpoint:        v.GetString("storage.endpoint"),
			Region:          v.GetString("storage.region"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			BucketName:      v.GetString("storage.bucket_name"),
			PublicURL:       v.GetString("storage.public_url"),
		},
		RateLimit: RateLimitConfig{
			TryOnPerHour: v.GetInt("ratelimit.tryon_per_hour"),
		},
	}

	return cfg, nil
}
