package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort string
	AppMode string

	JWTSecret string

	AWSRegion    string
	AWSAccessKey string
	AWSSecretKey string
	AWSEndpoint  string
	S3Bucket     string
	SecretPrefix string

	MaxUploadBytes   int64
	ChunkSizeBytes   int64
	JobTimeout       time.Duration
	ProgressRetain   time.Duration
	PartRetryLimit   int
	PartRetryBackoff time.Duration

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string

	RedisHost     string
	RedisPort     string
	RedisPassword string

	UploadsPerMinute int
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		AppPort: getEnv("APP_PORT", "8080"),
		AppMode: getEnv("APP_MODE", "debug"),

		JWTSecret: getEnv("JWT_SECRET", "change-me"),

		AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpoint:  getEnv("AWS_ENDPOINT", ""),
		S3Bucket:     getEnv("S3_BUCKET_NAME", ""),
		SecretPrefix: getEnv("SECRET_NAME_PREFIX", "uploads"),

		MaxUploadBytes:   getEnvAsInt64("MAX_UPLOAD_BYTES", 500*1024*1024),
		ChunkSizeBytes:   getEnvAsInt64("CHUNK_SIZE_BYTES", 5*1024*1024),
		JobTimeout:       getEnvAsDuration("JOB_TIMEOUT", 30*time.Minute),
		ProgressRetain:   getEnvAsDuration("PROGRESS_RETENTION", 10*time.Minute),
		PartRetryLimit:   getEnvAsInt("PART_RETRY_LIMIT", 3),
		PartRetryBackoff: getEnvAsDuration("PART_RETRY_BACKOFF", 200*time.Millisecond),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "secure_upload"),
		DBPort:     getEnv("DB_PORT", "5432"),

		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		UploadsPerMinute: getEnvAsInt("UPLOADS_PER_MINUTE", 10),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}
