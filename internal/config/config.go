package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	DynamoDB  DynamoDBConfig
	JWT       JWTConfig
	OTP       OTPConfig
	SMS       SMSConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type RedisConfig struct {
	Endpoint string
	Password string
	DB       int
}

type DynamoDBConfig struct {
	Endpoint  string
	Region    string
	TableName string
}

type JWTConfig struct {
	SecretKey   string
	TokenExpiry time.Duration
}

type OTPConfig struct {
	CodeTTL        time.Duration
	ResendCooldown time.Duration
	MaxAttempts    int
}

type SMSConfig struct {
	SecretID   string
	SecretKey  string
	Region     string
	AppID      string
	SignName   string
	TemplateID string
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

func Load() (*Config, error) {
	// Optional .env for local development; real deployments use the environment.
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8088"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Redis: RedisConfig{
			Endpoint: getEnv("REDIS_ENDPOINT", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		DynamoDB: DynamoDBConfig{
			Endpoint:  getEnv("DYNAMODB_ENDPOINT", ""),
			Region:    getEnv("DYNAMODB_REGION", "us-east-1"),
			TableName: getEnv("DYNAMODB_TABLE_NAME", "SmsAuthTable"),
		},
		JWT: JWTConfig{
			SecretKey:   getEnv("JWT_SECRET_KEY", ""),
			TokenExpiry: getEnvAsDuration("JWT_TOKEN_EXPIRY", 7*24*time.Hour),
		},
		OTP: OTPConfig{
			CodeTTL:        getEnvAsSeconds("CODE_TTL_SECONDS", 300),
			ResendCooldown: getEnvAsSeconds("CODE_RESEND_SECONDS", 60),
			MaxAttempts:    getEnvAsInt("MAX_VERIFY_ATTEMPTS", 5),
		},
		SMS: SMSConfig{
			SecretID:   getEnv("TENCENT_SMS_SECRET_ID", ""),
			SecretKey:  getEnv("TENCENT_SMS_SECRET_KEY", ""),
			Region:     getEnv("TENCENT_SMS_REGION", "ap-guangzhou"),
			AppID:      getEnv("TENCENT_SMS_APP_ID", ""),
			SignName:   getEnv("TENCENT_SMS_SIGN", ""),
			TemplateID: getEnv("TENCENT_SMS_TEMPLATE_ID", ""),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 60),
		},
	}

	if cfg.JWT.SecretKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is required")
	}

	if len(cfg.JWT.SecretKey) < 32 {
		return nil, fmt.Errorf("JWT_SECRET_KEY must be at least 32 bytes (256 bits)")
	}

	if cfg.OTP.CodeTTL <= 0 {
		return nil, fmt.Errorf("CODE_TTL_SECONDS must be positive")
	}

	if cfg.OTP.ResendCooldown <= 0 {
		return nil, fmt.Errorf("CODE_RESEND_SECONDS must be positive")
	}

	if cfg.OTP.MaxAttempts <= 0 {
		return nil, fmt.Errorf("MAX_VERIFY_ATTEMPTS must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsSeconds(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultValue)) * time.Second
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
