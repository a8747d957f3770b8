package config

import (
	"errors"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config собирает все настройки процесса. Заполняется один раз при старте и
// передаётся вниз явно, глобального состояния нет.
type Config struct {
	ServerAddress string
	PostgresConn  string

	JWTSecret string
	JWTTTL    time.Duration

	// Адрес локального агента подписи (NCALayer).
	SigningAgentURL     string
	SigningAgentTimeout time.Duration

	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string

	LogLevel string
	Env      string
}

// Load читает конфигурацию из окружения. .env, если он есть, подгружается
// первым; его отсутствие не ошибка.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerAddress:       getEnv("SERVER_ADDRESS", "0.0.0.0:8080"),
		PostgresConn:        os.Getenv("POSTGRES_CONN"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		JWTTTL:              getDuration("JWT_TTL", 24*time.Hour),
		SigningAgentURL:     getEnv("SIGNING_AGENT_URL", "wss://127.0.0.1:13579/"),
		SigningAgentTimeout: getDuration("SIGNING_AGENT_TIMEOUT", 30*time.Second),
		S3Endpoint:          os.Getenv("S3_ENDPOINT"),
		S3Region:            getEnv("S3_REGION", "us-east-1"),
		S3Bucket:            getEnv("S3_BUCKET", "tender-attachments"),
		S3AccessKey:         os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:         os.Getenv("S3_SECRET_KEY"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		Env:                 getEnv("APP_ENV", "development"),
	}

	if cfg.PostgresConn == "" {
		return nil, errors.New("POSTGRES_CONN env variable is not set")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET env variable is not set")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
