package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Worker    WorkerConfig
	Analysis  AnalysisConfig
	Render    RenderConfig
	Media     MediaConfig
	R2        R2Config
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type WorkerConfig struct {
	Concurrency  int
	JobRetention time.Duration
}

type AnalysisConfig struct {
	BaseURL string
	APIKey  string
}

type RenderConfig struct {
	BaseURL string
	APIKey  string
}

type MediaConfig struct {
	BaseURL string
	APIKey  string
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type RateLimitConfig struct {
	TransformPerHour int
	ExportPerHour    int
	TemplatePerHour  int
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "3000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("worker.concurrency", 4)
	viper.SetDefault("worker.job_retention_hours", 24)
	viper.SetDefault("analysis.base_url", "")
	viper.SetDefault("analysis.api_key", "")
	viper.SetDefault("render.base_url", "")
	viper.SetDefault("render.api_key", "")
	viper.SetDefault("media.base_url", "")
	viper.SetDefault("media.api_key", "")
	viper.SetDefault("r2.account_id", "")
	viper.SetDefault("r2.access_key_id", "")
	viper.SetDefault("r2.secret_access_key", "")
	viper.SetDefault("r2.bucket_name", "skify-media")
	viper.SetDefault("r2.public_url", "")
	viper.SetDefault("ratelimit.transform_per_hour", 10)
	viper.SetDefault("ratelimit.export_per_hour", 20)
	viper.SetDefault("ratelimit.template_per_hour", 60)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetString("server.port"),
			Env:  viper.GetString("server.env"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		Worker: WorkerConfig{
			Concurrency:  viper.GetInt("worker.concurrency"),
			JobRetention: time.Duration(viper.GetInt("worker.job_retention_hours")) * time.Hour,
		},
		Analysis: AnalysisConfig{
			BaseURL: viper.GetString("analysis.base_url"),
			APIKey:  viper.GetString("analysis.api_key"),
		},
		Render: RenderConfig{
			BaseURL: viper.GetString("render.base_url"),
			APIKey:  viper.GetString("render.api_key"),
		},
		Media: MediaConfig{
			BaseURL: viper.GetString("media.base_url"),
			APIKey:  viper.GetString("media.api_key"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
		RateLimit: RateLimitConfig{
			TransformPerHour: viper.GetInt("ratelimit.transform_per_hour"),
			ExportPerHour:    viper.GetInt("ratelimit.export_per_hour"),
			TemplatePerHour:  viper.GetInt("ratelimit.template_per_hour"),
		},
	}

	return cfg, nil
}
