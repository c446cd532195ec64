package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                   string
	AppEnv                    string
	AppPort                   string
	DatabaseURL               string
	RedisURL                  string
	NATSURL                   string
	EventSubject              string
	JWTSecret                 string
	OpenAIAPIKey              string
	OpenAIBaseURL             string
	ModerationModel           string
	ModerationTimeout         time.Duration
	ModerationCacheTTL        time.Duration
	WebsocketWriteTimeout     time.Duration
	WebsocketSendBuffer       int
	CloudinaryCloudName       string
	CloudinaryAPIKey          string
	CloudinaryAPISecret       string
	CloudinaryUploadFolder    string
	UploadMaxSizeMB           int
	MessageRateLimitPerMinute int
	CORSAllowOrigins          string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GUIDANCE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Campus Guidance API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "5000")
	v.SetDefault("nats.subject", "guidance.message.created")
	v.SetDefault("moderation.model", "gpt-4o-mini")
	v.SetDefault("moderation.timeout", "10s")
	v.SetDefault("moderation.cache_ttl", "24h")
	v.SetDefault("ws.write_timeout", "5s")
	v.SetDefault("ws.send_buffer", 32)
	v.SetDefault("cloudinary.folder", "guidance/resumes")
	v.SetDefault("upload.max_size_mb", 5)
	v.SetDefault("rate_limit.messages_per_minute", 20)
	v.SetDefault("cors.allow_origins", "*")

	moderationTimeout, err := parseDuration(v, "moderation.timeout", 10*time.Second)
	if err != nil {
		return Config{}, err
	}
	cacheTTL, err := parseDuration(v, "moderation.cache_ttl", 24*time.Hour)
	if err != nil {
		return Config{}, err
	}
	writeTimeout, err := parseDuration(v, "ws.write_timeout", 5*time.Second)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:                   v.GetString("app.name"),
		AppEnv:                    v.GetString("app.env"),
		AppPort:                   v.GetString("app.port"),
		DatabaseURL:               v.GetString("database.url"),
		RedisURL:                  v.GetString("redis.url"),
		NATSURL:                   v.GetString("nats.url"),
		EventSubject:              v.GetString("nats.subject"),
		JWTSecret:                 v.GetString("jwt.secret"),
		OpenAIAPIKey:              v.GetString("openai_api_key"),
		OpenAIBaseURL:             v.GetString("openai_base_url"),
		ModerationModel:           v.GetString("moderation.model"),
		ModerationTimeout:         moderationTimeout,
		ModerationCacheTTL:        cacheTTL,
		WebsocketWriteTimeout:     writeTimeout,
		WebsocketSendBuffer:       v.GetInt("ws.send_buffer"),
		CloudinaryCloudName:       v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:          v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:       v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder:    v.GetString("cloudinary.folder"),
		UploadMaxSizeMB:           v.GetInt("upload.max_size_mb"),
		MessageRateLimitPerMinute: v.GetInt("rate_limit.messages_per_minute"),
		CORSAllowOrigins:          v.GetString("cors.allow_origins"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.OpenAIAPIKey == "" {
		return Config{}, fmt.Errorf("openai api key must be provided for content moderation")
	}

	if cfg.WebsocketSendBuffer <= 0 {
		cfg.WebsocketSendBuffer = 32
	}

	if cfg.UploadMaxSizeMB <= 0 {
		cfg.UploadMaxSizeMB = 5
	}

	if cfg.MessageRateLimitPerMinute <= 0 {
		cfg.MessageRateLimitPerMinute = 20
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if parsed <= 0 {
		return fallback, nil
	}

	return parsed, nil
}
