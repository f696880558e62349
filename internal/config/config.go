package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the portal API.
type Config struct {
	AppName             string
	AppEnv              string
	AppPort             string
	DatabaseDriver      string
	DatabaseURL         string
	RedisURL            string
	NATSURL             string
	EventsSubject       string
	JWTSecret           string
	JWTTTL              time.Duration
	StorageProvider     string
	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	CloudinaryFolder    string
	MinioEndpoint       string
	MinioAccessKey      string
	MinioSecretKey      string
	MinioBucket         string
	MinioUseSSL         bool
	MinioPublicURL      string
	StatsCacheTTL       time.Duration
	UploadMaxSizeMB     int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// UploadMaxBytes converts the configured upload ceiling to bytes.
func (c Config) UploadMaxBytes() int64 {
	return int64(c.UploadMaxSizeMB) * 1024 * 1024
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("PORTAL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Assignment Portal API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("events.subject", "portal.events")
	v.SetDefault("jwt.ttl", "24h")
	v.SetDefault("storage.provider", "cloudinary")
	v.SetDefault("cloudinary.folder", "assignment-portal")
	v.SetDefault("minio.bucket", "assignment-portal")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("stats.cache_ttl", "5m")
	v.SetDefault("upload.max_size_mb", 10)

	jwtTTL, err := parseDuration(v, "jwt.ttl", "24h")
	if err != nil {
		return Config{}, fmt.Errorf("invalid jwt ttl: %w", err)
	}

	statsTTL, err := parseDuration(v, "stats.cache_ttl", "5m")
	if err != nil {
		return Config{}, fmt.Errorf("invalid stats cache ttl: %w", err)
	}

	cfg := Config{
		AppName:             v.GetString("app.name"),
		AppEnv:              v.GetString("app.env"),
		AppPort:             v.GetString("app.port"),
		DatabaseDriver:      strings.ToLower(v.GetString("database.driver")),
		DatabaseURL:         v.GetString("database.url"),
		RedisURL:            v.GetString("redis.url"),
		NATSURL:             v.GetString("nats.url"),
		EventsSubject:       v.GetString("events.subject"),
		JWTSecret:           v.GetString("jwt.secret"),
		JWTTTL:              jwtTTL,
		StorageProvider:     strings.ToLower(v.GetString("storage.provider")),
		CloudinaryCloudName: v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:    v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret: v.GetString("cloudinary.api_secret"),
		CloudinaryFolder:    v.GetString("cloudinary.folder"),
		MinioEndpoint:       v.GetString("minio.endpoint"),
		MinioAccessKey:      v.GetString("minio.access_key"),
		MinioSecretKey:      v.GetString("minio.secret_key"),
		MinioBucket:         v.GetString("minio.bucket"),
		MinioUseSSL:         v.GetBool("minio.use_ssl"),
		MinioPublicURL:      v.GetString("minio.public_url"),
		StatsCacheTTL:       statsTTL,
		UploadMaxSizeMB:     v.GetInt("upload.max_size_mb"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	switch cfg.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return Config{}, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}

	switch cfg.StorageProvider {
	case "cloudinary", "minio":
	default:
		return Config{}, fmt.Errorf("unsupported storage provider %q", cfg.StorageProvider)
	}

	if cfg.UploadMaxSizeMB <= 0 {
		cfg.UploadMaxSizeMB = 10
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key, fallback string) (time.Duration, error) {
	raw := v.GetString(key)
	if raw == "" {
		raw = fallback
	}
	return time.ParseDuration(raw)
}
