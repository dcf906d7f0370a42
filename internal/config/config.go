package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	RPS     int  `mapstructure:"rps"`
	Burst   int  `mapstructure:"burst"`
}

type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type Config struct {
	ListenAddr  string `mapstructure:"listen_addr"`
	Environment string `mapstructure:"environment"` // "development" or "production"
	LogLevel    string `mapstructure:"log_level"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`

	PostgresDSN string `mapstructure:"postgres_dsn"`

	// Base URL of the external geospatial-analysis service. Login requests,
	// compute requests and KML uploads are forwarded there.
	GeoServiceURL   string        `mapstructure:"geo_service_url"`
	IdentityPath    string        `mapstructure:"identity_path"`
	ComputePath     string        `mapstructure:"compute_path"`
	UploadKMLPath   string        `mapstructure:"upload_kml_path"`
	UpstreamTimeout time.Duration `mapstructure:"upstream_timeout"`

	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	SessionCookie string        `mapstructure:"session_cookie"`

	// Origins allowed to call the API from a browser. The dashboard is a
	// browser client, so CORS is part of the serving surface.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Load reads the yaml config and applies env overrides for secrets and
// addresses so deployments never need credentials on disk.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("redis_addr", "redis:6379")
	v.SetDefault("identity_path", "/auth/login")
	v.SetDefault("compute_path", "/compute")
	v.SetDefault("upload_kml_path", "/upload-kml")
	v.SetDefault("upstream_timeout", 10*time.Second)
	v.SetDefault("session_ttl", 24*time.Hour)
	v.SetDefault("session_cookie", "terraweb_session")
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.rps", 5)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("mqtt.topic", "terraweb/sensors/+/measurements")
	v.SetDefault("mqtt.client_id", "terraweb-server")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Env overrides
	if env := os.Getenv("TERRAWEB_ENV"); env != "" {
		cfg.Environment = env
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.RedisAddr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.RedisPassword = pw
	}
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		cfg.PostgresDSN = dsn
	}
	if url := os.Getenv("GEO_SERVICE_URL"); url != "" {
		cfg.GeoServiceURL = url
	}
	if broker := os.Getenv("MQTT_BROKER"); broker != "" {
		cfg.MQTT.Broker = broker
	}

	if cfg.IsProduction() && cfg.GeoServiceURL == "" {
		return nil, fmt.Errorf("geo_service_url is required in production")
	}

	return &cfg, nil
}
