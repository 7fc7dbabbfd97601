package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Delivery DeliveryConfig `mapstructure:"delivery"`
	Features FeatureConfig  `mapstructure:"features"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type AuthConfig struct {
	JWTSecret    string `mapstructure:"jwt_secret"`
	ExpiryHours  int    `mapstructure:"expiry_hours"`
	APIKeyPrefix string `mapstructure:"api_key_prefix"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// DeliveryConfig tunes the webhook delivery subsystem.
type DeliveryConfig struct {
	DefaultRetryCount     int           `mapstructure:"default_retry_count"`
	DefaultTimeoutSeconds int           `mapstructure:"default_timeout_seconds"`
	MaxBackoff            time.Duration `mapstructure:"max_backoff"`
	LogRetention          time.Duration `mapstructure:"log_retention"`
}

type FeatureConfig struct {
	IdentityProviderEnabled bool `mapstructure:"identity_provider_enabled"`
	WebhooksEnabled         bool `mapstructure:"webhooks_enabled"`
	EmailEnabled            bool `mapstructure:"email_enabled"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/app")
	viper.AddConfigPath("/app/config")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Environment overrides for containerized deployments
	if host := os.Getenv("DB_HOST"); host != "" {
		config.Database.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		config.Database.Port, _ = strconv.Atoi(port)
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		config.Redis.URL = url
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.Auth.JWTSecret = secret
	}

	applyDefaults(&config)

	return &config, nil
}

func applyDefaults(c *Config) {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Auth.APIKeyPrefix == "" {
		c.Auth.APIKeyPrefix = "rwa_"
	}
	if c.Delivery.DefaultRetryCount == 0 {
		c.Delivery.DefaultRetryCount = 3
	}
	if c.Delivery.DefaultTimeoutSeconds == 0 {
		c.Delivery.DefaultTimeoutSeconds = 10
	}
	if c.Delivery.MaxBackoff == 0 {
		c.Delivery.MaxBackoff = 60 * time.Second
	}
	if c.Delivery.LogRetention == 0 {
		c.Delivery.LogRetention = 30 * 24 * time.Hour
	}
}
