package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Auth     AuthConfig     `mapstructure:"auth"`
	NATSURL  string         `mapstructure:"nats_url"`
}

type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           string   `mapstructure:"port"`
	Mode           string   `mapstructure:"mode"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN returns the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	// Secret signs every token. No default exists on purpose: the process
	// refuses to start without one.
	Secret string `mapstructure:"secret"`
}

type SMTPConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	FromEmail string `mapstructure:"from_email"`
	FromName  string `mapstructure:"from_name"`
}

type AuthConfig struct {
	// MinResponseTimeMs is the latency floor for failed login attempts.
	MinResponseTimeMs int `mapstructure:"min_response_time_ms"`
}

// DevMode reports whether the service runs in development mode, where
// verification codes and reset tokens are echoed in responses.
func (c *Config) DevMode() bool {
	return c.Server.Mode != "release"
}

// LoadConfig reads configuration from defaults and environment variables.
// It fails when JWT_SECRET is unset rather than substituting a known value.
func LoadConfig() (*Config, error) {
	config := &Config{}

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "3080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("server.allowed_origins", []string{
		"http://localhost:3000", // Admin dashboard
		"http://localhost:3001", // Client portal
	})

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", "5432")
	viper.SetDefault("database.user", "dev")
	viper.SetDefault("database.password", "devpass")
	viper.SetDefault("database.name", "crm")
	viper.SetDefault("database.sslmode", "disable")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("smtp.host", "smtp.gmail.com")
	viper.SetDefault("smtp.port", 587)
	viper.SetDefault("smtp.username", "")
	viper.SetDefault("smtp.password", "")
	viper.SetDefault("smtp.from_email", "noreply@localhost")
	viper.SetDefault("smtp.from_name", "CRM")

	viper.SetDefault("auth.min_response_time_ms", 1000)
	viper.SetDefault("nats_url", "")

	viper.AutomaticEnv()

	// Override with environment variables if they exist
	if host := os.Getenv("SERVER_HOST"); host != "" {
		viper.Set("server.host", host)
	}
	if port := os.Getenv("PORT"); port != "" {
		viper.Set("server.port", port)
	}
	if mode := os.Getenv("GIN_MODE"); mode != "" {
		viper.Set("server.mode", mode)
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		viper.Set("server.allowed_origins", strings.Split(origins, ","))
	}

	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		viper.Set("database.host", dbHost)
	}
	if dbPort := os.Getenv("DB_PORT"); dbPort != "" {
		viper.Set("database.port", dbPort)
	}
	if dbUser := os.Getenv("DB_USER"); dbUser != "" {
		viper.Set("database.user", dbUser)
	}
	if dbPassword := os.Getenv("DB_PASSWORD"); dbPassword != "" {
		viper.Set("database.password", dbPassword)
	}
	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		viper.Set("database.name", dbName)
	}
	if dbSSLMode := os.Getenv("DB_SSLMODE"); dbSSLMode != "" {
		viper.Set("database.sslmode", dbSSLMode)
	}

	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		viper.Set("redis.host", redisHost)
	}
	if redisPort := os.Getenv("REDIS_PORT"); redisPort != "" {
		viper.Set("redis.port", redisPort)
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		viper.Set("redis.password", redisPassword)
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		viper.Set("jwt.secret", secret)
	}

	if smtpHost := os.Getenv("SMTP_HOST"); smtpHost != "" {
		viper.Set("smtp.host", smtpHost)
	}
	if smtpPort := os.Getenv("SMTP_PORT"); smtpPort != "" {
		viper.Set("smtp.port", smtpPort)
	}
	if smtpUser := os.Getenv("SMTP_USERNAME"); smtpUser != "" {
		viper.Set("smtp.username", smtpUser)
	}
	if smtpPassword := os.Getenv("SMTP_PASSWORD"); smtpPassword != "" {
		viper.Set("smtp.password", smtpPassword)
	}
	if fromEmail := os.Getenv("FROM_EMAIL"); fromEmail != "" {
		viper.Set("smtp.from_email", fromEmail)
	}
	if fromName := os.Getenv("FROM_NAME"); fromName != "" {
		viper.Set("smtp.from_name", fromName)
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		viper.Set("nats_url", natsURL)
	}
	if minResponse := os.Getenv("MIN_RESPONSE_TIME_MS"); minResponse != "" {
		viper.Set("auth.min_response_time_ms", minResponse)
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.JWT.Secret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return config, nil
}
