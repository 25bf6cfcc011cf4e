package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	CORS       CORSConfig       `mapstructure:"cors"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Model      ModelConfig      `mapstructure:"model"`
	Callback   CallbackConfig   `mapstructure:"callback"`
	Engagement EngagementConfig `mapstructure:"engagement"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Version     string `mapstructure:"version"`
	Debug       bool   `mapstructure:"debug"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	HTTPPort        int           `mapstructure:"http_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig holds the inbound API key the honeypot platform authenticates with
type AuthConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	TimeFormat string `mapstructure:"time_format"`
}

type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// ModelConfig holds the upstream LLM provider configuration.
// The provider is an OpenRouter-style chat-completions endpoint.
type ModelConfig struct {
	APIURL          string        `mapstructure:"api_url"`
	APIKey          string        `mapstructure:"api_key"`
	Model           string        `mapstructure:"model"`
	Temperature     float64       `mapstructure:"temperature"`
	ReplyTimeout    time.Duration `mapstructure:"reply_timeout"`
	AnalysisTimeout time.Duration `mapstructure:"analysis_timeout"`
}

// CallbackConfig holds the outbound intelligence delivery configuration
type CallbackConfig struct {
	URL           string        `mapstructure:"url"`
	Secret        string        `mapstructure:"secret"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	BackoffFactor float64       `mapstructure:"backoff_factor"`
	MaxRetryDelay time.Duration `mapstructure:"max_retry_delay"`
	QueueSize     int           `mapstructure:"queue_size"`
	WorkerCount   int           `mapstructure:"worker_count"`
}

// EngagementConfig tunes the scammer-facing conversation loop
type EngagementConfig struct {
	FallbackReply   string        `mapstructure:"fallback_reply"`
	SessionTTL      time.Duration `mapstructure:"session_ttl"`
	MaxHistoryTurns int           `mapstructure:"max_history_turns"`
	DefaultChannel  string        `mapstructure:"default_channel"`
	DefaultLanguage string        `mapstructure:"default_language"`
	DefaultLocale   string        `mapstructure:"default_locale"`
}

// Load reads configuration from file and environment variables. A missing
// config file is not an error; env vars and defaults still apply so the
// honeypot can boot from environment alone.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/scamlure-lab")
	}

	// Environment variables
	v.SetEnvPrefix("SCAMLURE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind nested env vars explicitly (viper doesn't auto-bind nested struct fields)
	v.BindEnv("auth.api_key", "SCAMLURE_AUTH_API_KEY")
	v.BindEnv("model.api_url", "SCAMLURE_MODEL_API_URL")
	v.BindEnv("model.api_key", "SCAMLURE_MODEL_API_KEY", "OPENROUTER_API_KEY")
	v.BindEnv("model.model", "SCAMLURE_MODEL_MODEL")
	v.BindEnv("callback.url", "SCAMLURE_CALLBACK_URL")
	v.BindEnv("callback.secret", "SCAMLURE_CALLBACK_SECRET")
	v.BindEnv("redis.enabled", "SCAMLURE_REDIS_ENABLED")
	v.BindEnv("redis.host", "SCAMLURE_REDIS_HOST")
	v.BindEnv("redis.port", "SCAMLURE_REDIS_PORT")
	v.BindEnv("redis.password", "SCAMLURE_REDIS_PASSWORD")
	v.BindEnv("database.enabled", "SCAMLURE_DATABASE_ENABLED")
	v.BindEnv("database.host", "SCAMLURE_DATABASE_HOST")
	v.BindEnv("database.port", "SCAMLURE_DATABASE_PORT")
	v.BindEnv("database.user", "SCAMLURE_DATABASE_USER")
	v.BindEnv("database.password", "SCAMLURE_DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "SCAMLURE_DATABASE_DBNAME")
	v.BindEnv("app.environment", "SCAMLURE_APP_ENVIRONMENT")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// LoadDefault loads configuration with default path
func LoadDefault() (*Config, error) {
	return Load("")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "scamlure-lab")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.version", "1.0.0")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.requests_per_minute", 120)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.key_prefix", "scamlure:")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("model.api_url", "https://openrouter.ai/api/v1/chat/completions")
	v.SetDefault("model.model", "mistralai/mistral-7b-instruct")
	v.SetDefault("model.temperature", 0.0)
	v.SetDefault("model.reply_timeout", 800*time.Millisecond)
	v.SetDefault("model.analysis_timeout", 20*time.Second)

	v.SetDefault("callback.timeout", 10*time.Second)
	v.SetDefault("callback.max_attempts", 3)
	v.SetDefault("callback.retry_interval", 500*time.Millisecond)
	v.SetDefault("callback.backoff_factor", 2.0)
	v.SetDefault("callback.max_retry_delay", 30*time.Second)
	v.SetDefault("callback.queue_size", 1000)
	v.SetDefault("callback.worker_count", 5)

	v.SetDefault("engagement.fallback_reply", "I'm sorry, I don't understand. What do I need to do exactly?")
	v.SetDefault("engagement.session_ttl", 2*time.Hour)
	v.SetDefault("engagement.max_history_turns", 200)
	v.SetDefault("engagement.default_channel", "SMS")
	v.SetDefault("engagement.default_language", "English")
	v.SetDefault("engagement.default_locale", "IN")
}
