package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Mailbox    MailboxConfig    `mapstructure:"mailbox"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	LogLevel   string           `mapstructure:"log_level"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// RedisConfig holds the dedup cache backing store configuration
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MailboxConfig holds mailbox access configuration for the email fetchers
type MailboxConfig struct {
	ClientID      string `mapstructure:"client_id"`
	ClientSecret  string `mapstructure:"client_secret"`
	RefreshToken  string `mapstructure:"refresh_token"`
	UserEmail     string `mapstructure:"user_email"`
	UseIMAP       bool   `mapstructure:"use_imap"`
	IMAPHost      string `mapstructure:"imap_host"`
	IMAPPort      int    `mapstructure:"imap_port"`
	IMAPUser      string `mapstructure:"imap_user"`
	IMAPPassword  string `mapstructure:"imap_password"`
	SubjectFilter string `mapstructure:"subject_filter"`
}

// ExtractionConfig holds AI extraction backend configuration
type ExtractionConfig struct {
	Endpoint           string        `mapstructure:"endpoint"`
	APIKey             string        `mapstructure:"api_key"`
	Model              string        `mapstructure:"model"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	MaxRetries         int           `mapstructure:"max_retries"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute"`
	MaxContextChars    int           `mapstructure:"max_context_chars"`
}

// PipelineConfig holds batch ingestion pipeline configuration
type PipelineConfig struct {
	MaxBatchSize int           `mapstructure:"max_batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	MaxWorkers   int           `mapstructure:"max_workers"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	DedupTTL     time.Duration `mapstructure:"dedup_ttl"`
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	IntervalMinutes int `mapstructure:"interval_minutes"`
}

// LoadConfig loads configuration from environment variables and config file
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Environment variables override config file
	viper.AutomaticEnv()
	bindEnvVars()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("log_level", "info")

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)

	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("mailbox.use_imap", false)
	viper.SetDefault("mailbox.imap_host", "imap.gmail.com")
	viper.SetDefault("mailbox.imap_port", 993)

	viper.SetDefault("extraction.endpoint", "https://api.openai.com/v1/chat/completions")
	viper.SetDefault("extraction.model", "gpt-4-1106-preview")
	viper.SetDefault("extraction.request_timeout", "60s")
	viper.SetDefault("extraction.max_retries", 3)
	viper.SetDefault("extraction.rate_limit_per_minute", 100)
	viper.SetDefault("extraction.max_context_chars", 24000)

	viper.SetDefault("pipeline.max_batch_size", 50)
	viper.SetDefault("pipeline.batch_timeout", "5m")
	viper.SetDefault("pipeline.max_workers", 4)
	viper.SetDefault("pipeline.max_attempts", 3)
	viper.SetDefault("pipeline.dedup_ttl", "168h")

	viper.SetDefault("scheduler.interval_minutes", 5)
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars() {
	viper.BindEnv("log_level", "LOG_LEVEL")

	// Server
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	// Database
	viper.BindEnv("database.host", "DB_HOST")
	viper.BindEnv("database.port", "DB_PORT")
	viper.BindEnv("database.user", "DB_USER")
	viper.BindEnv("database.password", "DB_PASSWORD")
	viper.BindEnv("database.dbname", "DB_NAME")

	// Redis
	viper.BindEnv("redis.address", "REDIS_ADDRESS")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	// Mailbox
	viper.BindEnv("mailbox.client_id", "MAILBOX_CLIENT_ID")
	viper.BindEnv("mailbox.client_secret", "MAILBOX_CLIENT_SECRET")
	viper.BindEnv("mailbox.refresh_token", "MAILBOX_REFRESH_TOKEN")
	viper.BindEnv("mailbox.user_email", "MAILBOX_USER_EMAIL")
	viper.BindEnv("mailbox.use_imap", "MAILBOX_USE_IMAP")
	viper.BindEnv("mailbox.imap_host", "MAILBOX_IMAP_HOST")
	viper.BindEnv("mailbox.imap_port", "MAILBOX_IMAP_PORT")
	viper.BindEnv("mailbox.imap_user", "MAILBOX_IMAP_USER")
	viper.BindEnv("mailbox.imap_password", "MAILBOX_IMAP_PASSWORD")
	viper.BindEnv("mailbox.subject_filter", "MAILBOX_SUBJECT_FILTER")

	// Extraction
	viper.BindEnv("extraction.endpoint", "EXTRACTION_ENDPOINT")
	viper.BindEnv("extraction.api_key", "EXTRACTION_API_KEY")
	viper.BindEnv("extraction.model", "EXTRACTION_MODEL")
	viper.BindEnv("extraction.request_timeout", "EXTRACTION_REQUEST_TIMEOUT")
	viper.BindEnv("extraction.max_retries", "EXTRACTION_MAX_RETRIES")
	viper.BindEnv("extraction.rate_limit_per_minute", "EXTRACTION_RATE_LIMIT_PER_MINUTE")
	viper.BindEnv("extraction.max_context_chars", "EXTRACTION_MAX_CONTEXT_CHARS")

	// Pipeline
	viper.BindEnv("pipeline.max_batch_size", "MAX_EMAILS_PER_BATCH")
	viper.BindEnv("pipeline.batch_timeout", "EMAIL_PROCESSING_TIMEOUT")
	viper.BindEnv("pipeline.max_workers", "MAX_WORKERS")
	viper.BindEnv("pipeline.max_attempts", "PIPELINE_MAX_ATTEMPTS")
	viper.BindEnv("pipeline.dedup_ttl", "DEDUP_TTL")

	// Scheduler
	viper.BindEnv("scheduler.interval_minutes", "SCHEDULER_INTERVAL_MINUTES")
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
		return fmt.Errorf("database host, user, and dbname are required")
	}

	if c.Redis.Address == "" {
		return fmt.Errorf("redis address is required")
	}

	if !c.Mailbox.UseIMAP {
		if c.Mailbox.ClientID == "" || c.Mailbox.ClientSecret == "" || c.Mailbox.RefreshToken == "" {
			return fmt.Errorf("mailbox OAuth2 credentials are required when not using IMAP")
		}
	} else {
		if c.Mailbox.IMAPUser == "" || c.Mailbox.IMAPPassword == "" {
			return fmt.Errorf("IMAP credentials are required when using IMAP")
		}
	}

	if c.Extraction.APIKey == "" {
		return fmt.Errorf("extraction API key is required")
	}
	if c.Extraction.MaxRetries < 0 {
		return fmt.Errorf("extraction max retries must not be negative")
	}
	if c.Extraction.RateLimitPerMinute <= 0 {
		return fmt.Errorf("extraction rate limit must be greater than 0")
	}

	if c.Pipeline.MaxBatchSize <= 0 {
		return fmt.Errorf("pipeline max batch size must be greater than 0")
	}
	if c.Pipeline.MaxWorkers <= 0 {
		return fmt.Errorf("pipeline max workers must be greater than 0")
	}
	if c.Pipeline.MaxAttempts <= 0 {
		return fmt.Errorf("pipeline max attempts must be greater than 0")
	}
	if c.Pipeline.DedupTTL <= 0 {
		return fmt.Errorf("pipeline dedup TTL must be greater than 0")
	}

	if c.Scheduler.IntervalMinutes <= 0 {
		return fmt.Errorf("scheduler interval must be greater than 0")
	}

	return nil
}
