package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Supported storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
)

// Supported manager recipient sources.
const (
	RecipientsCognito = "cognito"
	RecipientsFile    = "file"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Store      StoreConfig
	Database   DatabaseConfig
	DynamoDB   DynamoDBConfig
	Logger     LoggerConfig
	Auth       AuthConfig
	Alerts     AlertsConfig
	Recipients RecipientsConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Host string
	Port int
}

// StoreConfig selects the key-value backend.
type StoreConfig struct {
	Backend        string
	RequestTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration for the postgres backend.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	MaxConnections  int
	MinConnections  int
	MaxConnLifetime int // seconds
}

// DynamoDBConfig holds configuration for the dynamodb backend.
type DynamoDBConfig struct {
	Table    string
	Region   string
	Endpoint string // optional, e.g. DynamoDB Local
}

// LoggerConfig holds logger-related configuration.
type LoggerConfig struct {
	Level  string
	Format string // "json" or "console"
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	JWTSecret string
	Issuer    string // optional
}

// AlertsConfig holds low-stock alert publishing configuration.
type AlertsConfig struct {
	SNSEnabled bool
	TopicARN   string
	Region     string
}

// RecipientsConfig holds configuration for resolving manager emails.
type RecipientsConfig struct {
	Source       string // "cognito" or "file"
	UserPoolID   string
	ManagerGroup string
	Region       string
	Files        []string
	S3Enabled    bool
	S3Bucket     string
	S3Prefix     string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	region := getEnv("AWS_REGION", "us-east-1")

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		Store: StoreConfig{
			Backend:        getEnv("KV_BACKEND", BackendMemory),
			RequestTimeout: getEnvAsDuration("KV_REQUEST_TIMEOUT", 5*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "stockwatch"),
			MaxConnections:  getEnvAsInt("DB_MAX_CONNECTIONS", 25),
			MinConnections:  getEnvAsInt("DB_MIN_CONNECTIONS", 5),
			MaxConnLifetime: getEnvAsInt("DB_MAX_CONN_LIFETIME", 300),
		},
		DynamoDB: DynamoDBConfig{
			Table:    getEnv("DYNAMODB_TABLE", "inventory"),
			Region:   getEnv("DYNAMODB_REGION", region),
			Endpoint: getEnv("DYNAMODB_ENDPOINT", ""),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
			Issuer:    getEnv("AUTH_JWT_ISSUER", ""),
		},
		Alerts: AlertsConfig{
			SNSEnabled: getEnvAsBool("ALERTS_SNS_ENABLED", false),
			TopicARN:   getEnv("ALERTS_SNS_TOPIC_ARN", ""),
			Region:     getEnv("ALERTS_REGION", region),
		},
		Recipients: RecipientsConfig{
			Source:       getEnv("RECIPIENTS_SOURCE", RecipientsFile),
			UserPoolID:   getEnv("COGNITO_USER_POOL_ID", ""),
			ManagerGroup: getEnv("COGNITO_MANAGER_GROUP", "MANAGER"),
			Region:       getEnv("COGNITO_REGION", region),
			Files:        getEnvAsList("RECIPIENTS_FILES", []string{"data/managers.txt"}),
			S3Enabled:    getEnvAsBool("RECIPIENTS_S3_ENABLED", false),
			S3Bucket:     getEnv("RECIPIENTS_S3_BUCKET", ""),
			S3Prefix:     getEnv("RECIPIENTS_S3_PREFIX", "recipients/"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Store.RequestTimeout <= 0 {
		return fmt.Errorf("store request timeout must be positive")
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if err := c.Database.validate(); err != nil {
			return err
		}
	case BackendDynamoDB:
		if c.DynamoDB.Table == "" {
			return fmt.Errorf("dynamodb table is required")
		}
		if c.DynamoDB.Region == "" {
			return fmt.Errorf("dynamodb region is required")
		}
	default:
		return fmt.Errorf("invalid kv backend: %s (must be memory, postgres, or dynamodb)", c.Store.Backend)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLogLevels[c.Logger.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Logger.Format != "json" && c.Logger.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.Logger.Format)
	}

	if c.Alerts.SNSEnabled {
		if c.Alerts.TopicARN == "" {
			return fmt.Errorf("SNS topic ARN is required when SNS alerts are enabled")
		}
		if c.Alerts.Region == "" {
			return fmt.Errorf("alerts region is required when SNS alerts are enabled")
		}
	}

	switch c.Recipients.Source {
	case RecipientsCognito:
		if c.Recipients.UserPoolID == "" {
			return fmt.Errorf("cognito user pool ID is required when recipients source is cognito")
		}
		if c.Recipients.ManagerGroup == "" {
			return fmt.Errorf("cognito manager group is required")
		}
	case RecipientsFile:
		if len(c.Recipients.Files) == 0 {
			return fmt.Errorf("at least one recipients file is required when recipients source is file")
		}
		if c.Recipients.S3Enabled && c.Recipients.S3Bucket == "" {
			return fmt.Errorf("S3 bucket is required when recipients S3 is enabled")
		}
	default:
		return fmt.Errorf("invalid recipients source: %s (must be cognito or file)", c.Recipients.Source)
	}

	return nil
}

func (c *DatabaseConfig) validate() error {
	if c.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Port)
	}

	if c.User == "" {
		return fmt.Errorf("database user is required")
	}

	if c.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.MaxConnections < 1 {
		return fmt.Errorf("database max connections must be at least 1")
	}

	if c.MinConnections < 1 {
		return fmt.Errorf("database min connections must be at least 1")
	}

	if c.MinConnections > c.MaxConnections {
		return fmt.Errorf("database min connections cannot exceed max connections")
	}

	return nil
}

// ConnectionString returns the PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

// Address returns the server address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value.
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value.
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsList retrieves a comma-separated environment variable or returns a default value.
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// getEnvAsDuration retrieves an environment variable as a duration or returns a default value.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
