package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server      ServerConfig
	App         AppConfig
	Cache       CacheConfig
	Store       StoreConfig
	Collections CollectionsConfig
	Auth        AuthConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"bookstore-datastore"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Type      string        `envconfig:"CACHE_TYPE" default:"memory"` // memory, redis or nats
	TTL       time.Duration `envconfig:"CACHE_TTL" default:"0s"`      // 0 keeps entries until overwritten or deleted
	Namespace string        `envconfig:"CACHE_NAMESPACE" default:"bookstore"`

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPoolSize int    `envconfig:"REDIS_POOL_SIZE" default:"10"`

	NATSURL    string `envconfig:"NATS_URL" default:"nats://localhost:4222"`
	NATSBucket string `envconfig:"NATS_BUCKET" default:"datastore"`
}

// StoreConfig holds document store settings.
type StoreConfig struct {
	Type string `envconfig:"STORE_TYPE" default:"sqlite"` // sqlite, postgres, mysql, mongodb or dynamodb
	Path string `envconfig:"STORE_PATH" default:"./data/datastore.db"`
	// PostgreSQL and MySQL settings
	Host     string `envconfig:"STORE_HOST" default:"localhost"`
	Port     int    `envconfig:"STORE_PORT" default:"0"`
	Name     string `envconfig:"STORE_NAME" default:"bookstore"`
	User     string `envconfig:"STORE_USER" default:"postgres"`
	Password string `envconfig:"STORE_PASS" default:""`
	SSLMode  string `envconfig:"STORE_SSLMODE" default:"disable"`
	// MongoDB settings
	MongoURI      string `envconfig:"MONGODB_URI" default:"mongodb://localhost:27017"`
	MongoDatabase string `envconfig:"MONGODB_DATABASE" default:"bookstore"`
	// DynamoDB settings
	DynamoTable     string `envconfig:"DYNAMODB_TABLE" default:"bookstore_documents"`
	DynamoRegion    string `envconfig:"DYNAMODB_REGION" default:"us-east-1"`
	DynamoEndpoint  string `envconfig:"DYNAMODB_ENDPOINT" default:""`
	DynamoAccessKey string `envconfig:"DYNAMODB_ACCESS_KEY" default:""`
	DynamoSecretKey string `envconfig:"DYNAMODB_SECRET_KEY" default:""`
}

// CollectionsConfig names the collections of each record kind.
type CollectionsConfig struct {
	Books      string `envconfig:"BOOKS_COLLECTION" default:"books"`
	Bookstores string `envconfig:"BOOKSTORES_COLLECTION" default:"bookstores"`
}

// AuthConfig holds API key settings.
type AuthConfig struct {
	APIKeys []string `envconfig:"API_KEYS"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// PortOr returns the configured port or def when none is set.
func (s *StoreConfig) PortOr(def int) int {
	if s.Port == 0 {
		return def
	}
	return s.Port
}

// PostgresDSN returns the PostgreSQL connection string.
func (s *StoreConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		s.User, s.Password, s.Host, s.PortOr(5432), s.Name, s.SSLMode)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	c.Cache.Type = strings.ToLower(c.Cache.Type)
	switch c.Cache.Type {
	case "memory", "redis", "nats":
	default:
		return fmt.Errorf("unknown CACHE_TYPE %q", c.Cache.Type)
	}

	c.Store.Type = strings.ToLower(c.Store.Type)
	switch c.Store.Type {
	case "mongo":
		c.Store.Type = "mongodb"
	case "postgresql":
		c.Store.Type = "postgres"
	case "dynamo":
		c.Store.Type = "dynamodb"
	case "sqlite", "postgres", "mysql", "mongodb", "dynamodb":
	default:
		return fmt.Errorf("unknown STORE_TYPE %q", c.Store.Type)
	}

	if c.Cache.TTL < 0 {
		return fmt.Errorf("CACHE_TTL must not be negative")
	}
	if c.Collections.Books == c.Collections.Bookstores {
		return fmt.Errorf("BOOKS_COLLECTION and BOOKSTORES_COLLECTION must differ")
	}
	return nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
