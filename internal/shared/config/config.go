package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Registry  RegistryConfig
	Feed      FeedConfig
	KurrentDB KurrentDBConfig
	Auth      AuthConfig
	Crypto    CryptoConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// RegistryConfig holds the connection to the national identity registry.
// The registry exposes a read-mostly SQL Server database; "memory" selects
// the in-process adapter for local development and tests.
type RegistryConfig struct {
	// Driver: "sqlserver" or "memory"
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	// CitizenTable is the registry table holding citizen accounts
	CitizenTable string
}

// FeedConfig holds the Kafka instrument result feed settings.
type FeedConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
	GroupID string
}

// KurrentDBConfig holds configuration for KurrentDB (EventStoreDB).
type KurrentDBConfig struct {
	Host     string
	Port     int
	Insecure bool
	Username string
	Password string
}

type AuthConfig struct {
	JWTSecret string
}

// CryptoConfig holds keys for identity key protection. EncryptionKey is
// hex-encoded AES-256 material; HMACKey feeds the deterministic lookup hash.
type CryptoConfig struct {
	EncryptionKeyHex string
	HMACKey          string
}

type LoggingConfig struct {
	Level  string
	Pretty bool
}

func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "medilab"),
			Password: getEnv("DB_PASSWORD", "medilab"),
			Database: getEnv("DB_NAME", "medilab"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Registry: RegistryConfig{
			Driver:       getEnv("REGISTRY_DRIVER", "memory"),
			Host:         getEnv("REGISTRY_DB_HOST", "localhost"),
			Port:         getEnvInt("REGISTRY_DB_PORT", 1433),
			User:         getEnv("REGISTRY_DB_USER", "sa"),
			Password:     getEnv("REGISTRY_DB_PASSWORD", ""),
			Database:     getEnv("REGISTRY_DB_NAME", "CivilRegistry"),
			SSLMode:      getEnv("REGISTRY_DB_SSLMODE", "disable"),
			CitizenTable: getEnv("REGISTRY_CITIZEN_TABLE", "dbo.Citizens"),
		},
		Feed: FeedConfig{
			Enabled: getEnvBool("FEED_ENABLED", false),
			Brokers: getEnvSlice("FEED_BROKERS", []string{"localhost:9092"}),
			Topic:   getEnv("FEED_TOPIC", "lab-results"),
			GroupID: getEnv("FEED_GROUP_ID", "lab-result-ingestor"),
		},
		KurrentDB: KurrentDBConfig{
			Host:     getEnv("KURRENTDB_HOST", "localhost"),
			Port:     getEnvInt("KURRENTDB_PORT", 2113),
			Insecure: getEnvBool("KURRENTDB_INSECURE", true),
			Username: getEnv("KURRENTDB_USERNAME", ""),
			Password: getEnv("KURRENTDB_PASSWORD", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
		},
		Crypto: CryptoConfig{
			EncryptionKeyHex: getEnv("IDENTITY_ENCRYPTION_KEY", ""),
			HMACKey:          getEnv("IDENTITY_HMAC_KEY", "dev-hmac-key-change-in-production"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Pretty: getEnvBool("LOG_PRETTY", false),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, v := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
