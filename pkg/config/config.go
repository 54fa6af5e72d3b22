package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NATS     NATSConfig
	JWT      JWTConfig
	Fraud    FraudConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port         string
	Environment  string
	ServiceName  string
	ReadTimeout  int
	WriteTimeout int
	CORSOrigins  string // Comma-separated list of allowed origins
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MaxConns       int
	MinConns       int
	MigrationsPath string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// NATSConfig holds NATS configuration for the analyst alert queue
type NATSConfig struct {
	URL     string
	Enabled bool
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret     string
	Expiration int // in hours
}

// FraudConfig holds deployment-tunable scoring policy overrides.
// Zero values mean "use the engine default"; these are calibration knobs,
// not hard invariants.
type FraudConfig struct {
	CircularLookbackHours int
	MaxGraphNodes         int
	AllowMaxScore         int
	ReviewMaxScore        int
	ChallengeMaxScore     int
	DefaultAverageAmount  float64
	VelocityCacheTTLSecs  int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			ServiceName:  serviceName,
			ReadTimeout:  getEnvAsInt("READ_TIMEOUT", 10),
			WriteTimeout: getEnvAsInt("WRITE_TIMEOUT", 10),
			CORSOrigins:  getEnv("CORS_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", "postgres"),
			DBName:         getEnv("DB_NAME", "nexus"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MaxConns:       getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:       getEnvAsInt("DB_MIN_CONNS", 5),
			MigrationsPath: getEnv("DB_MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
		},
		NATS: NATSConfig{
			URL:     getEnv("NATS_URL", "nats://localhost:4222"),
			Enabled: getEnvAsBool("NATS_ENABLED", false),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			Expiration: getEnvAsInt("JWT_EXPIRATION", 24),
		},
		Fraud: FraudConfig{
			CircularLookbackHours: getEnvAsInt("FRAUD_CIRCULAR_LOOKBACK_HOURS", 0),
			MaxGraphNodes:         getEnvAsInt("FRAUD_MAX_GRAPH_NODES", 0),
			AllowMaxScore:         getEnvAsInt("FRAUD_ALLOW_MAX_SCORE", 0),
			ReviewMaxScore:        getEnvAsInt("FRAUD_REVIEW_MAX_SCORE", 0),
			ChallengeMaxScore:     getEnvAsInt("FRAUD_CHALLENGE_MAX_SCORE", 0),
			DefaultAverageAmount:  getEnvAsFloat("FRAUD_DEFAULT_AVG_AMOUNT", 0),
			VelocityCacheTTLSecs:  getEnvAsInt("FRAUD_VELOCITY_CACHE_TTL_SECS", 30),
		},
	}

	return cfg, nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// MigrateURL returns the database URL in the form golang-migrate expects
func (c *DatabaseConfig) MigrateURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
