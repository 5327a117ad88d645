package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Scan     ScanConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type DatabaseConfig struct {
	DSN           string
	MaxOpenConns  int
	MaxIdleConns  int
	MaxLifetime   time.Duration
	AutoMigrate   bool
	MigrationsDir string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	LockTTL  time.Duration
	LockWait time.Duration
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	GroupID string
	Topics  TopicConfig
}

type TopicConfig struct {
	TicketScanned string
}

type AuthConfig struct {
	// JWTSecret verifies HS256 scanner tokens. OIDCIssuer takes precedence when both are set.
	JWTSecret  string
	OIDCIssuer string
	Skip       bool
}

type ScanConfig struct {
	RapidFireWindow        time.Duration
	MaxAttempts            int
	DefaultScannerIdentity string
}

type LogConfig struct {
	Dir     string
	Service string
	Level   string
}

// Load reads .env if present, then the process environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", ":8086"),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 0),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 5*time.Second),
			AllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			DSN:           getEnv("POSTGRES_DSN", ""),
			MaxOpenConns:  getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:   time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			AutoMigrate:   getEnvBool("DB_AUTO_MIGRATE", true),
			MigrationsDir: getEnv("MIGRATIONS_DIR", "./migrations"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", true),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			LockTTL:  getEnvDuration("SCAN_LOCK_TTL", 5*time.Second),
			LockWait: getEnvDuration("SCAN_LOCK_WAIT", 2*time.Second),
		},
		Kafka: KafkaConfig{
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Brokers: getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			GroupID: getEnv("KAFKA_GROUP_ID", "checkin-audit"),
			Topics: TopicConfig{
				TicketScanned: getEnv("KAFKA_TOPIC_TICKET_SCANNED", "checkin.ticket.scanned"),
			},
		},
		Auth: AuthConfig{
			JWTSecret:  getEnv("JWT_SECRET", ""),
			OIDCIssuer: getEnv("OIDC_ISSUER", ""),
			Skip:       getEnvBool("SKIP_AUTH", false),
		},
		Scan: ScanConfig{
			RapidFireWindow:        time.Duration(getEnvInt("SCAN_RAPID_FIRE_WINDOW_MS", 3000)) * time.Millisecond,
			MaxAttempts:            getEnvInt("SCAN_MAX_ATTEMPTS", 5),
			DefaultScannerIdentity: getEnvAllowEmpty("SCAN_DEFAULT_SCANNER", "Unknown Scanner"),
		},
		Log: LogConfig{
			Dir:     getEnv("LOG_DIR", "logs"),
			Service: getEnv("LOG_SERVICE_NAME", "checkin-service"),
			Level:   getEnv("LOG_LEVEL", "info"),
		},
	}
}

func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return errors.New("config: POSTGRES_DSN is required")
	}
	if c.Scan.RapidFireWindow <= 0 {
		return errors.New("config: SCAN_RAPID_FIRE_WINDOW_MS must be positive")
	}
	if c.Scan.MaxAttempts < 1 {
		return errors.New("config: SCAN_MAX_ATTEMPTS must be at least 1")
	}
	if !c.Auth.Skip && c.Auth.JWTSecret == "" && c.Auth.OIDCIssuer == "" {
		return errors.New("config: one of JWT_SECRET or OIDC_ISSUER is required unless SKIP_AUTH=true")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("config: KAFKA_BROKERS is required when KAFKA_ENABLED=true")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAllowEmpty keeps an explicitly empty value instead of falling back to the default.
func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
