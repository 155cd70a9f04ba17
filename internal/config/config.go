package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Auth      AuthConfig
	Otp       OtpConfig
	Detection DetectionConfig
	Email     EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
}

type AuthConfig struct {
	JWTSecret          string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
}

// OtpConfig controls the one-time code state machine.
type OtpConfig struct {
	CodeLength  int
	Expiry      time.Duration
	MaxAttempts int
}

// DetectionConfig holds the usage classification thresholds and the leak
// detection heuristic parameters. Defaults follow the deployed profile;
// every value is tunable per environment.
type DetectionConfig struct {
	HighThreshold     float64       // liters; readings at or above are High
	CriticalThreshold float64       // liters; readings at or above are Critical
	LeakFactor        float64       // new reading must exceed baseline by this multiple
	LeakFloor         float64       // liters; absolute minimum for a leak flag
	BaselineWindow    int           // prior readings averaged into the baseline
	MinHistory        int           // prior readings required before leak evaluation
	DedupWindow       time.Duration // suppress duplicate alerts of a type within this window
	SummaryInterval   time.Duration // monthly-summary job tick
}

type EmailConfig struct {
	AWSRegion   string
	FromAddress string
	Enabled     bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "aquameter"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
		},
		Auth: AuthConfig{
			JWTSecret:          jwtSecret,
			AccessTokenExpiry:  getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			RefreshTokenExpiry: getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour),
		},
		Otp: OtpConfig{
			CodeLength:  getEnvAsInt("OTP_CODE_LENGTH", 6),
			Expiry:      getEnvAsDuration("OTP_EXPIRY", 10*time.Minute),
			MaxAttempts: getEnvAsInt("OTP_MAX_ATTEMPTS", 3),
		},
		Detection: DetectionConfig{
			HighThreshold:     getEnvAsFloat("USAGE_HIGH_THRESHOLD", 50.0),
			CriticalThreshold: getEnvAsFloat("USAGE_CRITICAL_THRESHOLD", 100.0),
			LeakFactor:        getEnvAsFloat("LEAK_FACTOR", 3.0),
			LeakFloor:         getEnvAsFloat("LEAK_FLOOR", 25.0),
			BaselineWindow:    getEnvAsInt("LEAK_BASELINE_WINDOW", 7),
			MinHistory:        getEnvAsInt("LEAK_MIN_HISTORY", 3),
			DedupWindow:       getEnvAsDuration("ALERT_DEDUP_WINDOW", 24*time.Hour),
			SummaryInterval:   getEnvAsDuration("SUMMARY_INTERVAL", 12*time.Hour),
		},
		Email: EmailConfig{
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "no-reply@aquameter.io"),
			Enabled:     getEnvAsBool("EMAIL_ENABLED", true),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if err := cfg.Detection.validate(); err != nil {
		return nil, err
	}

	if cfg.Otp.CodeLength < 4 || cfg.Otp.CodeLength > 10 {
		return nil, fmt.Errorf("OTP_CODE_LENGTH must be between 4 and 10 (got %d)", cfg.Otp.CodeLength)
	}
	if cfg.Otp.MaxAttempts < 1 {
		return nil, fmt.Errorf("OTP_MAX_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}

func (c *DetectionConfig) validate() error {
	if c.HighThreshold <= 0 || c.CriticalThreshold <= c.HighThreshold {
		return fmt.Errorf("usage thresholds must satisfy 0 < high (%v) < critical (%v)",
			c.HighThreshold, c.CriticalThreshold)
	}
	if c.LeakFactor <= 1 {
		return fmt.Errorf("LEAK_FACTOR must be greater than 1 (got %v)", c.LeakFactor)
	}
	if c.BaselineWindow < 1 || c.MinHistory < 1 || c.MinHistory > c.BaselineWindow {
		return fmt.Errorf("leak window parameters invalid: window=%d min_history=%d",
			c.BaselineWindow, c.MinHistory)
	}
	return nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{}
		}
		origins := strings.Split(originsStr, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		return origins
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
