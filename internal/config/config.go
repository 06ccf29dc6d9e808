package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

var (
	ErrDatabaseDSNRequired = errors.New("DATABASE_DSN must be set")
	ErrJWTSecretRequired   = errors.New("JWT_SECRET must be set")
)

type Config struct {
	Port        string
	Env         string
	DatabaseDSN string
	JWTSecret   string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CORSOrigin string
	LogLevel   slog.Level
}

// Load reads the configuration from the environment. The database DSN and
// the signing secret have no defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:          getEnv("PORT", "5000"),
		Env:           getEnv("ENV", "development"),
		DatabaseDSN:   os.Getenv("DATABASE_DSN"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		CORSOrigin:    getEnv("CORS_ORIGIN", "http://localhost:5173"),
	}

	if cfg.DatabaseDSN == "" {
		return Config{}, ErrDatabaseDSNRequired
	}
	if cfg.JWTSecret == "" {
		return Config{}, ErrJWTSecretRequired
	}

	dsn, err := normalizeDSN(cfg.DatabaseDSN)
	if err != nil {
		return Config{}, err
	}
	cfg.DatabaseDSN = dsn

	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid REDIS_DB %q: %w", v, err)
		}
		cfg.RedisDB = db
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	return cfg, nil
}

// IsProduction reports whether the service runs in the production environment.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// normalizeDSN makes sure DATETIME columns scan into time.Time.
func normalizeDSN(dsn string) (string, error) {
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_DSN: %w", err)
	}
	parsed.ParseTime = true
	if parsed.Loc == nil {
		parsed.Loc = time.UTC
	}
	return parsed.FormatDSN(), nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
