package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Session backends understood by the client.
const (
	SessionMemory = "memory"
	SessionRedis  = "redis"
	SessionSQL    = "sql"
)

// Config holds all configuration for the client and the reference backend
type Config struct {
	Environment Environment `toml:"-"`

	// Remote API
	APIBaseURL     string        `toml:"api_url"`
	RequestTimeout time.Duration `toml:"request_timeout"`

	// Notifications
	NotifyDuration time.Duration `toml:"notify_duration"`

	// Session persistence
	SessionBackend string `toml:"session_backend"`
	RedisURL       string `toml:"redis_url"`
	SQLDriver      string `toml:"sql_driver"`
	SQLDSN         string `toml:"sql_dsn"`

	// Image archive (disabled when the bucket is empty)
	S3Bucket  string `toml:"s3_bucket"`
	AWSRegion string `toml:"aws_region"`

	LogLevel string `toml:"log_level"`

	// Reference backend
	DevServerHost string `toml:"devserver_host"`
	DevServerPort string `toml:"devserver_port"`
	DevServerDB   string `toml:"devserver_db"`
	JWTSecret     string `toml:"jwt_secret"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Environment:    GetEnvironment(),
		APIBaseURL:     "http://localhost:8080",
		RequestTimeout: 30 * time.Second,
		NotifyDuration: 5 * time.Second,
		SessionBackend: SessionSQL,
		SQLDriver:      "sqlite",
		SQLDSN:         defaultSessionDSN(),
		AWSRegion:      "us-east-1",
		LogLevel:       "info",
		DevServerHost:  "localhost",
		DevServerPort:  "8080",
		DevServerDB:    "file::memory:?cache=shared",
	}
}

// LoadConfig builds a Config from defaults, an optional TOML file named by
// PANTRYCAM_CONFIG, an optional .env file and environment variables, in that
// order of precedence.
func LoadConfig() (*Config, error) {
	cfg := Default()

	dotenv, err := readDotEnv()
	if err != nil {
		return nil, err
	}

	if path := os.Getenv("PANTRYCAM_CONFIG"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := loadEnv(cfg, lookup(dotenv)); err != nil {
		return nil, fmt.Errorf("failed to load environment configuration: %w", err)
	}

	if cfg.Environment == Production {
		// Production secrets come from mounted Docker secrets when present
		if s := readSecret("jwt_secret"); s != "" {
			cfg.JWTSecret = s
		}
		if s := readSecret("redis_url"); s != "" {
			cfg.RedisURL = s
		}
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadEnv(cfg *Config, get func(string) string) error {
	cfg.Environment = detectEnvironment(get)
	setString(&cfg.APIBaseURL, get("PANTRYCAM_API_URL"))
	setString(&cfg.SessionBackend, get("PANTRYCAM_SESSION_BACKEND"))
	setString(&cfg.RedisURL, get("REDIS_URL"))
	setString(&cfg.SQLDriver, get("PANTRYCAM_SQL_DRIVER"))
	setString(&cfg.SQLDSN, get("PANTRYCAM_SQL_DSN"))
	setString(&cfg.S3Bucket, get("S3_BUCKET_NAME"))
	setString(&cfg.AWSRegion, get("AWS_REGION"))
	setString(&cfg.LogLevel, get("PANTRYCAM_LOG_LEVEL"))
	setString(&cfg.DevServerHost, get("DEVSERVER_HOST"))
	setString(&cfg.DevServerPort, get("DEVSERVER_PORT"))
	setString(&cfg.DevServerDB, get("DEVSERVER_DB"))
	setString(&cfg.JWTSecret, get("JWT_SECRET"))

	if err := setDuration(&cfg.RequestTimeout, "PANTRYCAM_TIMEOUT", get); err != nil {
		return err
	}
	return setDuration(&cfg.NotifyDuration, "PANTRYCAM_NOTIFY_DURATION", get)
}

// readDotEnv reads the file named by PANTRYCAM_ENV_FILE, or ./.env. A missing
// file is not an error. The process environment is left untouched.
func readDotEnv() (map[string]string, error) {
	path := os.Getenv("PANTRYCAM_ENV_FILE")
	if path == "" {
		path = ".env"
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read env file %s: %w", path, err)
	}
	return values, nil
}

// lookup prefers the process environment over values from the env file.
func lookup(file map[string]string) func(string) string {
	return func(key string) string {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
		return strings.TrimSpace(file[key])
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string, get func(string) string) error {
	v := get(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

// DevServerAddr returns the listen address of the reference backend.
func (c *Config) DevServerAddr() string {
	return c.DevServerHost + ":" + c.DevServerPort
}

func defaultSessionDSN() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "pantrycam-session.db"
	}
	return filepath.Join(dir, "pantrycam", "session.db")
}

// readSecret reads a Docker secret from the secrets directory
func readSecret(name string) string {
	secretsDir := os.Getenv("SECRETS_DIR")
	if secretsDir == "" {
		secretsDir = "/run/secrets"
	}
	secretPath := filepath.Join(secretsDir, name)
	if data, err := os.ReadFile(secretPath); err == nil {
		return strings.TrimSpace(string(data))
	}
	return ""
}
