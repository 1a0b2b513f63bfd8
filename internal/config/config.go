package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DevJWTSecret = "footprint-dev-secret"

// Config is read from defaults, then an optional YAML file, then the
// environment (including a local .env file). Later layers win.
type Config struct {
	Addr           string        `yaml:"addr" env:"FOOTPRINT_ADDR"`
	Store          string        `yaml:"store" env:"FOOTPRINT_STORE"`
	DBPath         string        `yaml:"db_path" env:"FOOTPRINT_DB_PATH"`
	SnapshotPath   string        `yaml:"snapshot_path" env:"FOOTPRINT_SNAPSHOT_PATH"`
	MigrationsDir  string        `yaml:"migrations_dir" env:"FOOTPRINT_MIGRATIONS_DIR"`
	UploadDir      string        `yaml:"upload_dir" env:"FOOTPRINT_UPLOAD_DIR"`
	JWTSecret      string        `yaml:"jwt_secret" env:"FOOTPRINT_JWT_SECRET"`
	TokenTTL       time.Duration `yaml:"token_ttl" env:"FOOTPRINT_TOKEN_TTL"`
	CallTimeout    time.Duration `yaml:"call_timeout" env:"FOOTPRINT_CALL_TIMEOUT"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes" env:"FOOTPRINT_MAX_UPLOAD_BYTES"`
	LogLevel       string        `yaml:"log_level" env:"FOOTPRINT_LOG_LEVEL"`
	LogFormat      string        `yaml:"log_format" env:"FOOTPRINT_LOG_FORMAT"`
	StaticDir      string        `yaml:"static_dir" env:"FOOTPRINT_STATIC_DIR"`
	DevFrontendURL string        `yaml:"dev_frontend_url" env:"FOOTPRINT_DEV_FRONTEND_URL"`
	AllowedOrigins []string      `yaml:"allowed_origins" env:"FOOTPRINT_ALLOWED_ORIGINS" envSeparator:","`
	Commit         string        `yaml:"-" env:"FOOTPRINT_COMMIT"`
	BuildTime      string        `yaml:"-" env:"FOOTPRINT_BUILD_TIME"`
}

func Default() Config {
	return Config{
		Addr:           ":8080",
		Store:          "sqlite",
		DBPath:         "data/footprint.db",
		UploadDir:      "data/uploads",
		JWTSecret:      DevJWTSecret,
		TokenTTL:       30 * 24 * time.Hour,
		CallTimeout:    10 * time.Second,
		MaxUploadBytes: 32 << 20,
		LogLevel:       "info",
		LogFormat:      "json",
	}
}

// Load builds the configuration. An empty path skips the YAML layer; a
// missing .env file is ignored.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

func loadYAML(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	switch c.Store {
	case "sqlite":
		if c.DBPath == "" {
			errs = append(errs, errors.New("db_path is required for the sqlite store"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("token_ttl must be positive"))
	}
	if c.CallTimeout < 0 {
		errs = append(errs, errors.New("call_timeout must not be negative"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("max_upload_bytes must be positive"))
	}
	return errors.Join(errs...)
}

// UsesDevSecret reports whether the built-in signing secret is in use.
func (c Config) UsesDevSecret() bool { return c.JWTSecret == DevJWTSecret }
