package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata" // library timezones must resolve on minimal images

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "abhyasika.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom is Load with an explicit YAML path. A missing file is not an error.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}
	return &cfg, nil
}

func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// loadEnv overlays non-empty environment variables onto cfg.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Addr, "SERVER_ADDR")
	setDuration(&cfg.Server.ReadTimeout, "SERVER_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "SERVER_WRITE_TIMEOUT")

	setString(&cfg.Database.DSN, "DATABASE_URL")
	setInt(&cfg.Database.MaxOpenConns, "DB_MAX_OPEN_CONNS")
	setInt(&cfg.Database.MaxIdleConns, "DB_MAX_IDLE_CONNS")
	setDuration(&cfg.Database.ConnMaxLifetime, "DB_CONN_MAX_LIFETIME")

	setString(&cfg.Cache.Backend, "CACHE_BACKEND")
	setString(&cfg.Cache.SQLitePath, "CACHE_SQLITE_PATH")
	setString(&cfg.Cache.RedisAddr, "REDIS_ADDR")
	setString(&cfg.Cache.RedisPassword, "REDIS_PASSWORD")
	setInt(&cfg.Cache.RedisDB, "REDIS_DB")
	setDuration(&cfg.Cache.RedisTimeout, "REDIS_TIMEOUT")
	setInt64(&cfg.Cache.L1MaxBytes, "CACHE_L1_MAX_BYTES")

	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setDuration(&cfg.Auth.TokenTTL, "AUTH_TOKEN_TTL")
	setInt(&cfg.Auth.BcryptCost, "AUTH_BCRYPT_COST")
	setInt(&cfg.Auth.MinPasswordLength, "AUTH_MIN_PASSWORD_LENGTH")
	setBool(&cfg.Auth.PasswordSignInEnabled, "AUTH_PASSWORD_SIGN_IN_ENABLED")

	setString(&cfg.SuperAdmin.Email, "SUPER_ADMIN_EMAIL")
	setString(&cfg.SuperAdmin.Password, "SUPER_ADMIN_PASSWORD")
	setString(&cfg.SuperAdmin.DisplayName, "SUPER_ADMIN_NAME")

	setString(&cfg.Demo.Email, "DEMO_EMAIL")
	setString(&cfg.Demo.Password, "DEMO_PASSWORD")
	setString(&cfg.Demo.DisplayName, "DEMO_NAME")
	setString(&cfg.Demo.LibraryID, "DEMO_LIBRARY_ID")

	setInt(&cfg.Sync.BroadcastBatchSize, "BROADCAST_BATCH_SIZE")
	setDuration(&cfg.Sync.ScanCooldown, "SCAN_COOLDOWN")
	setString(&cfg.Sync.Timezone, "LIBRARY_TIMEZONE")

	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Environment, "APP_ENV")
	setString(&cfg.Logging.Service, "LOG_SERVICE")
}

func validate(cfg *Config) error {
	if cfg.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	switch cfg.Cache.Backend {
	case "sqlite":
		if cfg.Cache.SQLitePath == "" {
			return errors.New("cache.sqlite_path is required for the sqlite backend")
		}
	case "redis":
		if cfg.Cache.RedisAddr == "" {
			return errors.New("cache.redis_addr is required for the redis backend")
		}
	case "memory":
	default:
		return fmt.Errorf("cache.backend %q is not one of sqlite, redis, memory", cfg.Cache.Backend)
	}
	if cfg.Sync.BroadcastBatchSize < 1 {
		return errors.New("sync.broadcast_batch_size must be >= 1")
	}
	if cfg.Auth.MinPasswordLength < 1 {
		return errors.New("auth.min_password_length must be >= 1")
	}
	if (cfg.SuperAdmin.Email == "") != (cfg.SuperAdmin.Password == "") {
		return errors.New("super_admin.email and super_admin.password must be set together")
	}
	if cfg.Demo.Email != "" && cfg.Demo.LibraryID == "" {
		return errors.New("demo.library_id is required when demo.email is set")
	}
	if _, err := time.LoadLocation(cfg.Sync.Timezone); err != nil {
		return fmt.Errorf("sync.timezone: %w", err)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
