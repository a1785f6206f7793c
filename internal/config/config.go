// Package config loads runtime configuration.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

type Config struct {
	Server     Server   `yaml:"server"`
	Database   Database `yaml:"database"`
	Cache      Cache    `yaml:"cache"`
	Auth       Auth     `yaml:"auth"`
	SuperAdmin Identity `yaml:"super_admin"`
	Demo       Demo     `yaml:"demo"`
	Sync       Sync     `yaml:"sync"`
	Logging    Logging  `yaml:"logging"`
}

type Server struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Database configures the remote document store. An empty DSN runs the
// process against an in-memory store.
type Database struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type Cache struct {
	Backend       string        `yaml:"backend"` // "sqlite" | "redis" | "memory"
	SQLitePath    string        `yaml:"sqlite_path"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	RedisTimeout  time.Duration `yaml:"redis_timeout"`
	L1MaxBytes    int64         `yaml:"l1_max_bytes"` // 0 disables the in-process L1
}

type Auth struct {
	JWTSecret             string        `yaml:"jwt_secret"`
	TokenTTL              time.Duration `yaml:"token_ttl"`
	BcryptCost            int           `yaml:"bcrypt_cost"`
	MinPasswordLength     int           `yaml:"min_password_length"`
	PasswordSignInEnabled bool          `yaml:"password_sign_in_enabled"`
}

// Identity is a privileged login resolved outside tenant lookup.
type Identity struct {
	Email       string `yaml:"email"`
	Password    string `yaml:"password"`
	DisplayName string `yaml:"display_name"`
}

type Demo struct {
	Identity  `yaml:",inline"`
	LibraryID string `yaml:"library_id"`
}

type Sync struct {
	BroadcastBatchSize int           `yaml:"broadcast_batch_size"`
	ScanCooldown       time.Duration `yaml:"scan_cooldown"`
	Timezone           string        `yaml:"timezone"`
}

type Logging struct {
	Level       string `yaml:"level"`
	Environment string `yaml:"environment"`
	Service     string `yaml:"service"`
}

// Defaults returns a Config suitable for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Database: Database{
			MaxOpenConns:    20,
			MaxIdleConns:    10,
			ConnMaxLifetime: time.Hour,
		},
		Cache: Cache{
			Backend:      "sqlite",
			SQLitePath:   "data/abhyasika-cache.db",
			RedisAddr:    "localhost:6379",
			RedisTimeout: 3 * time.Second,
			L1MaxBytes:   64 << 20,
		},
		Auth: Auth{
			TokenTTL:              12 * time.Hour,
			BcryptCost:            10,
			MinPasswordLength:     6,
			PasswordSignInEnabled: true,
		},
		SuperAdmin: Identity{
			DisplayName: "Super Admin",
		},
		Demo: Demo{
			Identity:  Identity{DisplayName: "Demo Library"},
			LibraryID: "demo-library",
		},
		Sync: Sync{
			BroadcastBatchSize: 100,
			ScanCooldown:       3 * time.Second,
			Timezone:           "Asia/Kolkata",
		},
		Logging: Logging{
			Level:       "info",
			Environment: "development",
			Service:     "abhyasika",
		},
	}
}
