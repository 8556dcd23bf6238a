// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr        string        `env:"ADDR" envDefault:":8080"`
	DatabaseURL string        `env:"DATABASE_URL,required,notEmpty"`
	JWTSecret   string        `env:"JWT_SECRET,required,notEmpty"`
	TokenTTL    time.Duration `env:"TOKEN_TTL" envDefault:"168h"`
	LogLevel    string        `env:"LOG_LEVEL" envDefault:"info"`
	LogConsole  bool          `env:"LOG_CONSOLE" envDefault:"false"`
}

// Load reads an optional .env file and then parses the environment.
// A missing .env file is not an error; missing required variables are.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse environment: %w", err)
	}
	if cfg.TokenTTL <= 0 {
		return Config{}, fmt.Errorf("config: TOKEN_TTL must be positive")
	}
	cfg.DatabaseURL = normalizeDSN(cfg.DatabaseURL)
	return cfg, nil
}

// normalizeDSN strips SQLAlchemy-style driver suffixes that show up in .env
// files carried over from other stacks. Both the store pool and the change
// feed listener consume the normalized form.
func normalizeDSN(dsn string) string {
	s := strings.TrimSpace(dsn)
	s = strings.Replace(s, "postgresql+asyncpg://", "postgresql://", 1)
	s = strings.Replace(s, "postgres+asyncpg://", "postgres://", 1)
	return s
}
