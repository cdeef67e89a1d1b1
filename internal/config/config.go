// internal/config/config.go
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all runtime settings. Values come from the environment, with an
// optional .env file loaded first. The JWT secret default exists so local
// development works out of the box; production deployments must override it.
type Config struct {
	JWTSecret    string        `env:"JWT_SECRET" envDefault:"test-secret-key-for-development-only"`
	ChallengeTTL time.Duration `env:"CHALLENGE_TTL" envDefault:"60s"`
	TokenTTL     time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads .env if present, then parses the environment into a Config.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
