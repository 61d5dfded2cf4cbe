package database

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds the entity store configuration. Values come from the
// environment; cmd binaries may override them with flags afterwards.
type Config struct {
	URL            string `env:"LIBSQL_URL" env-default:"file:./aura.db"`
	AuthToken      string `env:"LIBSQL_AUTH_TOKEN"`
	MaxOpenConns   int    `env:"DB_MAX_OPEN_CONNS" env-default:"0"`
	MaxIdleConns   int    `env:"DB_MAX_IDLE_CONNS" env-default:"0"`
	ConnMaxIdleSec int    `env:"DB_CONN_MAX_IDLE_SEC" env-default:"0"`
	ConnMaxLifeSec int    `env:"DB_CONN_MAX_LIFE_SEC" env-default:"0"`
}

// NewConfig reads the store configuration from the environment.
func NewConfig() (*Config, error) {
	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read store config from env: %w", err)
	}
	return cfg, nil
}
