package assistant

import (
	"github.com/aura-assistant/aura-core/internal/database"
)

// Config exposes a stable wrapper for store configuration in package mode.
// Fields map directly to the internal database config.
type Config struct {
	URL            string
	AuthToken      string
	MaxOpenConns   int
	MaxIdleConns   int
	ConnMaxIdleSec int
	ConnMaxLifeSec int
}

func (c *Config) toInternal() *database.Config {
	return &database.Config{
		URL:            c.URL,
		AuthToken:      c.AuthToken,
		MaxOpenConns:   c.MaxOpenConns,
		MaxIdleConns:   c.MaxIdleConns,
		ConnMaxIdleSec: c.ConnMaxIdleSec,
		ConnMaxLifeSec: c.ConnMaxLifeSec,
	}
}
