package dbset

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the connection settings for a Context.
type Config struct {
	// URI is the standard MongoDB connection string. The database name is
	// parsed from the URI path unless Database overrides it.
	URI string `env:"MONGODBSET_URI"`

	// Database overrides the database name parsed from the URI path.
	Database string `env:"MONGODBSET_DATABASE"`

	// ConnectTimeout bounds the initial dial and ping.
	ConnectTimeout time.Duration `env:"MONGODBSET_CONNECT_TIMEOUT" envDefault:"10s"`

	// PingRetries is the number of ping attempts made before Connect gives up.
	PingRetries uint `env:"MONGODBSET_PING_RETRIES" envDefault:"3"`

	// ForceTransaction starts a session and begins a transaction during
	// Connect. The flag is latched: aborting that transaction does not turn
	// transactional routing off.
	ForceTransaction bool `env:"MONGODBSET_FORCE_TRANSACTION"`

	// Name distinguishes logical context types in the once-per-process
	// bootstrap key. Empty means the default context name.
	Name string `env:"MONGODBSET_CONTEXT_NAME"`
}

// ConfigFromEnv builds a Config from MONGODBSET_* environment variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
