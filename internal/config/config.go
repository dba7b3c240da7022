package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"secure_chat/internal/model"
)

type Config struct {
	Addr       string `default:"localhost:9090"`
	ServerHost string `split_words:"true" default:"localhost:9090"`
	LogLevel   string `split_words:"true" default:"info"`

	MongoURI      string `split_words:"true" default:"mongodb://localhost:27017"`
	MongoDatabase string `split_words:"true" default:"securechat"`

	RedisAddr     string `split_words:"true" default:"localhost:6379"`
	RedisPassword string `split_words:"true"`
	RedisDB       int    `split_words:"true" default:"0"`

	EnforceSecureChat bool          `split_words:"true" default:"false"`
	ServerExpiry      time.Duration `split_words:"true" default:"5m"`
	ClientGrace       time.Duration `split_words:"true" default:"2m"`
	MaxPending        int           `split_words:"true" default:"4096"`
	HistorySize       int           `split_words:"true" default:"50"`
	BlockedWords      []string      `split_words:"true"`

	// client only
	KeyPassphrase string `split_words:"true"`
	FilterChat    bool   `split_words:"true" default:"false"`
}

// Load reads SECURECHAT_* environment variables.
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process("securechat", &c); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if c.ServerExpiry <= 0 {
		return nil, fmt.Errorf("unexpected value for SECURECHAT_SERVER_EXPIRY: %s", c.ServerExpiry)
	}
	if c.ClientGrace < 0 {
		return nil, fmt.Errorf("unexpected value for SECURECHAT_CLIENT_GRACE: %s", c.ClientGrace)
	}
	if c.MaxPending <= 0 {
		return nil, fmt.Errorf("unexpected value for SECURECHAT_MAX_PENDING: %d", c.MaxPending)
	}
	if c.HistorySize < 0 {
		return nil, fmt.Errorf("unexpected value for SECURECHAT_HISTORY_SIZE: %d", c.HistorySize)
	}
	return &c, nil
}

func (c *Config) Expiry() model.Expiry {
	return model.Expiry{Server: c.ServerExpiry, ClientGrace: c.ClientGrace}
}
