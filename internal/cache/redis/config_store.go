package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Jonathan-Vandenberg/arbot/internal/domain"
)

// Keys and channels owned by the configuration surface.
const (
	ConfigKey           = "bot:config"
	StatusKey           = "bot:status"
	ConfigUpdateChannel = "bot:config:update"
)

// ConfigStore implements domain.ConfigStore over plain JSON values.
type ConfigStore struct {
	rdb *redis.Client
}

// NewConfigStore creates a ConfigStore backed by the given Client.
func NewConfigStore(c *Client) *ConfigStore {
	return &ConfigStore{rdb: c.Underlying()}
}

// LoadConfig reads "bot:config". The boolean is false when the key is absent.
func (cs *ConfigStore) LoadConfig(ctx context.Context) (domain.BotConfig, bool, error) {
	payload, err := cs.rdb.Get(ctx, ConfigKey).Bytes()
	if err == redis.Nil {
		return domain.BotConfig{}, false, nil
	}
	if err != nil {
		return domain.BotConfig{}, false, fmt.Errorf("redis: get %s: %w", ConfigKey, err)
	}

	var cfg domain.BotConfig
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return domain.BotConfig{}, false, fmt.Errorf("redis: unmarshal %s: %w", ConfigKey, err)
	}
	return cfg, true, nil
}

// SaveConfig writes "bot:config" with no expiry.
func (cs *ConfigStore) SaveConfig(ctx context.Context, cfg domain.BotConfig) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("redis: marshal config: %w", err)
	}
	if err := cs.rdb.Set(ctx, ConfigKey, payload, 0).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", ConfigKey, err)
	}
	return nil
}

// SaveStatus writes "bot:status" with no expiry.
func (cs *ConfigStore) SaveStatus(ctx context.Context, status domain.BotStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("redis: marshal status: %w", err)
	}
	if err := cs.rdb.Set(ctx, StatusKey, payload, 0).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", StatusKey, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.ConfigStore = (*ConfigStore)(nil)
