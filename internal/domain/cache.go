package domain

import "context"

// BookCache stores serialized order books under a short TTL so consumers that
// read directly from the store never see data from a silently dead client.
type BookCache interface {
	Set(ctx context.Context, book OrderBook) error
	Get(ctx context.Context, venue, nativeSymbol string) (OrderBook, error)
}

// ConfigStore reads and writes the authoritative runtime config and the
// manager's health status in the key/value store.
type ConfigStore interface {
	// LoadConfig returns (config, true, nil) when "bot:config" exists.
	LoadConfig(ctx context.Context) (BotConfig, bool, error)
	SaveConfig(ctx context.Context, cfg BotConfig) error
	SaveStatus(ctx context.Context, status BotStatus) error
}

// SignalBus provides pub/sub messaging between the manager, the detector,
// and external collaborators such as the control API.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns a channel of raw payloads; it is closed when ctx is
	// cancelled.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
