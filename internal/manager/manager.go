// Package manager owns the set of live venue clients, mediates runtime
// configuration through the store's pub/sub channel, and publishes health
// status. All venue events are serialized through a single bounded intake
// channel into one consumer goroutine, which keeps the detector's book map
// single-writer without locks on the hot path.
package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Jonathan-Vandenberg/arbot/internal/cache/redis"
	"github.com/Jonathan-Vandenberg/arbot/internal/detector"
	"github.com/Jonathan-Vandenberg/arbot/internal/domain"
	"github.com/Jonathan-Vandenberg/arbot/internal/symbols"
	"github.com/Jonathan-Vandenberg/arbot/internal/venue"
)

const (
	// statusInterval is the periodic "bot:status" refresh cadence.
	statusInterval = 10 * time.Second

	// shutdownGrace bounds outstanding store writes during shutdown.
	shutdownGrace = 2 * time.Second

	// intakeBuffer sizes the book intake channel; a full buffer blocks the
	// producing client rather than dropping updates.
	intakeBuffer = 256
)

// ClientFactory builds one venue client for the given descriptor and
// resolved native symbols.
type ClientFactory func(venueID string, desc domain.VenueDescriptor, nativeSymbols []string, logger *slog.Logger) (venue.Client, error)

// Config wires a Manager.
type Config struct {
	Defaults    domain.BotConfig
	Venues      map[string]domain.VenueDescriptor
	Registry    *symbols.Registry
	Detector    *detector.Detector
	Cache       domain.BookCache
	ConfigStore domain.ConfigStore
	// Bus is the dedicated subscriber connection for "bot:config:update".
	Bus     domain.SignalBus
	Factory ClientFactory
	Logger  *slog.Logger
}

// Manager is the configuration-driven supervisor for the market-data
// pipeline.
type Manager struct {
	defaults    domain.BotConfig
	venues      map[string]domain.VenueDescriptor
	registry    *symbols.Registry
	detector    *detector.Detector
	cache       domain.BookCache
	configStore domain.ConfigStore
	bus         domain.SignalBus
	factory     ClientFactory
	logger      *slog.Logger

	mu        sync.Mutex
	current   domain.BotConfig
	clients   map[string]venue.Client
	connected map[string]bool
	startedAt time.Time

	intake        chan domain.OrderBook
	done          chan struct{}
	bookListeners []func(domain.OrderBook)
}

// New creates a Manager.
func New(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		defaults:    cfg.Defaults,
		venues:      cfg.Venues,
		registry:    cfg.Registry,
		detector:    cfg.Detector,
		cache:       cfg.Cache,
		configStore: cfg.ConfigStore,
		bus:         cfg.Bus,
		factory:     cfg.Factory,
		logger:      cfg.Logger.With(slog.String("component", "manager")),
		clients:     make(map[string]venue.Client),
		connected:   make(map[string]bool),
		intake:      make(chan domain.OrderBook, intakeBuffer),
		done:        make(chan struct{}),
	}
}

// AddBookListener registers a local subscriber for every order-book event.
// Must be called before Run.
func (m *Manager) AddBookListener(fn func(domain.OrderBook)) {
	m.bookListeners = append(m.bookListeners, fn)
}

// Run starts the pipeline and blocks until ctx is cancelled. Failure to read
// the config store or subscribe to the update channel is fatal; everything
// after startup is surfaced through events and status.
func (m *Manager) Run(ctx context.Context) error {
	cfg, found, err := m.configStore.LoadConfig(ctx)
	if err != nil {
		return fmt.Errorf("manager: load config: %w", err)
	}
	if !found {
		cfg = m.defaults
		m.logger.Info("no stored config, using defaults")
	}

	updates, err := m.bus.Subscribe(ctx, redis.ConfigUpdateChannel)
	if err != nil {
		return fmt.Errorf("manager: subscribe config updates: %w", err)
	}

	m.mu.Lock()
	m.current = cfg
	m.startedAt = time.Now()
	m.mu.Unlock()

	if cfg.IsActive {
		m.startClients(ctx, cfg)
	} else {
		m.logger.Info("bot inactive, no clients started")
	}

	if err := m.publishStatus(ctx); err != nil {
		m.logger.Warn("status write failed", slog.String("error", err.Error()))
	}

	go m.intakeLoop(ctx)

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return ctx.Err()
		case <-ticker.C:
			if err := m.publishStatus(ctx); err != nil {
				m.logger.Warn("status write failed", slog.String("error", err.Error()))
			}
		case payload, ok := <-updates:
			if !ok {
				m.shutdown()
				return fmt.Errorf("manager: config subscription closed")
			}
			m.handleConfigUpdate(ctx, payload)
		}
	}
}

// handleConfigUpdate parses and applies one message from the config channel.
// A bad payload or an empty venue set is ignored; the prior config remains
// active.
func (m *Manager) handleConfigUpdate(ctx context.Context, payload []byte) {
	var next domain.BotConfig
	if err := json.Unmarshal(payload, &next); err != nil {
		m.logger.Warn("config update ignored",
			slog.String("error", err.Error()),
			slog.String("payload", string(payload)),
		)
		return
	}
	if len(next.Exchanges) == 0 {
		m.logger.Warn("config update rejected", slog.String("reason", domain.ErrEmptyVenueSet.Error()))
		return
	}
	for _, v := range next.Exchanges {
		if !symbols.Known(v) {
			m.logger.Warn("config update rejected",
				slog.String("reason", "unknown venue"),
				slog.String("venue", v),
			)
			return
		}
	}

	m.detector.SetTunables(next.MinProfitPercent, next.TradeAmount)

	m.mu.Lock()
	prev := m.current
	m.current = next
	m.mu.Unlock()

	reshape := !prev.SameTopology(next) || prev.IsActive != next.IsActive
	if reshape {
		m.logger.Info("configuration topology changed, restarting clients",
			slog.Any("exchanges", next.Exchanges),
			slog.Any("symbols", next.Symbols),
		)
		m.stopClients()
		m.detector.Reset()
		if next.IsActive {
			m.startClients(ctx, next)
		}
	}

	if err := m.publishStatus(ctx); err != nil {
		m.logger.Warn("status write failed", slog.String("error", err.Error()))
	}
}

// startClients resolves native symbols per venue, clamps the symbol set to
// pairs every venue supports, instantiates the clients, and connects them
// concurrently, waiting for all attempts to settle.
func (m *Manager) startClients(ctx context.Context, cfg domain.BotConfig) {
	perVenue := make(map[string][]string, len(cfg.Exchanges))
	for _, canonical := range cfg.Symbols {
		natives := make(map[string]string, len(cfg.Exchanges))
		supported := true
		for _, v := range cfg.Exchanges {
			native, ok := m.registry.Resolve(canonical, v)
			if !ok {
				supported = false
				break
			}
			natives[v] = native
		}
		if !supported {
			m.logger.Warn("symbol unsupported by current venue set, dropped",
				slog.String("symbol", canonical),
			)
			continue
		}
		for v, native := range natives {
			perVenue[v] = append(perVenue[v], native)
		}
	}

	var g errgroup.Group
	for _, venueID := range cfg.Exchanges {
		natives := perVenue[venueID]
		if len(natives) == 0 {
			m.logger.Warn("venue has no resolvable symbols, skipped",
				slog.String("venue", venueID),
			)
			continue
		}

		desc, ok := m.venues[venueID]
		if !ok {
			m.logger.Warn("venue has no descriptor, skipped", slog.String("venue", venueID))
			continue
		}

		client, err := m.factory(venueID, desc, natives, m.logger)
		if err != nil {
			m.logger.Error("client construction failed",
				slog.String("venue", venueID),
				slog.String("error", err.Error()),
			)
			continue
		}
		client.SetListener(m)

		m.mu.Lock()
		m.clients[venueID] = client
		m.mu.Unlock()

		g.Go(func() error {
			if err := client.Connect(ctx); err != nil {
				m.logger.Error("venue connect failed",
					slog.String("venue", client.Venue()),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// stopClients disconnects and forgets every live client.
func (m *Manager) stopClients() {
	m.mu.Lock()
	clients := m.clients
	m.clients = make(map[string]venue.Client)
	m.connected = make(map[string]bool)
	m.mu.Unlock()

	for id, c := range clients {
		if err := c.Disconnect(); err != nil {
			m.logger.Warn("disconnect failed",
				slog.String("venue", id),
				slog.String("error", err.Error()),
			)
		}
	}
}

// intakeLoop is the single consumer of the serialized book events: it writes
// the cache entry, feeds the detector, and re-emits to local subscribers.
func (m *Manager) intakeLoop(ctx context.Context) {
	for {
		select {
		case <-m.done:
			return
		case book := <-m.intake:
			if err := m.cache.Set(ctx, book); err != nil {
				m.logger.Warn("book cache write failed",
					slog.String("venue", book.Venue),
					slog.String("symbol", book.Symbol),
					slog.String("error", err.Error()),
				)
			}
			m.detector.Intake(ctx, book)
			for _, fn := range m.bookListeners {
				fn(book)
			}
		}
	}
}

// shutdown disconnects all clients and writes the final status under the
// grace deadline. Idempotent.
func (m *Manager) shutdown() {
	select {
	case <-m.done:
		return
	default:
	}
	close(m.done)

	m.stopClients()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	m.mu.Lock()
	status := domain.BotStatus{
		IsRunning:          false,
		ConnectedExchanges: []string{},
		Uptime:             m.startedAt.UnixMilli(),
		Config:             m.current,
	}
	m.mu.Unlock()

	if err := m.configStore.SaveStatus(ctx, status); err != nil {
		m.logger.Warn("final status write failed", slog.String("error", err.Error()))
	}
	m.logger.Info("stopped")
}

// publishStatus writes the current health snapshot to "bot:status".
func (m *Manager) publishStatus(ctx context.Context) error {
	m.mu.Lock()
	connected := make([]string, 0, len(m.connected))
	for v, ok := range m.connected {
		if ok {
			connected = append(connected, v)
		}
	}
	sort.Strings(connected)
	status := domain.BotStatus{
		IsRunning:          m.current.IsActive,
		ConnectedExchanges: connected,
		Uptime:             m.startedAt.UnixMilli(),
		Config:             m.current,
	}
	m.mu.Unlock()

	return m.configStore.SaveStatus(ctx, status)
}

// ---------------------------------------------------------------------------
// venue.Listener implementation
// ---------------------------------------------------------------------------

// OnConnected marks the venue live.
func (m *Manager) OnConnected(venueID string) {
	m.mu.Lock()
	m.connected[venueID] = true
	m.mu.Unlock()
	m.logger.Info("venue connected", slog.String("venue", venueID))
}

// OnOrderBook serializes the book into the intake channel. The send blocks
// when the buffer is full, backpressuring the producing client.
func (m *Manager) OnOrderBook(book domain.OrderBook) {
	select {
	case m.intake <- book:
	case <-m.done:
	}
}

// OnError logs the error; a terminal reconnect exhaustion drops the venue
// from the connected set.
func (m *Manager) OnError(venueID string, err error) {
	if errors.Is(err, venue.ErrReconnectExhausted) {
		m.mu.Lock()
		m.connected[venueID] = false
		m.mu.Unlock()
		m.logger.Error("venue failed terminally", slog.String("venue", venueID))
		return
	}
	m.logger.Warn("venue error",
		slog.String("venue", venueID),
		slog.String("error", err.Error()),
	)
}

// OnDisconnected drops the venue from the connected set.
func (m *Manager) OnDisconnected(venueID string) {
	m.mu.Lock()
	m.connected[venueID] = false
	m.mu.Unlock()
	m.logger.Info("venue disconnected", slog.String("venue", venueID))
}

var _ venue.Listener = (*Manager)(nil)
