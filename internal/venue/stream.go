package venue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// handshakeTimeout bounds the WebSocket dial.
	handshakeTimeout = 15 * time.Second

	// writeWait is the time allowed to write a frame to the peer.
	writeWait = 10 * time.Second
)

// ErrReconnectExhausted is the terminal error surfaced after
// MaxReconnectAttempts consecutive connection failures.
var ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

// StreamConfig parameterizes a Stream with the venue-specific pieces: how to
// resolve and dial the endpoint, how to prime REST snapshots, what subscribe
// frames to send, and how to handle each inbound frame.
type StreamConfig struct {
	Venue string

	// DialURL resolves the WebSocket URL. KuCoin re-resolves it on every
	// (re)connect because its token-bearing URL expires.
	DialURL func(ctx context.Context) (string, error)

	// Prime fetches REST snapshots before each connect. A failure for one
	// symbol is logged by the implementation and leaves that symbol absent
	// until the next reconnect cycle; Prime itself only errors fatally.
	Prime func(ctx context.Context) error

	// Subscribe sends the venue's subscribe frames after the socket opens.
	// Nil for venues whose URL encodes the subscription.
	Subscribe func(ctx context.Context, s *Stream) error

	// Handle processes one inbound frame. Errors are logged and the frame
	// discarded; the stream stays live.
	Handle func(msg []byte) error

	// KeepaliveInterval, when non-zero, runs Keepalive on a ticker for the
	// life of each connection (KuCoin's application-level ping).
	KeepaliveInterval time.Duration
	Keepalive         func(s *Stream) error

	Listener Listener
	Logger   *slog.Logger
}

// Stream owns one WebSocket connection lifecycle: initial connect, the read
// loop, and capped-exponential reconnects. Venue clients embed one Stream per
// socket they hold.
type Stream struct {
	cfg StreamConfig

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	done   chan struct{}
}

// NewStream creates a stream from the given config. The listener defaults to
// NopListener.
func NewStream(cfg StreamConfig) *Stream {
	if cfg.Listener == nil {
		cfg.Listener = NopListener{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Stream{
		cfg:  cfg,
		done: make(chan struct{}),
	}
}

// Start primes, dials, and subscribes once synchronously, then hands the
// connection to the background read loop. The initial attempt's error is
// returned to the caller; later drops are handled by reconnection.
func (s *Stream) Start(ctx context.Context) error {
	if err := s.connectOnce(ctx); err != nil {
		return err
	}
	s.cfg.Listener.OnConnected(s.cfg.Venue)
	go s.readLoop()
	return nil
}

// Stop closes the connection and stops the read loop. Idempotent.
func (s *Stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)

	if s.conn != nil {
		_ = s.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return s.conn.Close()
	}
	return nil
}

// WriteJSON marshals v and writes it as a text frame under the write lock.
func (s *Stream) WriteJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("venue: %s: not connected", s.cfg.Venue)
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

// connectOnce runs one full prime+dial+subscribe cycle.
func (s *Stream) connectOnce(ctx context.Context) error {
	if s.cfg.Prime != nil {
		if err := s.cfg.Prime(ctx); err != nil {
			return fmt.Errorf("venue: %s: prime: %w", s.cfg.Venue, err)
		}
	}

	url, err := s.cfg.DialURL(ctx)
	if err != nil {
		return fmt.Errorf("venue: %s: resolve url: %w", s.cfg.Venue, err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("venue: %s: dial: %w", s.cfg.Venue, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return fmt.Errorf("venue: %s: stream closed", s.cfg.Venue)
	}
	s.conn = conn
	s.mu.Unlock()

	if s.cfg.Subscribe != nil {
		if err := s.cfg.Subscribe(ctx, s); err != nil {
			s.mu.Lock()
			s.conn = nil
			s.mu.Unlock()
			conn.Close()
			return fmt.Errorf("venue: %s: subscribe: %w", s.cfg.Venue, err)
		}
	}

	if s.cfg.KeepaliveInterval > 0 && s.cfg.Keepalive != nil {
		go s.keepaliveLoop(conn)
	}
	return nil
}

// readLoop consumes frames until the connection drops, then drives the
// reconnect cycle. It exits on Stop or when reconnects are exhausted.
func (s *Stream) readLoop() {
	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				s.cfg.Listener.OnDisconnected(s.cfg.Venue)
				return
			default:
			}
			s.cfg.Listener.OnError(s.cfg.Venue, fmt.Errorf("venue: %s: read: %w", s.cfg.Venue, err))
			if !s.reconnect() {
				return
			}
			continue
		}

		if err := s.cfg.Handle(msg); err != nil {
			s.cfg.Logger.Warn("frame discarded",
				slog.String("venue", s.cfg.Venue),
				slog.String("error", err.Error()),
			)
		}
	}
}

// reconnect retries connectOnce under capped exponential backoff. It returns
// false when the stream was stopped or the attempts are exhausted; in the
// latter case the terminal error is surfaced to the listener.
func (s *Stream) reconnect() bool {
	var backoff Backoff
	for {
		delay, ok := backoff.Next()
		if !ok {
			s.cfg.Logger.Error("reconnect exhausted", slog.String("venue", s.cfg.Venue))
			s.cfg.Listener.OnError(s.cfg.Venue,
				fmt.Errorf("venue: %s: %w", s.cfg.Venue, ErrReconnectExhausted))
			s.cfg.Listener.OnDisconnected(s.cfg.Venue)
			return false
		}

		select {
		case <-s.done:
			s.cfg.Listener.OnDisconnected(s.cfg.Venue)
			return false
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
		err := s.connectOnce(ctx)
		cancel()
		if err == nil {
			s.cfg.Logger.Info("reconnected",
				slog.String("venue", s.cfg.Venue),
				slog.Int("attempts", backoff.Attempts()),
			)
			s.cfg.Listener.OnConnected(s.cfg.Venue)
			return true
		}
		s.cfg.Logger.Warn("reconnect attempt failed",
			slog.String("venue", s.cfg.Venue),
			slog.Int("attempt", backoff.Attempts()),
			slog.String("error", err.Error()),
		)
	}
}

// keepaliveLoop runs the venue's application-level ping while conn remains
// the active connection.
func (s *Stream) keepaliveLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(s.cfg.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			current := s.conn
			s.mu.Unlock()
			if current != conn {
				return
			}
			if err := s.cfg.Keepalive(s); err != nil {
				return
			}
		}
	}
}
