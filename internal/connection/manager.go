package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vibesync/client/pkg/wsrouter"
)

var ErrNotConnected = errors.New("not connected")

const (
	defaultDialTimeout = 10 * time.Second
	minBackoff         = time.Second
	maxBackoff         = 30 * time.Second
)

// Manager owns exactly one duplex event channel to the room server. It
// carries no business logic: it dials, reconnects with backoff, decodes
// inbound envelopes and writes outbound ones.
type Manager struct {
	url    string
	logger *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool

	onEvent      func(wsrouter.Envelope)
	onConnect    func()
	onDisconnect func()
}

func NewManager(url string, logger *slog.Logger) *Manager {
	return &Manager{
		url:    url,
		logger: logger,
	}
}

// OnEvent registers the consumer for inbound envelopes. Must be set
// before Run.
func (m *Manager) OnEvent(fn func(wsrouter.Envelope)) {
	m.onEvent = fn
}

func (m *Manager) OnConnect(fn func()) {
	m.onConnect = fn
}

func (m *Manager) OnDisconnect(fn func()) {
	m.onDisconnect = fn
}

func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Send writes one envelope to the channel. It fails with
// ErrNotConnected while the channel is down; callers treat outbound
// events as fire-and-forget and only log the error.
func (m *Manager) Send(event string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		return ErrNotConnected
	}

	if err := m.conn.WriteJSON(outbound{Event: event, Payload: payload}); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

type outbound struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// Run dials the server and serves the connection until ctx is done,
// redialing with exponential backoff after every drop.
func (m *Manager) Run(ctx context.Context) error {
	backoff := minBackoff

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := m.dial(ctx)
		if err != nil {
			m.logger.WarnContext(ctx, "dial failed", "url", m.url, "error", err, "retry_in", backoff)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}

			backoff = min(backoff*2, maxBackoff)
			continue
		}

		backoff = minBackoff
		m.setConn(conn)
		m.logger.InfoContext(ctx, "connected", "url", m.url)

		if m.onConnect != nil {
			m.onConnect()
		}

		connCtx, connCancel := context.WithCancel(ctx)
		err = m.readPump(connCtx, conn)
		connCancel()
		m.setConn(nil)
		conn.Close()
		m.logger.InfoContext(ctx, "disconnected", "url", m.url, "error", err)

		if m.onDisconnect != nil {
			m.onDisconnect()
		}
	}
}

func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, m.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", m.url, err)
	}

	return conn, nil
}

func (m *Manager) setConn(conn *websocket.Conn) {
	m.mu.Lock()
	m.conn = conn
	m.connected = conn != nil
	m.mu.Unlock()
}

// readPump delivers envelopes in the order received from a single
// connection. No ordering is guaranteed across a reconnect boundary.
func (m *Manager) readPump(ctx context.Context, conn *websocket.Conn) error {
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var env wsrouter.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return err
		}

		if m.onEvent != nil {
			m.onEvent(env)
		}
	}
}
