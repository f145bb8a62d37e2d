// Package rejoin makes reconnection transparent: a dropped channel that
// later recovers results in an automatic, idempotent rejoin.
package rejoin

import (
	"log/slog"
	"sync"
)

type iJoiner interface {
	Join(roomID string) error
}

// Coordinator resolves the rejoin target on every successful channel
// (re)connection: the deep-link room wins, else the last room joined in
// this process.
type Coordinator struct {
	engine   iJoiner
	logger   *slog.Logger
	deepLink string

	mu       sync.Mutex
	lastRoom string
}

func NewCoordinator(engine iJoiner, deepLink string, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		engine:   engine,
		logger:   logger,
		deepLink: deepLink,
	}
}

// Join remembers the room and delegates to the engine. All user-driven
// joins go through here so the coordinator always knows the last room.
func (c *Coordinator) Join(roomID string) error {
	c.mu.Lock()
	c.lastRoom = roomID
	c.mu.Unlock()

	return c.engine.Join(roomID)
}

// Remember updates the rejoin target without sending anything.
func (c *Coordinator) Remember(roomID string) {
	c.mu.Lock()
	c.lastRoom = roomID
	c.mu.Unlock()
}

// Forget clears the rejoin target, e.g. after an explicit leave.
func (c *Coordinator) Forget() {
	c.mu.Lock()
	c.lastRoom = ""
	c.mu.Unlock()
}

// HandleConnected runs on every successful (re)connection and re-emits
// exactly one join for the target room, if any. Rejoining has no server
// side effect beyond re-registering presence.
func (c *Coordinator) HandleConnected() {
	target := c.target()
	if target == "" {
		return
	}

	c.logger.Info("rejoining room", "room_id", target)
	if err := c.engine.Join(target); err != nil {
		c.logger.Warn("failed to rejoin room", "room_id", target, "error", err)
	}
}

func (c *Coordinator) target() string {
	if c.deepLink != "" {
		return c.deepLink
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRoom
}
