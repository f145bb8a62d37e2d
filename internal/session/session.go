package session

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/vibesync/client/internal/domain"
)

// Context holds process-wide identity state: the bearer credential, the
// playback device id and the user profile. It is shared-read by every
// component and mutated only through its own lifecycle operations.
type Context struct {
	logger *slog.Logger
	store  *Store

	mu          sync.RWMutex
	credential  string
	deviceID    string
	profile     *domain.User
	anonymousID string
}

func NewContext(store *Store, logger *slog.Logger) *Context {
	return &Context{
		logger: logger,
		store:  store,
	}
}

// Credential returns the in-memory bearer credential, which may be
// empty while unauthenticated.
func (c *Context) Credential() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.credential
}

// BestCredential returns the freshest credential available: the
// in-memory value when set, else the persisted one.
func (c *Context) BestCredential() string {
	if cred := c.Credential(); cred != "" {
		return cred
	}

	cred, err := c.store.Load()
	if err != nil {
		c.logger.Debug("no persisted credential", "error", err)
		return ""
	}

	return cred
}

// SetCredential installs a new credential and persists it.
func (c *Context) SetCredential(credential string) {
	c.mu.Lock()
	c.credential = credential
	c.mu.Unlock()

	if err := c.store.Save(credential); err != nil {
		c.logger.Warn("failed to persist credential", "error", err)
	}
}

// ClearCredential drops the credential from memory and storage. Called
// on logout and on authentication failure; there is no automatic retry.
func (c *Context) ClearCredential() {
	c.mu.Lock()
	c.credential = ""
	c.profile = nil
	c.mu.Unlock()

	if err := c.store.Clear(); err != nil {
		c.logger.Warn("failed to clear persisted credential", "error", err)
	}
}

func (c *Context) DeviceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.deviceID
}

// SetDeviceID records the device handle id. Set once per successful
// device-ready notification.
func (c *Context) SetDeviceID(deviceID string) {
	c.mu.Lock()
	c.deviceID = deviceID
	c.mu.Unlock()
}

// ClearDeviceID invalidates the device id on logout or device loss.
func (c *Context) ClearDeviceID() {
	c.mu.Lock()
	c.deviceID = ""
	c.mu.Unlock()
}

func (c *Context) Profile() *domain.User {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.profile == nil {
		return nil
	}

	profile := *c.profile
	return &profile
}

func (c *Context) SetProfile(profile *domain.User) {
	c.mu.Lock()
	c.profile = profile
	c.mu.Unlock()
}

// UserID returns the profile id, or a generated anonymous id that stays
// stable for the life of the session.
func (c *Context) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.profile != nil && c.profile.ID != "" {
		return c.profile.ID
	}

	if c.anonymousID == "" {
		c.anonymousID = "anon-" + uuid.NewString()
	}

	return c.anonymousID
}
