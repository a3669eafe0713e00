package registry

import (
	"errors"
	"sync"

	"github.com/solvio-app/battle-server/internal/obslog"
	"go.uber.org/zap"
)

var ErrNotConnected = errors.New("user has no live connection")

// Handle is a live realtime connection bound to one user. The registry owns
// the userId -> handle mapping; everything else holds userIds and resolves
// through Lookup at time of use.
type Handle interface {
	UserID() string
	Username() string
	ProfilePicture() string
	Send(event string, payload any) error
	Close(reason string)
}

// CleanupFunc runs after a user's connection is gone (transport close,
// logout, or supersede). Queue removal and session forfeit hang off this.
type CleanupFunc func(userID string)

// Registry maps each authenticated user to at most one live connection.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]Handle

	cleanupMu sync.RWMutex
	cleanups  []CleanupFunc
}

func New() *Registry {
	return &Registry{byUser: make(map[string]Handle)}
}

// OnGone registers a cleanup callback. Callbacks run in registration order
// whenever a user's connection is unregistered.
func (r *Registry) OnGone(fn CleanupFunc) {
	if fn == nil {
		return
	}
	r.cleanupMu.Lock()
	r.cleanups = append(r.cleanups, fn)
	r.cleanupMu.Unlock()
}

// Register binds the handle to its user, closing any previous connection
// from the same user. Single session per user.
func (r *Registry) Register(h Handle) {
	if h == nil || h.UserID() == "" {
		return
	}
	r.mu.Lock()
	prev := r.byUser[h.UserID()]
	r.byUser[h.UserID()] = h
	r.mu.Unlock()

	if prev != nil && prev != h {
		obslog.L().Info("conn_superseded", zap.String("user_id", h.UserID()))
		prev.Close("superseded by a newer connection")
	}
	obslog.L().Debug("conn_registered", zap.String("user_id", h.UserID()))
}

// Unregister removes the mapping and fires cleanup callbacks. When h is
// non-nil, removal happens only if h is still the current handle, so a
// superseded connection's teardown cannot evict its replacement.
func (r *Registry) Unregister(userID string, h Handle) {
	r.mu.Lock()
	cur, ok := r.byUser[userID]
	if !ok || (h != nil && cur != h) {
		r.mu.Unlock()
		return
	}
	delete(r.byUser, userID)
	r.mu.Unlock()

	obslog.L().Debug("conn_unregistered", zap.String("user_id", userID))

	r.cleanupMu.RLock()
	cleanups := make([]CleanupFunc, len(r.cleanups))
	copy(cleanups, r.cleanups)
	r.cleanupMu.RUnlock()
	for _, fn := range cleanups {
		fn(userID)
	}
}

// Lookup resolves the live handle for a user.
func (r *Registry) Lookup(userID string) (Handle, error) {
	r.mu.RLock()
	h, ok := r.byUser[userID]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotConnected
	}
	return h, nil
}

// Connected reports whether the user currently has a live connection.
func (r *Registry) Connected(userID string) bool {
	r.mu.RLock()
	_, ok := r.byUser[userID]
	r.mu.RUnlock()
	return ok
}
