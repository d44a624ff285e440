// Package realtime implements the WebSocket side of location sharing: the
// per-user connection registry, the fan-out engine and the session protocol.
package realtime

import (
	"errors"
	"sync"

	"github.com/HammerMeetNail/oasis/internal/logging"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
)

// Handle is an open, addressable connection to one client.
type Handle interface {
	ID() string
	UserID() string
	// Send queues data for delivery without blocking.
	Send(data []byte) error
	Close() error
}

// MulticastResult counts the outcome of one multicast.
type MulticastResult struct {
	Delivered int
	Skipped   int
	Failed    int
}

// Registry maps each user to at most one live handle.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]Handle
	logger  *logging.Logger
}

func NewRegistry(logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Default
	}
	return &Registry{
		handles: make(map[string]Handle),
		logger:  logger,
	}
}

// Register stores h for userID. A previous handle for the same user is
// evicted and closed.
func (r *Registry) Register(userID string, h Handle) {
	r.mu.Lock()
	prev, had := r.handles[userID]
	r.handles[userID] = h
	count := len(r.handles)
	r.mu.Unlock()

	if had && prev.ID() != h.ID() {
		_ = prev.Close()
		r.logger.Info("WebSocket connection superseded", map[string]interface{}{
			"user_id":     userID,
			"previous_id": prev.ID(),
			"handle_id":   h.ID(),
		})
	}
	r.logger.Info("WebSocket connected", map[string]interface{}{
		"user_id":     userID,
		"handle_id":   h.ID(),
		"connections": count,
	})
}

// Unregister removes whatever handle userID has. It is idempotent.
// It drops the user regardless of which connection is current. Session
// teardown uses UnregisterHandle so a superseded session cannot remove its
// replacement.
func (r *Registry) Unregister(userID string) bool {
	r.mu.Lock()
	_, ok := r.handles[userID]
	delete(r.handles, userID)
	count := len(r.handles)
	r.mu.Unlock()

	if ok {
		r.logDisconnected(userID, count)
	}
	return ok
}

// UnregisterHandle removes h only if it is still the registered handle for
// its user, so a superseded session cannot remove its replacement.
func (r *Registry) UnregisterHandle(h Handle) bool {
	userID := h.UserID()

	r.mu.Lock()
	current, ok := r.handles[userID]
	removed := ok && current.ID() == h.ID()
	if removed {
		delete(r.handles, userID)
	}
	count := len(r.handles)
	r.mu.Unlock()

	if removed {
		r.logDisconnected(userID, count)
	}
	return removed
}

func (r *Registry) logDisconnected(userID string, count int) {
	r.logger.Info("WebSocket disconnected", map[string]interface{}{
		"user_id":     userID,
		"connections": count,
	})
}

func (r *Registry) Get(userID string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[userID]
	return h, ok
}

func (r *Registry) IsOnline(userID string) bool {
	_, ok := r.Get(userID)
	return ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// Snapshot returns the currently registered handles.
func (r *Registry) Snapshot() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Handle, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h)
	}
	return out
}

// Multicast sends data to every listed user that is online. Offline users are
// skipped; a failed send to one handle does not affect the others.
func (r *Registry) Multicast(userIDs []string, data []byte) MulticastResult {
	targets := make([]Handle, 0, len(userIDs))
	var result MulticastResult

	r.mu.RLock()
	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if h, ok := r.handles[id]; ok {
			targets = append(targets, h)
		} else {
			result.Skipped++
		}
	}
	r.mu.RUnlock()

	for _, h := range targets {
		if err := h.Send(data); err != nil {
			result.Failed++
			r.logger.Warn("Failed to deliver message", map[string]interface{}{
				"user_id":   h.UserID(),
				"handle_id": h.ID(),
				"error":     err.Error(),
			})
			continue
		}
		result.Delivered++
	}

	r.logger.Debug("Multicast complete", map[string]interface{}{
		"delivered": result.Delivered,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
	})
	return result
}

// CloseAll closes and removes every handle. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[string]Handle)
	r.mu.Unlock()

	for _, h := range handles {
		_ = h.Close()
	}
}
