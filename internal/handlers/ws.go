package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/HammerMeetNail/oasis/internal/logging"
	"github.com/HammerMeetNail/oasis/internal/realtime"
	"github.com/HammerMeetNail/oasis/internal/services"
)

// maxFrameBytes bounds a single inbound WebSocket message.
const maxFrameBytes = 4096

type WSOptions struct {
	AllowedOrigins []string
	Conn           realtime.ConnOptions
}

// WSHandler upgrades GET requests carrying ?userId= into realtime sessions.
type WSHandler struct {
	users     userGetter
	registry  *realtime.Registry
	publisher realtime.LocationPublisher
	upgrader  websocket.Upgrader
	connOpts  realtime.ConnOptions
	logger    *logging.Logger
}

func NewWSHandler(users userGetter, registry *realtime.Registry, publisher realtime.LocationPublisher, opts WSOptions, logger *logging.Logger) *WSHandler {
	if logger == nil {
		logger = logging.Default
	}
	h := &WSHandler{
		users:     users,
		registry:  registry,
		publisher: publisher,
		connOpts:  opts.Conn,
		logger:    logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return h
}

// ServeHTTP refuses the handshake before upgrading when userId is missing or
// unknown, so those clients never reach an open session.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId required")
		return
	}

	if _, err := h.users.GetUser(r.Context(), userID); err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		h.logger.Error("Error loading user for handshake", map[string]interface{}{"error": err.Error(), "user_id": userID})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		h.logger.Warn("WebSocket upgrade failed", map[string]interface{}{"error": err.Error(), "user_id": userID})
		return
	}
	ws.SetReadLimit(maxFrameBytes)

	conn := realtime.NewConn(userID, ws, h.connOpts, h.logger)
	session := realtime.NewSession(userID, conn, h.registry, h.publisher, h.logger)

	// Run blocks until the client goes away or the registry closes the handle.
	if err := session.Run(r.Context()); err != nil && !errors.Is(err, realtime.ErrSessionNotOpen) {
		h.logger.Debug("Session ended with error", map[string]interface{}{"error": err.Error(), "user_id": userID})
	}
}

// UpgradeOr serves WebSocket handshakes with ws and everything else with next,
// so clients can connect to the bare root URL.
func UpgradeOr(ws http.Handler, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			ws.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// originChecker allows any origin when allowed is empty. Otherwise the Origin
// header must match one entry exactly, ignoring case and a trailing slash.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[normalizeOrigin(origin)] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Native clients do not send Origin.
			return true
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			return false
		}
		_, ok := set[normalizeOrigin(origin)]
		return ok
	}
}

func normalizeOrigin(origin string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(origin)), "/")
}
