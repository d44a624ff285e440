package realtime

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/HammerMeetNail/oasis/internal/logging"
	"github.com/HammerMeetNail/oasis/internal/models"
)

var ErrSessionNotOpen = errors.New("session not open")

// FrameConn is a Handle that can also read inbound frames.
type FrameConn interface {
	Handle
	ReadFrame() ([]byte, error)
}

// LocationPublisher is what a session needs from the fan-out engine.
type LocationPublisher interface {
	PublishLocation(ctx context.Context, userID string, update models.LocationUpdate) (MulticastResult, error)
	Snapshot(ctx context.Context, userID string) ([]models.DisclosedLocation, error)
}

type SessionState int

const (
	StateConnecting SessionState = iota
	StateOpen
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session drives one client connection through connecting, open and closed.
// Inbound frames are handled one at a time in arrival order.
type Session struct {
	userID    string
	conn      FrameConn
	registry  *Registry
	publisher LocationPublisher
	logger    *logging.Logger

	mu    sync.Mutex
	state SessionState
}

func NewSession(userID string, conn FrameConn, registry *Registry, publisher LocationPublisher, logger *logging.Logger) *Session {
	if logger == nil {
		logger = logging.Default
	}
	return &Session{
		userID:    userID,
		conn:      conn,
		registry:  registry,
		publisher: publisher,
		logger:    logger.WithField("user_id", userID),
		state:     StateConnecting,
	}
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Open queues the connected frame, registers the connection and then sends
// the friend snapshot. Queuing before registration keeps connected ahead of
// any friend update multicast to the new handle.
func (s *Session) Open(ctx context.Context) error {
	if s.State() != StateConnecting {
		return ErrSessionNotOpen
	}

	if err := s.reply(connectedFrame(s.userID)); err != nil {
		return err
	}

	s.registry.Register(s.userID, s.conn)
	s.setState(StateOpen)

	friends, err := s.publisher.Snapshot(ctx, s.userID)
	if err != nil {
		s.logger.Error("Failed to build sync snapshot", map[string]interface{}{"error": err.Error()})
		friends = nil
	}
	return s.reply(syncFrame(friends))
}

// HandleFrame dispatches one inbound frame. Client mistakes are answered
// with an error frame and the session stays open; a returned error means
// the connection can no longer be written to.
func (s *Session) HandleFrame(ctx context.Context, data []byte) error {
	if s.State() != StateOpen {
		return ErrSessionNotOpen
	}

	frame, err := decodeFrame(data)
	if err != nil {
		return s.reply(errorFrame(err.Error()))
	}

	switch frame.Type {
	case FrameLocationUpdate:
		return s.handleLocationUpdate(ctx, frame)
	case FramePing:
		return s.reply(PongFrame{Type: FramePong})
	default:
		s.logger.Debug("Unknown message type", map[string]interface{}{"type": frame.Type})
		return s.reply(errorFrame("unknown message type: " + frame.Type))
	}
}

func (s *Session) handleLocationUpdate(ctx context.Context, frame inboundFrame) error {
	update, err := frame.locationUpdate()
	if err != nil {
		return s.reply(errorFrame(err.Error()))
	}

	result, err := s.publisher.PublishLocation(ctx, s.userID, update)
	if err != nil {
		if errors.Is(err, models.ErrInvalidCoordinates) {
			return s.reply(errorFrame(err.Error()))
		}
		s.logger.Error("Failed to publish location", map[string]interface{}{"error": err.Error()})
		return s.reply(errorFrame("failed to update location"))
	}

	s.logger.Debug("Location update handled", map[string]interface{}{
		"delivered": result.Delivered,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
	})
	return nil
}

func (s *Session) reply(frame any) error {
	data, err := encodeFrame(frame)
	if err != nil {
		return err
	}
	return s.conn.Send(data)
}

// Close unregisters the connection and closes it. Only this session's own
// handle is removed from the registry.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.mu.Unlock()

	s.registry.UnregisterHandle(s.conn)
	_ = s.conn.Close()
}

// Run opens the session and processes frames until the transport closes or
// ctx is done.
func (s *Session) Run(ctx context.Context) error {
	defer s.Close()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.Open(ctx); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		_ = s.conn.Close()
	}()

	for {
		data, err := s.conn.ReadFrame()
		if err != nil {
			if isExpectedClose(err) || ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("WebSocket read failed", map[string]interface{}{"error": err.Error()})
			return err
		}
		if err := s.HandleFrame(ctx, data); err != nil {
			if errors.Is(err, ErrConnectionClosed) {
				return nil
			}
			return err
		}
	}
}

func isExpectedClose(err error) bool {
	if errors.Is(err, ErrConnectionClosed) || errors.Is(err, net.ErrClosed) {
		return true
	}
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}
