package realtime

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/HammerMeetNail/oasis/internal/logging"
)

// wsConn is the subset of *websocket.Conn used by Conn.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type ConnOptions struct {
	SendBuffer   int
	WriteTimeout time.Duration
}

func (o ConnOptions) withDefaults() ConnOptions {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	return o
}

// Conn is a WebSocket handle. All writes go through a single writer
// goroutine fed by a bounded queue, so Send never blocks the caller.
type Conn struct {
	id         string
	userID     string
	ws         wsConn
	opts       ConnOptions
	logger     *logging.Logger
	send       chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	lastActive atomic.Int64
}

func NewConn(userID string, ws wsConn, opts ConnOptions, logger *logging.Logger) *Conn {
	if logger == nil {
		logger = logging.Default
	}
	opts = opts.withDefaults()
	c := &Conn{
		id:     uuid.NewString(),
		userID: userID,
		ws:     ws,
		opts:   opts,
		logger: logger,
		send:   make(chan []byte, opts.SendBuffer),
		done:   make(chan struct{}),
	}
	c.touch()
	go c.writeLoop()
	return c
}

func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) UserID() string {
	return c.userID
}

func (c *Conn) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

// ReadFrame blocks until the next data frame arrives.
func (c *Conn) ReadFrame() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	c.touch()
	return data, nil
}

// LastActive is when the client last sent a frame.
func (c *Conn) LastActive() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

func (c *Conn) touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

func (c *Conn) writeLoop() {
	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("WebSocket write failed", map[string]interface{}{
					"user_id":   c.userID,
					"handle_id": c.id,
					"error":     err.Error(),
				})
				_ = c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close sends a normal close frame and tears down the socket. Safe to call
// more than once and from any goroutine.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}

// Done is closed once the handle has been closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}
