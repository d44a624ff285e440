package database

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/HammerMeetNail/oasis/internal/logging"
)

// NATSConn publishes proximity alerts to the push gateway.
type NATSConn struct {
	Conn *nats.Conn
}

var natsConnect = nats.Connect

func NewNATSConn(url string, logger *logging.Logger) (*NATSConn, error) {
	if logger == nil {
		logger = logging.Default
	}
	opts := []nats.Option{
		nats.Name("oasis"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.Timeout(5 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			fields := map[string]interface{}{}
			if err != nil {
				fields["error"] = err.Error()
			}
			logger.Warn("NATS disconnected", fields)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", map[string]interface{}{"url": nc.ConnectedUrl()})
		}),
	}

	conn, err := natsConnect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return &NATSConn{Conn: conn}, nil
}

func (n *NATSConn) Publish(subject string, data []byte) error {
	return n.Conn.Publish(subject, data)
}

func (n *NATSConn) IsConnected() bool {
	return n.Conn != nil && n.Conn.IsConnected()
}

// Close flushes pending alerts before closing.
func (n *NATSConn) Close() {
	if n.Conn == nil {
		return
	}
	if err := n.Conn.Drain(); err != nil {
		n.Conn.Close()
	}
}
