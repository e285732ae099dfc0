package relay

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/caterbase/caterpos/internal/observability/telemetry"
)

// NATSChannel is an alternate transport for venues that already run a NATS
// server. Each event pairing maps to one subject; NoEcho keeps a device from
// receiving its own frames, so consumers see only peer traffic.
type NATSChannel struct {
	conn    *nats.Conn
	subject string
	log     *zap.Logger

	sub *nats.Subscription
}

func NewNATSChannel(url, channel string, log *zap.Logger) (*NATSChannel, error) {
	conn, err := nats.Connect(url,
		nats.NoEcho(),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			telemetry.SyncReconnects.Inc()
			log.Info("Reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS connection lost", zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSChannel{
		conn:    conn,
		subject: "caterpos.sync." + channel,
		log:     log,
	}, nil
}

func (c *NATSChannel) Publish(msg []byte) error {
	if !c.conn.IsConnected() {
		return ErrNotConnected
	}
	return c.conn.Publish(c.subject, msg)
}

func (c *NATSChannel) Subscribe(handler func(msg []byte) error) error {
	sub, err := c.conn.Subscribe(c.subject, func(m *nats.Msg) {
		if err := handler(m.Data); err != nil {
			c.log.Warn("Sync message handler failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", c.subject, err)
	}
	c.sub = sub
	return nil
}

func (c *NATSChannel) Connected() bool {
	return c.conn.IsConnected()
}

func (c *NATSChannel) Close() error {
	if c.sub != nil {
		c.sub.Unsubscribe()
	}
	c.conn.Close()
	return nil
}
