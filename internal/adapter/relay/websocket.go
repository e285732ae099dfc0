package relay

import (
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/caterbase/caterpos/internal/observability/telemetry"
)

// WSChannel is the default transport: a websocket client to the relay that
// reconnects forever with a fixed backoff. While disconnected the operator
// device degrades to single-device mode; publishes fail fast instead of
// queueing.
type WSChannel struct {
	endpoint string
	token    string
	backoff  time.Duration
	log      *zap.Logger

	mu      sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	handler func([]byte) error

	done chan struct{}
	once sync.Once
}

type WSConfig struct {
	// URL is the relay base url, e.g. ws://relay:8090.
	URL string
	// Channel scopes frames to one event pairing.
	Channel string
	// DeviceID identifies this device to the relay.
	DeviceID string
	// Token is the pairing token issued by the relay.
	Token   string
	Backoff time.Duration
}

func NewWSChannel(cfg WSConfig, log *zap.Logger) (*WSChannel, error) {
	if cfg.Backoff <= 0 {
		cfg.Backoff = 3 * time.Second
	}

	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid relay url: %w", err)
	}
	base.Path = "/ws/" + cfg.Channel
	q := base.Query()
	q.Set("device", cfg.DeviceID)
	base.RawQuery = q.Encode()

	c := &WSChannel{
		endpoint: base.String(),
		token:    cfg.Token,
		backoff:  cfg.Backoff,
		log:      log,
		done:     make(chan struct{}),
	}

	go c.run()
	return c, nil
}

// run dials, reads until failure, and redials forever.
func (c *WSChannel) run() {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		header := http.Header{}
		if c.token != "" {
			header.Set("Authorization", "Bearer "+c.token)
		}

		conn, _, err := websocket.DefaultDialer.Dial(c.endpoint, header)
		if err != nil {
			telemetry.SyncReconnects.Inc()
			c.log.Warn("Relay dial failed, retrying",
				zap.Duration("backoff", c.backoff),
				zap.Error(err),
			)
			select {
			case <-time.After(c.backoff):
				continue
			case <-c.done:
				return
			}
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.log.Info("Connected to relay")

		c.readLoop(conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()

		select {
		case <-c.done:
			conn.Close()
			return
		default:
			telemetry.SyncReconnects.Inc()
			c.log.Warn("Relay connection lost, reconnecting",
				zap.Duration("backoff", c.backoff),
			)
			time.Sleep(c.backoff)
		}
	}
}

func (c *WSChannel) readLoop(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("Relay read error", zap.Error(err))
			}
			return
		}

		c.mu.RLock()
		handler := c.handler
		c.mu.RUnlock()
		if handler == nil {
			continue
		}
		if err := handler(msg); err != nil {
			c.log.Warn("Sync message handler failed", zap.Error(err))
		}
	}
}

func (c *WSChannel) Publish(msg []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, msg)
}

func (c *WSChannel) Subscribe(handler func(msg []byte) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
	return nil
}

func (c *WSChannel) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

func (c *WSChannel) Close() error {
	c.once.Do(func() { close(c.done) })

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return conn.Close()
	}
	return nil
}
