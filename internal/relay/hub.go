// Package relay implements the lightweight development relay the POS devices
// sync through. It keeps no state beyond the set of connected devices: frames
// arriving on a channel are fanned out verbatim to every other device on the
// same channel.
package relay

import (
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/caterbase/caterpos/internal/observability/telemetry"
)

type Hub struct {
	// Connected clients keyed by channel id. Touched only by the Run
	// goroutine; all mutations arrive over the channels below.
	channels map[string]map[*Client]bool

	broadcast  chan frame
	register   chan *Client
	unregister chan *Client

	log *zap.Logger
}

// frame carries one inbound message plus its origin, so the hub can skip the
// sender on fan-out.
type frame struct {
	channel string
	sender  *Client
	data    []byte
}

type Client struct {
	hub *Hub
	// The websocket connection.
	conn *websocket.Conn
	// Buffered channel of outbound messages.
	send chan []byte

	channel  string
	deviceID string
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		channels:   make(map[string]map[*Client]bool),
		broadcast:  make(chan frame),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			if h.channels[client.channel] == nil {
				h.channels[client.channel] = make(map[*Client]bool)
			}
			h.channels[client.channel][client] = true
			telemetry.RelayClients.Inc()
			h.log.Info("Device joined channel",
				zap.String("channel", client.channel),
				zap.String("device_id", client.deviceID),
			)
		case client := <-h.unregister:
			if clients, ok := h.channels[client.channel]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.send)
					telemetry.RelayClients.Dec()
					if len(clients) == 0 {
						delete(h.channels, client.channel)
					}
				}
			}
		case f := <-h.broadcast:
			for client := range h.channels[f.channel] {
				if client == f.sender {
					continue
				}
				select {
				case client.send <- f.data:
				default:
					close(client.send)
					delete(h.channels[f.channel], client)
					telemetry.RelayClients.Dec()
				}
			}
		}
	}
}

// ServeClient registers the connection and pumps it until it drops. Blocks
// for the lifetime of the connection, matching fiber's websocket handler
// contract.
func (h *Hub) ServeClient(conn *websocket.Conn, channel, deviceID string) {
	client := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, 256),
		channel:  channel,
		deviceID: deviceID,
	}
	client.hub.register <- client

	go client.writePump()
	client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		c.hub.broadcast <- frame{channel: c.channel, sender: c, data: msg}
	}
}

func (c *Client) writePump() {
	defer func() {
		c.conn.Close()
	}()
	for {
		message, ok := <-c.send
		if !ok {
			// The hub closed the channel.
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}

		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}
