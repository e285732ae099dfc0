// Package relay provides the cross-device sync channel transports. The
// relay itself is an external collaborator; these clients only move opaque
// frames between the two devices of one event pairing. Delivery is
// fire-and-forget with no acknowledgments, and the only ordering guarantee
// is arrival order from a single sender.
package relay

import "errors"

// ErrNotConnected is returned by Publish while the channel is down.
// Callers drop the message and keep serving; the protocol tolerates a
// stale customer display until the next transition after reconnect.
var ErrNotConnected = errors.New("sync channel not connected")

// Channel is a persistent bidirectional message channel between the
// devices of one event pairing.
type Channel interface {
	// Publish sends one frame to the peers. Fails fast while disconnected.
	Publish(msg []byte) error

	// Subscribe registers the inbound frame handler. Depending on the
	// transport the handler may also see this device's own frames; consumers
	// filter on the envelope's device id.
	Subscribe(handler func(msg []byte) error) error

	// Connected reports whether frames are currently reaching the relay.
	Connected() bool

	Close() error
}
