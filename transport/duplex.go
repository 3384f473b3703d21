// Package transport unifies TCP and WebSocket byte streams behind a single
// ByteDuplex capability, so the AEAD codec and relay engine depend on
// neither concrete transport.
package transport

import (
	"io"
	"time"
)

// ByteDuplex is a bidirectional byte stream with half-close and deadline
// support, the minimal capability the codec and relay engine need. Both
// the TCP and WebSocket realizations implement it.
type ByteDuplex interface {
	io.Reader
	io.Writer

	// CloseWrite half-closes the write side, signalling EOF to the peer
	// without releasing the read side. WebSocket streams approximate this
	// with a close-message handshake; see websocketDuplex.CloseWrite.
	CloseWrite() error

	// Close releases both directions and any underlying resources.
	Close() error

	// SetDeadline arms an absolute I/O deadline across both directions,
	// used by the relay engine at teardown to unblock a Read still in
	// progress once the opposite copy direction has finished.
	SetDeadline(t time.Time) error
}
