package transport

import (
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// websocketDuplex bridges a gorilla/websocket connection to ByteDuplex:
// every WriteMessage call carries one binary message, and every inbound
// binary message is appended to the read side, treating the WebSocket
// connection as an opaque byte stream.
type websocketDuplex struct {
	conn *websocket.Conn

	mu      sync.Mutex // guards WriteMessage calls; gorilla requires single-writer
	readMu  sync.Mutex
	pending []byte
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// DialWebSocket connects to a ws:// or wss:// URL and returns it wrapped as
// a ByteDuplex.
func DialWebSocket(rawURL string) (ByteDuplex, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, err
	}
	return &websocketDuplex{conn: conn}, nil
}

// UpgradeWebSocket upgrades an inbound HTTP request to a WebSocket
// connection and returns it wrapped as a ByteDuplex, for the server peer's
// WebSocket listener.
func UpgradeWebSocket(w http.ResponseWriter, r *http.Request) (ByteDuplex, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &websocketDuplex{conn: conn}, nil
}

func (d *websocketDuplex) Read(p []byte) (int, error) {
	d.readMu.Lock()
	defer d.readMu.Unlock()

	for len(d.pending) == 0 {
		msgType, data, err := d.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, io.EOF
			}
			return 0, err
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		d.pending = data
	}

	n := copy(p, d.pending)
	d.pending = d.pending[n:]
	return n, nil
}

func (d *websocketDuplex) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// CloseWrite sends a WebSocket close control frame, the closest analogue
// to a TCP half-close available over a message-oriented transport.
func (d *websocketDuplex) CloseWrite() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	deadline := time.Now().Add(5 * time.Second)
	return d.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
}

func (d *websocketDuplex) Close() error {
	return d.conn.Close()
}

func (d *websocketDuplex) SetDeadline(t time.Time) error {
	if err := d.conn.SetReadDeadline(t); err != nil {
		return err
	}
	return d.conn.SetWriteDeadline(t)
}
