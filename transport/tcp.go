package transport

import (
	"io"
	"net"
)

// tcpDuplex adapts *net.TCPConn to ByteDuplex. Read normally goes straight
// to the socket; NewTCPBuffered points r at a bufio.Reader instead so bytes
// an earlier protocol-sniffing stage already pulled off the wire aren't
// silently dropped.
type tcpDuplex struct {
	*net.TCPConn
	r io.Reader
}

// NewTCP wraps an already-established TCP connection as a ByteDuplex.
func NewTCP(c *net.TCPConn) ByteDuplex {
	return tcpDuplex{TCPConn: c, r: c}
}

// NewTCPBuffered wraps c as a ByteDuplex that reads through r instead of
// reading off the socket directly. Use this when r has already consumed
// bytes past a protocol handshake boundary (e.g. an HTTP CONNECT request
// parsed with a bufio.Reader): the same reader must keep serving Read calls
// so nothing buffered ahead of the boundary is lost.
func NewTCPBuffered(c *net.TCPConn, r io.Reader) ByteDuplex {
	return tcpDuplex{TCPConn: c, r: r}
}

// DialTCP connects to addr and returns it wrapped as a ByteDuplex.
func DialTCP(addr string) (ByteDuplex, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}
	c, err := net.DialTCP("tcp", nil, tcpAddr)
	if err != nil {
		return nil, err
	}
	return NewTCP(c), nil
}

func (c tcpDuplex) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

func (c tcpDuplex) CloseWrite() error {
	return c.TCPConn.CloseWrite()
}
