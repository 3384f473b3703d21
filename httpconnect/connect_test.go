package httpconnect

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"shadowtun/socks"
)

type fakeConn struct {
	in  *bytes.Reader
	out bytes.Buffer
}

func (c *fakeConn) Read(p []byte) (int, error)  { return c.in.Read(p) }
func (c *fakeConn) Write(p []byte) (int, error) { return c.out.Write(p) }

func TestRequestConnectDomain(t *testing.T) {
	raw := "CONNECT example.com:443 HTTP/1.1\r\nHost: example.com:443\r\nUser-Agent: test\r\n\r\n"
	c := &fakeConn{in: bytes.NewReader([]byte(raw))}

	addr, _, err := Request(c)
	require.NoError(t, err)
	require.Equal(t, socks.KindDomain, addr.Kind)
	require.Equal(t, "example.com", addr.Host)
	require.Equal(t, uint16(443), addr.Port)
}

func TestRequestConnectIPv4(t *testing.T) {
	raw := "CONNECT 93.184.216.34:80 HTTP/1.1\r\n\r\n"
	c := &fakeConn{in: bytes.NewReader([]byte(raw))}

	addr, _, err := Request(c)
	require.NoError(t, err)
	require.Equal(t, socks.KindIPv4, addr.Kind)
	require.Equal(t, "93.184.216.34", addr.Host)
	require.Equal(t, uint16(80), addr.Port)
}

func TestRequestRejectsNonConnectMethod(t *testing.T) {
	raw := "GET / HTTP/1.1\r\n\r\n"
	c := &fakeConn{in: bytes.NewReader([]byte(raw))}

	_, _, err := Request(c)
	require.ErrorIs(t, err, ErrNotConnect)
	require.Contains(t, c.out.String(), "405")
}

func TestRequestRejectsMalformedLine(t *testing.T) {
	raw := "CONNECT\r\n\r\n"
	c := &fakeConn{in: bytes.NewReader([]byte(raw))}

	_, _, err := Request(c)
	require.ErrorIs(t, err, ErrBadRequestLine)
	require.Contains(t, c.out.String(), "400")
}

// TestRequestPreservesBytesAfterHeaders guards against silently dropping
// tunnel bytes a client wrote immediately after the blank line, before
// waiting for the 200 response: those bytes land in the bufio.Reader's
// internal buffer during the header scan and must still be readable
// through the reader Request returns.
func TestRequestPreservesBytesAfterHeaders(t *testing.T) {
	raw := "CONNECT example.com:443 HTTP/1.1\r\n\r\nEARLYDATA"
	c := &fakeConn{in: bytes.NewReader([]byte(raw))}

	_, reader, err := Request(c)
	require.NoError(t, err)

	rest, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.Equal(t, "EARLYDATA", string(rest))
}

func TestWriteSuccess(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSuccess(&buf))
	require.Equal(t, successLine, buf.String())
}
