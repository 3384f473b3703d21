package relay

import (
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"shadowtun/aead"
	sscipher "shadowtun/cipher"
	"shadowtun/transport"
)

// memDuplex implements transport.ByteDuplex over an io.Pipe pair, enough
// to drive a Session end to end without real sockets.
type memDuplex struct {
	r        *io.PipeReader
	w        *io.PipeWriter
	// peerW is the writer feeding r; a blocked Read on r returns the error
	// peerW is closed with.
	peerW    *io.PipeWriter
	closeMu  sync.Mutex
	wClosed  bool
}

func newPipePair() (a, b *memDuplex) {
	r1, w1 := io.Pipe()
	r2, w2 := io.Pipe()
	a = &memDuplex{r: r1, w: w2, peerW: w1}
	b = &memDuplex{r: r2, w: w1, peerW: w2}
	return a, b
}

func (m *memDuplex) Read(p []byte) (int, error)  { return m.r.Read(p) }
func (m *memDuplex) Write(p []byte) (int, error) { return m.w.Write(p) }

func (m *memDuplex) CloseWrite() error {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()
	if m.wClosed {
		return nil
	}
	m.wClosed = true
	return m.w.Close()
}

func (m *memDuplex) Close() error {
	m.CloseWrite()
	return m.r.Close()
}

// SetDeadline arms a timer that force-closes the read side with
// os.ErrDeadlineExceeded, the minimal behavior relay.Session's pump
// depends on to unblock a peer still blocked in a Read once its own
// io.Copy has finished.
func (m *memDuplex) SetDeadline(t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		m.peerW.CloseWithError(os.ErrDeadlineExceeded)
		return nil
	}
	time.AfterFunc(d, func() {
		m.peerW.CloseWithError(os.ErrDeadlineExceeded)
	})
	return nil
}

var _ transport.ByteDuplex = (*memDuplex)(nil)

// TestSessionEndToEndPingPong wires a full local-session/server-session
// pair over an in-memory tunnel and drives a ping/pong exchange, the same
// shape as scenario E1.
func TestSessionEndToEndPingPong(t *testing.T) {
	suite, err := sscipher.Lookup("aes-128-gcm")
	require.NoError(t, err)
	masterKey := sscipher.MasterKey("test", suite.KeySize)

	clientConn, localPeerConn := newPipePair()
	localTunnelConn, serverTunnelConn := newPipePair()
	serverUpstreamConn, destConn := newPipePair()

	localEnc, err := aead.NewEncryptor(localTunnelConn, suite, masterKey)
	require.NoError(t, err)
	localDec := aead.NewDecryptor(localTunnelConn, suite, masterKey, false)
	localSession := NewSession(localPeerConn, localTunnelConn, time.Second)

	serverEnc, err := aead.NewEncryptor(serverTunnelConn, suite, masterKey)
	require.NoError(t, err)
	serverDec := aead.NewDecryptor(serverTunnelConn, suite, masterKey, false)
	serverSession := NewSession(serverTunnelConn, serverUpstreamConn, time.Second)

	localErrCh := make(chan error, 1)
	serverErrCh := make(chan error, 1)
	go func() { localErrCh <- localSession.RunLocal(localEnc, localDec, nil) }()
	go func() { serverErrCh <- serverSession.RunServer(serverEnc, serverDec, nil, false) }()

	_, err = clientConn.Write([]byte("ping"))
	require.NoError(t, err)

	destBuf := make([]byte, 4)
	_, err = io.ReadFull(destConn, destBuf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(destBuf))

	_, err = destConn.Write([]byte("pong"))
	require.NoError(t, err)

	clientBuf := make([]byte, 4)
	_, err = io.ReadFull(clientConn, clientBuf)
	require.NoError(t, err)
	require.Equal(t, "pong", string(clientBuf))

	clientConn.Close()
	destConn.Close()

	require.NoError(t, <-localErrCh)
	require.NoError(t, <-serverErrCh)
}

func TestCodecEchoRoundTripOverPipe(t *testing.T) {
	suite, err := sscipher.Lookup("aes-128-gcm")
	require.NoError(t, err)
	masterKey := sscipher.MasterKey("test", suite.KeySize)

	clientSide, tunnelSide := newPipePair()

	enc, err := aead.NewEncryptor(clientSide, suite, masterKey)
	require.NoError(t, err)
	dec := aead.NewDecryptor(tunnelSide, suite, masterKey, false)

	// simulate the remote peer decrypting and echoing back.
	remoteDone := make(chan struct{})
	go func() {
		defer close(remoteDone)
		buf := make([]byte, 64)
		n, err := dec.Read(buf)
		require.NoError(t, err)
		require.Equal(t, "ping", string(buf[:n]))

		remoteEnc, err := aead.NewEncryptor(tunnelSide, suite, masterKey)
		require.NoError(t, err)
		_, err = remoteEnc.Write([]byte("pong"))
		require.NoError(t, err)
	}()

	_, err = enc.Write([]byte("ping"))
	require.NoError(t, err)

	remoteDecBack := aead.NewDecryptor(clientSide, suite, masterKey, false)
	buf := make([]byte, 64)
	n, err := remoteDecBack.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "pong", string(buf[:n]))

	<-remoteDone
}

func TestPreConnectDrainerBuffersUntilStopped(t *testing.T) {
	suite, err := sscipher.Lookup("chacha20-poly1305")
	require.NoError(t, err)
	masterKey := sscipher.MasterKey("secret", suite.KeySize)

	senderSide, receiverSide := newPipePair()

	enc, err := aead.NewEncryptor(senderSide, suite, masterKey)
	require.NoError(t, err)
	dec := aead.NewDecryptor(receiverSide, suite, masterKey, true)

	_, err = enc.Write([]byte("header"))
	require.NoError(t, err)

	first, err := dec.ReadFirstPayload()
	require.NoError(t, err)
	require.Equal(t, "header", string(first))
	require.NoError(t, dec.Resume())

	pending := &PendingBuffer{}
	drainer := StartDrain(dec, pending)

	_, err = enc.Write([]byte("buffered-while-dialing"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		b, _ := pending.Bytes()
		return string(b) == "buffered-while-dialing"
	}, time.Second, 5*time.Millisecond)

	drainer.Stop()

	b, eof := pending.Bytes()
	require.Equal(t, "buffered-while-dialing", string(b))
	require.False(t, eof)
}
