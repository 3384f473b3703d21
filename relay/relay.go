// Package relay wires a client-facing socket, the AEAD codec, and an
// upstream socket into one full-duplex session, with deterministic teardown
// and the server peer's pre-connect buffering.
package relay

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"time"

	"shadowtun/aead"
	sscipher "shadowtun/cipher"
	"shadowtun/transport"
)

// DefaultTimeout is the value NewSession stores in Session.Timeout when no
// timeout is given. The timeout is recorded only: no inactivity deadline is
// armed on either socket while a session runs, and the only deadlines pump
// sets are the short ones that unblock the remaining copy at teardown.
const DefaultTimeout = 300 * time.Second

// Session binds a peer transport to an upstream transport through an
// Encryptor/Decryptor pair and runs the full-duplex copy loop until either
// side tears down.
type Session struct {
	Peer     transport.ByteDuplex
	Upstream transport.ByteDuplex
	Timeout  time.Duration

	once   sync.Once
	closed chan struct{}
}

// NewSession constructs a Session with the given peer/upstream transports.
// A zero timeout selects DefaultTimeout.
func NewSession(peer, upstream transport.ByteDuplex, timeout time.Duration) *Session {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Session{Peer: peer, Upstream: upstream, Timeout: timeout, closed: make(chan struct{})}
}

// teardown closes both endpoints exactly once, so neither socket is left
// half-closed holding resources after the other is gone.
func (s *Session) teardown() {
	s.once.Do(func() {
		s.Peer.Close()
		s.Upstream.Close()
		close(s.closed)
	})
}

// RunLocal drives the local peer's half of a session: plaintext from the
// client socket is sealed by enc and written to the upstream tunnel;
// ciphertext from the tunnel is opened by dec and written back to the
// client. The first write to the tunnel carries header prepended ahead of
// any client bytes, so the destination address always precedes whatever
// the client sends.
func (s *Session) RunLocal(enc *aead.Encryptor, dec *aead.Decryptor, header []byte) error {
	if len(header) > 0 {
		if _, err := enc.Write(header); err != nil {
			s.teardown()
			return err
		}
	}
	return s.pump(enc, dec, s.Peer, s.Upstream)
}

// RunServer drives the server peer's half of a session. pending is
// plaintext already extracted from the Decryptor before the pump starts:
// the bytes after the address header in the first frame, plus whatever the
// caller drained from the resumed dec while it resolved the address and
// dialed upstream.
func (s *Session) RunServer(enc *aead.Encryptor, dec *aead.Decryptor, pending []byte, eofBeforeConnect bool) error {
	if len(pending) > 0 {
		if _, err := s.Upstream.Write(pending); err != nil {
			s.teardown()
			return err
		}
	}
	if eofBeforeConnect {
		s.Upstream.CloseWrite()
	}
	return s.pump(enc, dec, s.Upstream, s.Peer)
}

// pump runs the full-duplex copy loop between the clear-text side of the
// session (the client socket for the local peer, the destination socket
// for the server peer) and the cipher side that enc/dec are already bound
// to: two io.Copy goroutines, each arming a deadline on the socket the
// other is blocked reading once it finishes, and error de-duplication
// across os.ErrDeadlineExceeded.
func (s *Session) pump(enc *aead.Encryptor, dec *aead.Decryptor, clearSide, cipherSide transport.ByteDuplex) error {
	var wg sync.WaitGroup
	var decryptErr, encryptErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, decryptErr = io.Copy(clearSide, dec)
		clearSide.SetDeadline(time.Now().Add(5 * time.Second))
	}()

	_, encryptErr = io.Copy(enc, clearSide)
	cipherSide.SetDeadline(time.Now().Add(5 * time.Second))

	wg.Wait()
	s.teardown()

	if decryptErr != nil && !isBenignTeardown(decryptErr) {
		return decryptErr
	}
	if encryptErr != nil && !isBenignTeardown(encryptErr) {
		return encryptErr
	}
	return nil
}

func isBenignTeardown(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, aead.ErrDecryptorHeld) ||
		isDeadlineExceeded(err)
}

func isDeadlineExceeded(err error) bool {
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

// PendingBuffer accumulates decrypted plaintext produced by a resumed
// Decryptor while the server peer is still resolving and dialing
// upstream, flushed in order once the connection succeeds.
type PendingBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	eof bool
}

func (p *PendingBuffer) append(b []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf.Write(b)
}

// Seed appends bytes already extracted ahead of the drain loop — the
// remainder after the address header in the first decrypted frame. Called
// before StartDrain, these bytes come first in the buffer.
func (p *PendingBuffer) Seed(b []byte) {
	p.append(b)
}

func (p *PendingBuffer) markEOF() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eof = true
}

// Bytes returns the buffered plaintext and whether EOF was recorded.
func (p *PendingBuffer) Bytes() ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.Bytes(), p.eof
}

// PreConnectDrainer reads plaintext frames from a resumed Decryptor in the
// background while the server peer resolves and dials upstream, so the
// client side of the session isn't stalled waiting for that round-trip.
// Stop blocks until the in-flight Read (if any) returns, then hands the
// Decryptor back for the relay pump to read directly; the two never read
// concurrently.
type PreConnectDrainer struct {
	dec     *aead.Decryptor
	pending *PendingBuffer
	stop    chan struct{}
	done    chan struct{}
}

// StartDrain begins draining dec into pending and returns immediately.
func StartDrain(dec *aead.Decryptor, pending *PendingBuffer) *PreConnectDrainer {
	d := &PreConnectDrainer{dec: dec, pending: pending, stop: make(chan struct{}), done: make(chan struct{})}
	go d.loop()
	return d
}

func (d *PreConnectDrainer) loop() {
	defer close(d.done)
	buf := make([]byte, sscipher.TagSize+aead.MaxPayload)
	for {
		select {
		case <-d.stop:
			return
		default:
		}
		n, err := d.dec.Read(buf)
		if n > 0 {
			d.pending.append(buf[:n])
		}
		if err != nil {
			if err == io.EOF {
				d.pending.markEOF()
			}
			return
		}
	}
}

// Stop signals the drain loop to exit after its current Read returns and
// waits for it to do so.
func (d *PreConnectDrainer) Stop() {
	close(d.stop)
	<-d.done
}
