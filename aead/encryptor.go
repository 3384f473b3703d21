// Package aead implements the Shadowsocks chunked AEAD stream codec: a
// salt-prefixed stream of independently sealed length/payload frame pairs,
// tolerant of arbitrary input and output chunk boundaries.
package aead

import (
	"crypto/cipher"
	"crypto/rand"
	"io"

	sscipher "shadowtun/cipher"
)

// MaxPayload is the largest plaintext payload a single frame may carry.
const MaxPayload = 0x3FFF

// Encryptor wraps a downstream io.Writer, encrypting everything written to
// it as a salt-prefixed sequence of AEAD frames. The first Write produces
// the salt prefix before any frame.
type Encryptor struct {
	w     io.Writer
	aead  cipher.AEAD
	nonce []byte
	salt  []byte
	sent  bool
	buf   []byte
}

// NewEncryptorAEAD builds an Encryptor from an already-constructed AEAD and
// salt. This is the low-level constructor used directly by tests that need
// to observe the nonce sequence; NewEncryptor is the constructor normal
// callers use.
func NewEncryptorAEAD(w io.Writer, a cipher.AEAD, salt []byte) *Encryptor {
	return &Encryptor{
		w:     w,
		aead:  a,
		nonce: sscipher.NewNonce(),
		salt:  salt,
		buf:   make([]byte, 2+a.Overhead()+MaxPayload+a.Overhead()),
	}
}

// NewEncryptor derives a fresh random salt and subkey from suite and
// masterKey and returns an Encryptor ready to write to w.
func NewEncryptor(w io.Writer, suite sscipher.Suite, masterKey []byte) (*Encryptor, error) {
	salt := make([]byte, suite.SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	subkey := sscipher.SubKey(masterKey, salt, suite.KeySize)
	a, err := suite.AEAD(subkey)
	if err != nil {
		return nil, err
	}
	return NewEncryptorAEAD(w, a, salt), nil
}

// Write encrypts b and writes the resulting frame(s) to the downstream
// writer, prefixed by the salt if this is the first write. It implements
// io.Writer; b is split into ceil(len(b)/MaxPayload) frames, each an
// independent AEAD seal.
func (e *Encryptor) Write(b []byte) (int, error) {
	if !e.sent {
		if _, err := e.w.Write(e.salt); err != nil {
			return 0, err
		}
		e.sent = true
	}

	n := 0
	for len(b) > 0 {
		chunk := b
		if len(chunk) > MaxPayload {
			chunk = chunk[:MaxPayload]
		}
		if err := e.writeFrame(chunk); err != nil {
			return n, err
		}
		n += len(chunk)
		b = b[len(chunk):]
	}
	return n, nil
}

// writeFrame seals and writes one complete frame: length cell then payload
// cell, each independently AEAD-sealed with a strictly increasing nonce.
func (e *Encryptor) writeFrame(payload []byte) error {
	if len(payload) > MaxPayload {
		return ErrPayloadTooLarge
	}
	overhead := e.aead.Overhead()
	frameLen := 2 + overhead + len(payload) + overhead
	buf := e.buf
	if cap(buf) < frameLen {
		buf = make([]byte, frameLen)
	}
	buf = buf[:frameLen]

	buf[0], buf[1] = byte(len(payload)>>8), byte(len(payload))
	e.aead.Seal(buf[:0], e.nonce, buf[:2], nil)
	sscipher.Increment(e.nonce)

	payloadStart := 2 + overhead
	copy(buf[payloadStart:], payload)
	e.aead.Seal(buf[payloadStart:payloadStart], e.nonce, buf[payloadStart:payloadStart+len(payload)], nil)
	sscipher.Increment(e.nonce)

	_, err := e.w.Write(buf)
	return err
}
