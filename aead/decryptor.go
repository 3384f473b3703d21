package aead

import (
	"crypto/cipher"
	"io"

	sscipher "shadowtun/cipher"
)

// Decryptor wraps an upstream io.Reader, decrypting a salt-prefixed AEAD
// frame stream into plaintext. It tolerates arbitrary input chunk
// boundaries: callers may Read any number of bytes at a time, and the
// Decryptor buffers whatever partial frame state it needs internally.
//
// In hold mode (server side), the first frame's plaintext is not delivered
// through Read; the caller must call ReadFirstPayload to obtain it and then
// Resume before further Read calls are permitted. Hold mode is consumed
// exactly once per Decryptor.
type Decryptor struct {
	r         io.Reader
	suite     sscipher.Suite
	masterKey []byte

	aead      cipher.AEAD
	nonce     []byte
	saltDrawn bool

	buf      []byte
	leftover []byte

	hold    bool
	resumed bool
}

// NewDecryptor returns a Decryptor reading from r, deriving subkeys from
// masterKey once the salt prefix has been read. If hold is true the
// Decryptor starts in hold mode (server mode, see ReadFirstPayload).
func NewDecryptor(r io.Reader, suite sscipher.Suite, masterKey []byte, hold bool) *Decryptor {
	return &Decryptor{
		r:         r,
		suite:     suite,
		masterKey: masterKey,
		nonce:     sscipher.NewNonce(),
		buf:       make([]byte, MaxPayload+sscipher.TagSize),
		hold:      hold,
		resumed:   !hold,
	}
}

// init reads the saltSize-byte salt prefix, if not already read, and
// derives the AEAD for this direction.
func (d *Decryptor) init() error {
	if d.saltDrawn {
		return nil
	}
	salt := make([]byte, d.suite.SaltSize)
	if _, err := io.ReadFull(d.r, salt); err != nil {
		return err
	}
	subkey := sscipher.SubKey(d.masterKey, salt, d.suite.KeySize)
	a, err := d.suite.AEAD(subkey)
	if err != nil {
		return err
	}
	d.aead = a
	d.saltDrawn = true
	return nil
}

// readLength reads and decrypts the 2-byte length cell, validating the
// declared length BEFORE incrementing the nonce, so nonce state stays
// consistent with the frames actually observed.
func (d *Decryptor) readLength() (int, error) {
	overhead := d.aead.Overhead()
	cell := d.buf[:2+overhead]
	if _, err := io.ReadFull(d.r, cell); err != nil {
		return 0, err
	}
	if _, err := d.aead.Open(cell[:0], d.nonce, cell, nil); err != nil {
		return 0, ErrAuthenticationFailed
	}

	size := int(cell[0])<<8 | int(cell[1])
	if size > MaxPayload {
		return 0, ErrInvalidPayloadLength
	}
	if size < 1 {
		return 0, ErrEmptyPayload
	}

	sscipher.Increment(d.nonce)
	return size, nil
}

// readPayload reads and decrypts a size-byte payload cell.
func (d *Decryptor) readPayload(size int) ([]byte, error) {
	overhead := d.aead.Overhead()
	need := size + overhead
	if cap(d.buf) < need {
		d.buf = make([]byte, need)
	}
	cell := d.buf[:need]
	if _, err := io.ReadFull(d.r, cell); err != nil {
		return nil, err
	}
	plain, err := d.aead.Open(cell[:0], d.nonce, cell, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	sscipher.Increment(d.nonce)
	return plain, nil
}

// readFrame reads one complete frame (length cell + payload cell) and
// returns its decrypted plaintext.
func (d *Decryptor) readFrame() ([]byte, error) {
	size, err := d.readLength()
	if err != nil {
		return nil, err
	}
	return d.readPayload(size)
}

// ReadFirstPayload consumes the salt prefix and the first frame, returning
// its plaintext directly rather than through Read. It is valid only when
// the Decryptor was constructed with hold=true, and must be called exactly
// once, before Resume and before any Read.
func (d *Decryptor) ReadFirstPayload() ([]byte, error) {
	if err := d.init(); err != nil {
		return nil, err
	}
	plain, err := d.readFrame()
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(plain))
	copy(out, plain)
	return out, nil
}

// Resume ends hold mode, permitting subsequent Read calls to proceed. It
// may be called exactly once, after ReadFirstPayload.
func (d *Decryptor) Resume() error {
	if d.resumed {
		return ErrAlreadyResumed
	}
	d.resumed = true
	return nil
}

// Read implements io.Reader, decrypting frames as needed. b may be any
// size; Read copies as much decrypted plaintext as fits and buffers any
// remainder internally for the next call.
func (d *Decryptor) Read(b []byte) (int, error) {
	if d.hold && !d.resumed {
		return 0, ErrDecryptorHeld
	}

	if len(d.leftover) > 0 {
		n := copy(b, d.leftover)
		d.leftover = d.leftover[n:]
		return n, nil
	}

	if err := d.init(); err != nil {
		return 0, err
	}

	plain, err := d.readFrame()
	if err != nil {
		return 0, err
	}

	n := copy(b, plain)
	if n < len(plain) {
		d.leftover = append(d.leftover[:0], plain[n:]...)
	}
	return n, nil
}
