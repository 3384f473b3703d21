// Package cipher implements the Shadowsocks AEAD cipher-suite registry: key
// derivation, subkey derivation and the fixed set of supported AEAD suites.
package cipher

import (
	"crypto/aes"
	"crypto/cipher"
	"strconv"

	"golang.org/x/crypto/chacha20poly1305"
)

// NonceSize and TagSize are fixed across every supported suite.
const (
	NonceSize = 12
	TagSize   = 16
)

// KeySizeError reports a cipher constructed with the wrong key length.
type KeySizeError int

func (e KeySizeError) Error() string {
	return "cipher: key size error: need " + strconv.Itoa(int(e)) + " bytes"
}

// Suite describes one entry of the AEAD cipher-suite registry.
type Suite struct {
	Name     string
	KeySize  int
	SaltSize int
	aead     func(key []byte) (cipher.AEAD, error)
}

// NonceSize and TagSize are the same for every suite in the registry.
func (s Suite) NonceSize() int { return NonceSize }
func (s Suite) TagSize() int   { return TagSize }

// AEAD constructs an AEAD instance for subkey, which must be KeySize bytes.
func (s Suite) AEAD(subkey []byte) (cipher.AEAD, error) {
	if len(subkey) != s.KeySize {
		return nil, KeySizeError(s.KeySize)
	}
	return s.aead(subkey)
}

func gcmWithAES(key []byte) (cipher.AEAD, error) {
	blk, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(blk)
}

// suites is the fixed registry of supported cipher methods.
var suites = map[string]Suite{
	"aes-128-gcm": {Name: "aes-128-gcm", KeySize: 16, SaltSize: 16, aead: gcmWithAES},
	"aes-192-gcm": {Name: "aes-192-gcm", KeySize: 24, SaltSize: 24, aead: gcmWithAES},
	"aes-256-gcm": {Name: "aes-256-gcm", KeySize: 32, SaltSize: 32, aead: gcmWithAES},
	"chacha20-poly1305": {
		Name: "chacha20-poly1305", KeySize: 32, SaltSize: 32,
		aead: chacha20poly1305.New,
	},
}

func init() {
	// chacha20-ietf-poly1305 is the name used by most Shadowsocks configs;
	// accept it as an alias of chacha20-poly1305.
	suites["chacha20-ietf-poly1305"] = suites["chacha20-poly1305"]
}

// unsupportedMethodError is the error Lookup returns for an unknown cipher
// name.
type unsupportedMethodError string

func (e unsupportedMethodError) Error() string { return "cipher: unsupported method: " + string(e) }

// Lookup returns the registry entry for name, or an error if unsupported.
func Lookup(name string) (Suite, error) {
	s, ok := suites[name]
	if !ok {
		return Suite{}, unsupportedMethodError(name)
	}
	return s, nil
}

// Methods lists the supported cipher method names.
func Methods() []string {
	names := make([]string, 0, len(suites))
	for k := range suites {
		names = append(names, k)
	}
	return names
}
