package socks

import (
	"errors"
	"io"
)

// SOCKS5 protocol constants, RFC 1928.
const (
	ver5 byte = 0x05

	methodNoAuth   byte = 0x00
	methodNoAccept byte = 0xFF

	cmdConnect byte = 0x01

	replySuccess              byte = 0x00
	replyConnectionRefused    byte = 0x05
	replyCommandNotSupported  byte = 0x07
	replyAddressNotSupported  byte = 0x08
)

// Errors surfaced by Greet/Request; each is a fatal-close case for the
// caller. The handshake has already written the appropriate SOCKS5 reply
// before returning these where the protocol defines one.
var (
	ErrBadVersion        = errors.New("socks: unsupported protocol version")
	ErrNoAcceptableMethod = errors.New("socks: no acceptable authentication method")
	ErrUnsupportedCommand = errors.New("socks: unsupported command")
	ErrUnsupportedATYP    = errors.New("socks: unsupported address type")
)

// successReply is the fixed positive SOCKS5 CONNECT reply: 05 00 00 01
// 0.0.0.0:0. Bound address/port are not meaningful for a Shadowsocks
// tunnel and are always zero.
var successReply = []byte{ver5, replySuccess, 0x00, ATYPIPv4, 0, 0, 0, 0, 0, 0}

// Greet performs the SOCKS5 method-selection phase (RFC 1928 §3) on rw.
// It replies "05 00" and returns nil if the client offers the no-auth
// method; otherwise it replies "05 FF", closes nothing itself (the caller
// owns the connection), and returns ErrNoAcceptableMethod.
func Greet(rw io.ReadWriter) error {
	hdr := make([]byte, 2)
	if _, err := io.ReadFull(rw, hdr); err != nil {
		return err
	}
	if hdr[0] != ver5 {
		return ErrBadVersion
	}

	nmethods := int(hdr[1])
	methods := make([]byte, nmethods)
	if _, err := io.ReadFull(rw, methods); err != nil {
		return err
	}

	for _, m := range methods {
		if m == methodNoAuth {
			_, err := rw.Write([]byte{ver5, methodNoAuth})
			return err
		}
	}

	rw.Write([]byte{ver5, methodNoAccept})
	return ErrNoAcceptableMethod
}

// Request reads the SOCKS5 request phase (RFC 1928 §4) from rw and returns
// the requested destination address. On an unsupported command or address
// type it writes the matching SOCKS5 error reply and returns a non-nil
// error; a bad version or a short read returns an error without writing a
// reply. The caller must close the connection on any error. RSV mismatches
// are tolerated, never rejected.
func Request(rw io.ReadWriter) (Address, error) {
	hdr := make([]byte, 4)
	if _, err := io.ReadFull(rw, hdr); err != nil {
		return Address{}, err
	}
	if hdr[0] != ver5 {
		return Address{}, ErrBadVersion
	}
	if hdr[1] != cmdConnect {
		rw.Write(errorReply(replyCommandNotSupported))
		return Address{}, ErrUnsupportedCommand
	}

	atyp := hdr[3]
	var body []byte
	switch atyp {
	case ATYPIPv4:
		body = make([]byte, 4+2)
	case ATYPDomain:
		l := make([]byte, 1)
		if _, err := io.ReadFull(rw, l); err != nil {
			return Address{}, err
		}
		body = make([]byte, 1+int(l[0])+2)
		body[0] = l[0]
		if _, err := io.ReadFull(rw, body[1:]); err != nil {
			return Address{}, err
		}
		return decodeDomainRequest(body)
	case ATYPIPv6:
		body = make([]byte, 16+2)
	default:
		rw.Write(errorReply(replyAddressNotSupported))
		return Address{}, ErrUnsupportedATYP
	}

	if _, err := io.ReadFull(rw, body); err != nil {
		return Address{}, err
	}

	full := append([]byte{atyp}, body...)
	addr, _, err := ParseAddressHeader(full)
	return addr, err
}

// decodeDomainRequest re-assembles the ATYP_DOMAIN header bytes already
// read (length + name + port, without the leading ATYP octet) and parses
// them through the shared address codec.
func decodeDomainRequest(body []byte) (Address, error) {
	full := append([]byte{ATYPDomain}, body...)
	addr, _, err := ParseAddressHeader(full)
	return addr, err
}

func errorReply(code byte) []byte {
	return []byte{ver5, code, 0x00, ATYPIPv4, 0, 0, 0, 0, 0, 0}
}

// WriteSuccess writes the positive SOCKS5 CONNECT reply. The caller must
// only do this once the upstream tunnel is actually connected: the client
// must never see success before bytes can flow.
func WriteSuccess(w io.Writer) error {
	_, err := w.Write(successReply)
	return err
}

// WriteConnectionRefused writes the SOCKS5 reply mapping a failed upstream
// tunnel connect to "connection refused".
func WriteConnectionRefused(w io.Writer) error {
	_, err := w.Write(errorReply(replyConnectionRefused))
	return err
}

// RequestHeaderBytes re-encodes addr as the exact address-header byte
// sequence a SOCKS5 CONNECT request carried (ATYP + address + port), which
// is what the local peer forwards to the server as the first payload.
func RequestHeaderBytes(addr Address) ([]byte, error) {
	return EmitAddressHeader(addr)
}
