// Package httpconnect is a thin HTTP CONNECT adapter in front of the local
// peer's tunnel entry point, letting plain HTTP CONNECT clients use the
// same encrypted tunnel as SOCKS5 clients.
package httpconnect

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"shadowtun/socks"
)

// ErrNotConnect is returned when the first request line's method is not
// CONNECT.
var ErrNotConnect = errors.New("httpconnect: method is not CONNECT")

// ErrBadRequestLine is returned when the request line cannot be parsed.
var ErrBadRequestLine = errors.New("httpconnect: malformed request line")

const successLine = "HTTP/1.1 200 Connection Established\r\n\r\n"

// Request reads and parses one HTTP CONNECT request from rw, consuming
// headers up to and including the terminating blank line, and returns the
// target address in the same socks.Address shape the SOCKS5 handshake
// produces so both front-ends can feed the same tunnel path.
//
// It also returns the bufio.Reader used to do the parsing. A client may
// start writing tunnel bytes immediately after the blank line, before it
// has seen the 200 response; any such bytes land in this reader's internal
// buffer during the header scan. The caller must keep reading through the
// returned reader instead of the raw connection, or those bytes are lost.
func Request(rw io.ReadWriter) (socks.Address, *bufio.Reader, error) {
	reader := bufio.NewReader(rw)

	requestLine, err := reader.ReadString('\n')
	if err != nil {
		return socks.Address{}, nil, err
	}
	parts := strings.Fields(requestLine)
	if len(parts) < 2 {
		writeError(rw, 400, "Bad Request")
		return socks.Address{}, nil, ErrBadRequestLine
	}
	if parts[0] != "CONNECT" {
		writeError(rw, 405, "Method Not Allowed")
		return socks.Address{}, nil, ErrNotConnect
	}

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return socks.Address{}, nil, err
		}
		if strings.TrimSpace(line) == "" {
			break
		}
	}

	host, portStr, err := net.SplitHostPort(parts[1])
	if err != nil {
		writeError(rw, 400, "Bad Request")
		return socks.Address{}, nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		writeError(rw, 400, "Invalid Port")
		return socks.Address{}, nil, fmt.Errorf("httpconnect: invalid port %q", portStr)
	}

	kind := socks.KindDomain
	if ip := net.ParseIP(host); ip != nil {
		if ip.To4() != nil {
			kind = socks.KindIPv4
		} else {
			kind = socks.KindIPv6
		}
	}

	return socks.Address{Kind: kind, Host: host, Port: uint16(port)}, reader, nil
}

// WriteSuccess writes the "200 Connection Established" response that
// signals the client it may start tunneling bytes.
func WriteSuccess(w io.Writer) error {
	_, err := io.WriteString(w, successLine)
	return err
}

func writeError(w io.Writer, code int, message string) {
	io.WriteString(w, fmt.Sprintf("HTTP/1.1 %d %s\r\n\r\n", code, message))
}
