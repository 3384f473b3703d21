package socks

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressHeaderRoundTrip(t *testing.T) {
	cases := []Address{
		{Kind: KindIPv4, Host: "127.0.0.1", Port: 9},
		{Kind: KindIPv4, Host: "93.184.216.34", Port: 80},
		{Kind: KindDomain, Host: "example.com", Port: 80},
		{Kind: KindDomain, Host: strings.Repeat("a", 255), Port: 443}, // max-length domain
		{Kind: KindIPv6, Host: "::1", Port: 8080},
		{Kind: KindIPv6, Host: "2001:db8::1", Port: 53},
	}

	for _, c := range cases {
		encoded, err := EmitAddressHeader(c)
		require.NoError(t, err, c)

		parsed, remainder, err := ParseAddressHeader(encoded)
		require.NoError(t, err, c)
		require.Empty(t, remainder)
		require.Equal(t, c.Kind, parsed.Kind)
		require.Equal(t, c.Port, parsed.Port)

		// IPv4/IPv6 host strings round-trip through net.IP's canonical
		// form, so compare via re-parsing rather than raw string equality.
		require.Equal(t, c.String(), parsed.String())
	}
}

func TestParseAddressHeaderRemainder(t *testing.T) {
	hdr, err := EmitAddressHeader(Address{Kind: KindIPv4, Host: "1.2.3.4", Port: 80})
	require.NoError(t, err)
	payload := []byte("GET / HTTP/1.1\r\n")
	buf := append(append([]byte(nil), hdr...), payload...)

	addr, remainder, err := ParseAddressHeader(buf)
	require.NoError(t, err)
	require.Equal(t, "1.2.3.4", addr.Host)
	require.Equal(t, payload, remainder)
}

func TestParseAddressHeaderShort(t *testing.T) {
	_, _, err := ParseAddressHeader([]byte{ATYPIPv4, 1, 2, 3})
	require.ErrorIs(t, err, ErrShortHeader)

	_, _, err = ParseAddressHeader([]byte{ATYPDomain, 10, 'a', 'b'})
	require.ErrorIs(t, err, ErrShortHeader)

	_, _, err = ParseAddressHeader(nil)
	require.ErrorIs(t, err, ErrShortHeader)
}

func TestParseAddressHeaderUnknownATYP(t *testing.T) {
	_, _, err := ParseAddressHeader([]byte{0x02, 1, 2, 3, 4, 5, 6})
	require.ErrorIs(t, err, ErrUnknownATYP)
}
