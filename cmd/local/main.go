// Command local runs the local peer: a SOCKS5 (and optional HTTP CONNECT)
// gateway that seals client traffic and tunnels it to the server peer.
package main

import (
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"shadowtun/aead"
	sscipher "shadowtun/cipher"
	"shadowtun/config"
	"shadowtun/httpconnect"
	"shadowtun/relay"
	"shadowtun/socks"
	"shadowtun/transport"
)

func main() {
	path := os.Getenv("SHADOWTUN_CONFIG")
	if path == "" {
		path = "config.json"
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	suite, err := sscipher.Lookup(cfg.Method)
	if err != nil {
		log.Fatalf("cipher: %v", err)
	}
	masterKey := sscipher.MasterKey(cfg.Password, suite.KeySize)

	go runSocksListener(cfg, suite, masterKey)
	if addr := cfg.HTTPListenAddr(); addr != "" {
		go runHTTPConnectListener(cfg, suite, masterKey)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}

func runSocksListener(cfg *config.Config, suite sscipher.Suite, masterKey []byte) {
	l, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		log.Fatalf("socks listen: %v", err)
	}
	log.Printf("socks proxy listening on %s <-> %s", cfg.ListenAddr(), cfg.ServerAddr())

	for {
		c, err := l.Accept()
		if err != nil {
			log.Printf("socks accept: %v", err)
			continue
		}
		go handleSocksClient(c, cfg, suite, masterKey)
	}
}

func handleSocksClient(c net.Conn, cfg *config.Config, suite sscipher.Suite, masterKey []byte) {
	if err := socks.Greet(c); err != nil {
		log.Printf("socks greet: %v", err)
		c.Close()
		return
	}
	addr, err := socks.Request(c)
	if err != nil {
		log.Printf("socks request: %v", err)
		c.Close()
		return
	}
	header, err := socks.RequestHeaderBytes(addr)
	if err != nil {
		log.Printf("socks address header: %v", err)
		c.Close()
		return
	}

	peer := transport.NewTCP(c.(*net.TCPConn))
	dialTunnelAndRelay(peer, c, cfg, suite, masterKey, header, func() error {
		return socks.WriteSuccess(peer)
	}, func() {
		socks.WriteConnectionRefused(peer)
	})
}

func runHTTPConnectListener(cfg *config.Config, suite sscipher.Suite, masterKey []byte) {
	l, err := net.Listen("tcp", cfg.HTTPListenAddr())
	if err != nil {
		log.Fatalf("http connect listen: %v", err)
	}
	log.Printf("http connect proxy listening on %s <-> %s", cfg.HTTPListenAddr(), cfg.ServerAddr())

	for {
		c, err := l.Accept()
		if err != nil {
			log.Printf("http connect accept: %v", err)
			continue
		}
		go handleHTTPConnectClient(c, cfg, suite, masterKey)
	}
}

func handleHTTPConnectClient(c net.Conn, cfg *config.Config, suite sscipher.Suite, masterKey []byte) {
	addr, reader, err := httpconnect.Request(c)
	if err != nil {
		log.Printf("http connect request: %v", err)
		c.Close()
		return
	}
	header, err := socks.EmitAddressHeader(addr)
	if err != nil {
		log.Printf("http connect address header: %v", err)
		c.Close()
		return
	}

	// Request already consumed the CONNECT headers through reader; any
	// bytes the client wrote immediately after the blank line are sitting
	// in reader's internal buffer, so the peer must keep reading through
	// that same reader rather than straight off the socket.
	peer := transport.NewTCPBuffered(c.(*net.TCPConn), reader)
	dialTunnelAndRelay(peer, c, cfg, suite, masterKey, header, func() error {
		return httpconnect.WriteSuccess(peer)
	}, func() {})
}

func dialTunnelAndRelay(
	peer transport.ByteDuplex,
	c net.Conn,
	cfg *config.Config,
	suite sscipher.Suite,
	masterKey []byte,
	header []byte,
	onConnected func() error,
	onRefused func(),
) {
	tunnel, err := dialTunnel(cfg)
	if err != nil {
		log.Printf("dial tunnel %s: %v", cfg.ServerAddr(), err)
		onRefused()
		c.Close()
		return
	}

	if err := onConnected(); err != nil {
		tunnel.Close()
		c.Close()
		return
	}

	enc, err := aead.NewEncryptor(tunnel, suite, masterKey)
	if err != nil {
		tunnel.Close()
		c.Close()
		return
	}
	dec := aead.NewDecryptor(tunnel, suite, masterKey, false)

	session := relay.NewSession(peer, tunnel, cfg.TimeoutDuration())
	if err := session.RunLocal(enc, dec, header); err != nil {
		log.Printf("session error: %v", err)
	}
}

func dialTunnel(cfg *config.Config) (transport.ByteDuplex, error) {
	switch cfg.Tunnel {
	case config.TunnelWS:
		return transport.DialWebSocket("ws://" + cfg.ServerAddr() + "/")
	case config.TunnelWSS:
		return transport.DialWebSocket("wss://" + cfg.ServerAddr() + "/")
	default:
		return transport.DialTCP(cfg.ServerAddr())
	}
}
