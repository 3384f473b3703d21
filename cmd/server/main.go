// Command server runs the server peer: it accepts encrypted tunnels,
// extracts the destination address from the first decrypted payload, and
// relays plaintext to that upstream.
package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"shadowtun/aead"
	sscipher "shadowtun/cipher"
	"shadowtun/config"
	"shadowtun/relay"
	"shadowtun/resolver"
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
	res := resolver.New(0, 0)

	switch cfg.Tunnel {
	case config.TunnelWS, config.TunnelWSS:
		go runWebSocketServer(cfg, suite, masterKey, res)
	default:
		go runTCPServer(cfg, suite, masterKey, res)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}

func runTCPServer(cfg *config.Config, suite sscipher.Suite, masterKey []byte, res *resolver.Resolver) {
	l, err := net.Listen("tcp", cfg.ServerAddr())
	if err != nil {
		log.Fatalf("tunnel listen: %v", err)
	}
	log.Printf("tunnel listening on %s", cfg.ServerAddr())

	for {
		c, err := l.Accept()
		if err != nil {
			log.Printf("tunnel accept: %v", err)
			continue
		}
		tcpConn, ok := c.(*net.TCPConn)
		if !ok {
			c.Close()
			continue
		}
		go handleTunnel(transport.NewTCP(tcpConn), cfg, suite, masterKey, res)
	}
}

func runWebSocketServer(cfg *config.Config, suite sscipher.Suite, masterKey []byte, res *resolver.Resolver) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		tunnel, err := transport.UpgradeWebSocket(w, r)
		if err != nil {
			log.Printf("websocket upgrade: %v", err)
			return
		}
		go handleTunnel(tunnel, cfg, suite, masterKey, res)
	})
	log.Printf("tunnel listening on %s (websocket)", cfg.ServerAddr())
	if err := http.ListenAndServe(cfg.ServerAddr(), mux); err != nil {
		log.Fatalf("tunnel listen: %v", err)
	}
}

func handleTunnel(tunnel transport.ByteDuplex, cfg *config.Config, suite sscipher.Suite, masterKey []byte, res *resolver.Resolver) {
	dec := aead.NewDecryptor(tunnel, suite, masterKey, true)

	first, err := dec.ReadFirstPayload()
	if err != nil {
		log.Printf("first payload: %v", err)
		tunnel.Close()
		return
	}
	addr, remainder, err := socks.ParseAddressHeader(first)
	if err != nil {
		log.Printf("address header: %v", err)
		tunnel.Close()
		return
	}
	if err := dec.Resume(); err != nil {
		log.Printf("resume: %v", err)
		tunnel.Close()
		return
	}

	pending := &relay.PendingBuffer{}
	if len(remainder) > 0 {
		pending.Seed(remainder)
	}
	drainer := relay.StartDrain(dec, pending)

	upstream, err := dialUpstream(addr, res)
	drainer.Stop()
	if err != nil {
		log.Printf("dial upstream %s: %v", addr, err)
		tunnel.Close()
		return
	}

	enc, err := aead.NewEncryptor(tunnel, suite, masterKey)
	if err != nil {
		tunnel.Close()
		upstream.Close()
		return
	}

	pendingBytes, eof := pending.Bytes()
	session := relay.NewSession(tunnel, upstream, cfg.TimeoutDuration())
	if err := session.RunServer(enc, dec, pendingBytes, eof); err != nil {
		log.Printf("session error: %v", err)
	}
}

func dialUpstream(addr socks.Address, res *resolver.Resolver) (transport.ByteDuplex, error) {
	host := addr.Host
	if addr.Kind == socks.KindDomain {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		ip, err := res.Resolve(ctx, addr.Host)
		if err != nil {
			return nil, err
		}
		host = ip.String()
	}
	return transport.DialTCP(net.JoinHostPort(host, strconv.Itoa(int(addr.Port))))
}
