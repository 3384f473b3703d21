// Package resolver resolves SOCKS/Shadowsocks domain addresses to IPv4
// addresses for the server peer's upstream dial, backed by a short-lived
// TTL cache and single-flight de-duplication so a burst of concurrent
// sessions resolving the same popular hostname issues one lookup instead
// of N.
package resolver

import (
	"context"
	"errors"
	"net"
	"time"

	lrucache "github.com/cognusion/go-cache-lru"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTTL             = 60 * time.Second
	defaultReapFrequency   = 30 * time.Second
	defaultMaxEntries      = 100
)

// ErrNoAddresses is returned when a hostname resolves successfully but
// yields no usable IPv4 address.
var ErrNoAddresses = errors.New("resolver: no IPv4 addresses found")

// Resolver resolves hostnames to IPv4 addresses, wrapping
// net.DefaultResolver's system lookup behind a TTL answer cache.
type Resolver struct {
	cache *lrucache.Cache
	group singleflight.Group

	lookupIP func(ctx context.Context, host string) ([]net.IP, error)
}

// New constructs a Resolver with a cache entry TTL of ttl (a zero value
// selects a 60 second default) and a maximum LRU size of maxEntries (a
// zero value selects 100).
func New(ttl time.Duration, maxEntries int) *Resolver {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &Resolver{
		cache: lrucache.New(ttl, defaultReapFrequency, maxEntries),
		lookupIP: func(ctx context.Context, host string) ([]net.IP, error) {
			return net.DefaultResolver.LookupIP(ctx, "ip4", host)
		},
	}
}

// Resolve returns an IPv4 address for host. A literal IPv4 or IPv6 address
// is returned unchanged without touching the cache or issuing a lookup.
// Resolution failures are returned verbatim; the caller treats them as
// session-fatal.
func (r *Resolver) Resolve(ctx context.Context, host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}

	if v, ok := r.cache.Get(host); ok {
		return v.(net.IP), nil
	}

	v, err, _ := r.group.Do(host, func() (interface{}, error) {
		ips, err := r.lookupIP(ctx, host)
		if err != nil {
			return nil, err
		}
		ip := firstIPv4(ips)
		if ip == nil {
			return nil, ErrNoAddresses
		}
		r.cache.Set(host, ip, lrucache.DefaultExpiration)
		return ip, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(net.IP), nil
}

func firstIPv4(ips []net.IP) net.IP {
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return v4
		}
	}
	return nil
}
