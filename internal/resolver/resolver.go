package resolver

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/die-net/socksd/internal/socks"
)

type Config struct {
	// Server is a DNS server host:port. Empty uses the system resolver.
	Server string

	Timeout time.Duration

	// CacheTTL enables caching of successful lookups when positive.
	CacheTTL time.Duration
}

// New constructs the resolver described by cfg.
func New(cfg Config) (socks.Resolver, error) {
	var r socks.Resolver = NewSystem()
	if cfg.Server != "" {
		if _, _, err := net.SplitHostPort(cfg.Server); err != nil {
			cfg.Server = net.JoinHostPort(cfg.Server, "53")
		}
		if _, _, err := net.SplitHostPort(cfg.Server); err != nil {
			return nil, fmt.Errorf("invalid dns server %q: %w", cfg.Server, err)
		}
		r = NewDNS(cfg.Server, cfg.Timeout)
	}

	if cfg.CacheTTL > 0 {
		r = NewCached(r, cfg.CacheTTL)
	}
	return r, nil
}

// System resolves through net.DefaultResolver.
type System struct {
	r *net.Resolver
}

func NewSystem() *System {
	return &System{r: net.DefaultResolver}
}

func (s *System) LookupIPv4(ctx context.Context, host string) (netip.Addr, error) {
	addrs, err := s.r.LookupNetIP(ctx, "ip4", host)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("lookup %s: %w", host, err)
	}
	for _, a := range addrs {
		if a = a.Unmap(); a.Is4() {
			return a, nil
		}
	}
	return netip.Addr{}, fmt.Errorf("lookup %s: no IPv4 address", host)
}
