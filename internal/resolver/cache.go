package resolver

import (
	"context"
	"net/netip"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/die-net/socksd/internal/socks"
)

// Cached memoizes successful lookups of next for ttl. Concurrent lookups of
// the same name share one upstream query. Failures are not cached.
type Cached struct {
	next  socks.Resolver
	ttl   time.Duration
	cache *cache.Cache
	sf    singleflight.Group
}

func NewCached(next socks.Resolver, ttl time.Duration) *Cached {
	return &Cached{
		next:  next,
		ttl:   ttl,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *Cached) LookupIPv4(ctx context.Context, host string) (netip.Addr, error) {
	if v, ok := c.cache.Get(host); ok {
		return v.(netip.Addr), nil
	}

	v, err, _ := c.sf.Do(host, func() (any, error) {
		addr, err := c.next.LookupIPv4(ctx, host)
		if err != nil {
			return nil, err
		}
		c.cache.Set(host, addr, c.ttl)
		return addr, nil
	})
	if err != nil {
		return netip.Addr{}, err
	}
	return v.(netip.Addr), nil
}

// Len returns the number of cached names, including expired entries not yet
// evicted.
func (c *Cached) Len() int {
	return c.cache.ItemCount()
}
