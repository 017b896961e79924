package dialer

import (
	"context"
	"fmt"
	"net"
)

type directDialer struct {
	d net.Dialer
}

// NewDirectDialer dials destinations directly with cfg's timeout and TCP
// keepalive settings.
func NewDirectDialer(cfg Config) Dialer {
	return &directDialer{d: net.Dialer{Timeout: cfg.DialTimeout, KeepAliveConfig: cfg.KeepAlive}}
}

func (f *directDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	conn, err := f.d.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("dial %s %s: %w", network, address, err)
	}
	return conn, nil
}
