package dialer

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/die-net/socksd/internal/socks"
	"github.com/die-net/socksd/internal/testutil"
)

// socks5Upstream serves one SOCKS5 session with the socks package and relays
// to the requested destination.
func socks5Upstream(ctx context.Context, cfg socks.Config) func(net.Conn) {
	return func(c net.Conn) {
		cfg.Accept = func(ctx context.Context, s *socks.Session, port uint16, host string, ready socks.ReadyFunc) {
			d := net.Dialer{}
			dst, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(int(port))))
			if err != nil {
				_ = s.Refuse()
				return
			}
			defer dst.Close()
			if err := ready(); err != nil {
				return
			}
			testutil.Pipe(s.Conn(), dst)
		}
		_, _ = socks.Negotiate(ctx, c, &cfg)
	}
}

func TestSOCKS5ProxyDialerDialSuccess(t *testing.T) {
	tests := []struct {
		name string
		user string
		pass string
	}{
		{name: "no_auth"},
		{name: "user_pass", user: "user", pass: "pass"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			echoLn := testutil.StartEchoTCPServer(t, ctx)
			defer echoLn.Close()

			cfg := socks.Config{Credentials: socks.Credentials{Username: tt.user, Password: tt.pass}}
			upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, socks5Upstream(ctx, cfg))

			f := NewSOCKS5ProxyDialer(Config{DialTimeout: 2 * time.Second}, upLn.Addr().String(), tt.user, tt.pass)

			conn, err := f.DialContext(ctx, "tcp", echoLn.Addr().String())
			if err != nil {
				t.Fatal(err)
			}

			testutil.AssertEcho(t, conn, conn, []byte("hello"))
			_ = conn.Close()

			waitUp()
		})
	}
}

func TestSOCKS5ProxyDialerWrongPassword(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cfg := socks.Config{Credentials: socks.Credentials{Username: "user", Password: "pass"}}
	upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, socks5Upstream(ctx, cfg))

	f := NewSOCKS5ProxyDialer(Config{DialTimeout: 2 * time.Second}, upLn.Addr().String(), "user", "nope")

	if _, err := f.DialContext(ctx, "tcp", "127.0.0.1:1"); err == nil {
		t.Fatal("expected error")
	}

	waitUp()
}

func TestSOCKS5ProxyDialerDialContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lc := net.ListenConfig{}
	upLn, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer upLn.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := upLn.Accept()
		if err != nil {
			return
		}
		accepted <- c
	}()

	f := NewSOCKS5ProxyDialer(Config{DialTimeout: 2 * time.Second}, upLn.Addr().String(), "", "")

	errc := make(chan error, 1)
	go func() {
		_, err := f.DialContext(ctx, "tcp", "127.0.0.1:1")
		errc <- err
	}()

	c := <-accepted
	defer c.Close()
	cancel()

	select {
	case err := <-errc:
		if err == nil {
			t.Fatal("expected error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("dial did not return after cancel")
	}
}

func TestSOCKS5ProxyDialerDialFail(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cfg := socks.Config{}
	upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, socks5Upstream(ctx, cfg))

	f := NewSOCKS5ProxyDialer(Config{DialTimeout: 2 * time.Second}, upLn.Addr().String(), "", "")

	// Port 1 on loopback is not listening; the upstream refuses.
	if _, err := f.DialContext(ctx, "tcp", "127.0.0.1:1"); err == nil {
		t.Fatal("expected error")
	}

	waitUp()
}
