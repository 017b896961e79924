package resolver

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miekg/dns"

	"github.com/die-net/socksd/internal/socks"
)

// startDNSServer serves A records from records on a loopback UDP socket.
func startDNSServer(t *testing.T, records map[string]string) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	handler := dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		q := r.Question[0]
		ip, ok := records[q.Name]
		switch {
		case !ok:
			m.SetRcode(r, dns.RcodeNameError)
		case q.Qtype == dns.TypeA:
			rr, err := dns.NewRR(q.Name + " 60 IN A " + ip)
			if err == nil {
				m.Answer = append(m.Answer, rr)
			}
		}
		_ = w.WriteMsg(m)
	})

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })

	return pc.LocalAddr().String()
}

func TestDNSLookupIPv4(t *testing.T) {
	addr := startDNSServer(t, map[string]string{"example.test.": "192.0.2.7"})
	r := NewDNS(addr, 2*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got, err := r.LookupIPv4(ctx, "example.test")
	if err != nil {
		t.Fatal(err)
	}
	if want := netip.MustParseAddr("192.0.2.7"); got != want {
		t.Fatalf("got %s want %s", got, want)
	}

	if _, err := r.LookupIPv4(ctx, "missing.test"); err == nil {
		t.Fatal("expected NXDOMAIN error")
	}
}

func TestCachedLookup(t *testing.T) {
	var calls atomic.Int32
	next := socks.ResolverFunc(func(_ context.Context, host string) (netip.Addr, error) {
		calls.Add(1)
		if host == "bad.test" {
			return netip.Addr{}, errors.New("no such host")
		}
		return netip.MustParseAddr("198.51.100.1"), nil
	})
	c := NewCached(next, time.Minute)
	ctx := context.Background()

	for range 3 {
		got, err := c.LookupIPv4(ctx, "good.test")
		if err != nil {
			t.Fatal(err)
		}
		if got != netip.MustParseAddr("198.51.100.1") {
			t.Fatalf("got %s", got)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("upstream calls = %d, want 1", n)
	}

	for range 2 {
		if _, err := c.LookupIPv4(ctx, "bad.test"); err == nil {
			t.Fatal("expected error")
		}
	}
	if n := calls.Load(); n != 3 {
		t.Fatalf("upstream calls = %d, want 3 (failures are not cached)", n)
	}
	if c.Len() != 1 {
		t.Fatalf("cached names = %d, want 1", c.Len())
	}
}

func TestCachedCollapsesConcurrentLookups(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	next := socks.ResolverFunc(func(context.Context, string) (netip.Addr, error) {
		calls.Add(1)
		<-release
		return netip.MustParseAddr("203.0.113.9"), nil
	})
	c := NewCached(next, time.Minute)

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			if _, err := c.LookupIPv4(context.Background(), "slow.test"); err != nil {
				t.Error(err)
			}
		})
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Fatalf("upstream calls = %d, want 1", n)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		wantType any
	}{
		{name: "system", wantType: &System{}},
		{name: "dns", cfg: Config{Server: "127.0.0.1:53"}, wantType: &DNS{}},
		{name: "dns_default_port", cfg: Config{Server: "127.0.0.1"}, wantType: &DNS{}},
		{name: "cached", cfg: Config{CacheTTL: time.Minute}, wantType: &Cached{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.cfg)
			if err != nil {
				t.Fatal(err)
			}
			if got, want := reflect.TypeOf(r), reflect.TypeOf(tt.wantType); got != want {
				t.Fatalf("got %s want %s", got, want)
			}
		})
	}
}
