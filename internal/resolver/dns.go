package resolver

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/miekg/dns"
)

// DNS queries a single DNS server for A records over UDP, retrying over TCP
// when the answer is truncated.
type DNS struct {
	server string
	udp    *dns.Client
	tcp    *dns.Client
}

func NewDNS(server string, timeout time.Duration) *DNS {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DNS{
		server: server,
		udp:    &dns.Client{Net: "udp", Timeout: timeout},
		tcp:    &dns.Client{Net: "tcp", Timeout: timeout},
	}
}

func (d *DNS) LookupIPv4(ctx context.Context, host string) (netip.Addr, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)
	m.RecursionDesired = true

	in, _, err := d.udp.ExchangeContext(ctx, m, d.server)
	if err == nil && in.Truncated {
		in, _, err = d.tcp.ExchangeContext(ctx, m, d.server)
	}
	if err != nil {
		return netip.Addr{}, fmt.Errorf("dns %s: %w", host, err)
	}
	if in.Rcode != dns.RcodeSuccess {
		return netip.Addr{}, fmt.Errorf("dns %s: %s", host, dns.RcodeToString[in.Rcode])
	}

	for _, rr := range in.Answer {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		if addr, ok := netip.AddrFromSlice(a.A); ok {
			return addr.Unmap(), nil
		}
	}
	return netip.Addr{}, fmt.Errorf("dns %s: no A records", host)
}
