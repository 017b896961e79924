package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	txsocks5 "github.com/txthinking/socks5"
)

// SOCKS5ProxyDialer dials outbound TCP connections through an upstream SOCKS5
// proxy, optionally authenticating with username/password.
type SOCKS5ProxyDialer struct {
	cfg       Config
	proxyAddr string
	username  string
	password  string
	direct    Dialer
}

func NewSOCKS5ProxyDialer(cfg Config, proxyAddr, username, password string) *SOCKS5ProxyDialer {
	return &SOCKS5ProxyDialer{
		cfg:       cfg,
		proxyAddr: proxyAddr,
		username:  username,
		password:  password,
		direct:    NewDirectDialer(cfg),
	}
}

// DialContext connects to the proxy and performs negotiation and CONNECT
// before returning. Canceling ctx aborts the negotiation.
func (f *SOCKS5ProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if !strings.HasPrefix(network, "tcp") {
		return nil, fmt.Errorf("socks5 proxy dial %s %s: unsupported network", network, address)
	}

	c, err := f.direct.DialContext(ctx, "tcp", f.proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.Close()
	})
	defer stop()

	if f.cfg.NegotiationTimeout > 0 {
		_ = c.SetDeadline(time.Now().Add(f.cfg.NegotiationTimeout))
	}

	if err := f.negotiate(c, address); err != nil {
		_ = c.Close()
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("socks5 proxy dial %s %s: %w", network, address, err)
	}

	if f.cfg.NegotiationTimeout > 0 {
		_ = c.SetDeadline(time.Time{})
	}
	return c, nil
}

func (f *SOCKS5ProxyDialer) negotiate(c net.Conn, address string) error {
	methods := []byte{txsocks5.MethodNone}
	if f.username != "" {
		methods = append(methods, txsocks5.MethodUsernamePassword)
	}
	if _, err := txsocks5.NewNegotiationRequest(methods).WriteTo(c); err != nil {
		return fmt.Errorf("write negotiation: %w", err)
	}

	neg, err := txsocks5.NewNegotiationReplyFrom(c)
	if err != nil {
		return fmt.Errorf("read negotiation: %w", err)
	}

	switch neg.Method {
	case txsocks5.MethodNone:
	case txsocks5.MethodUsernamePassword:
		if f.username == "" {
			return errors.New("server requires username/password")
		}
		if _, err := txsocks5.NewUserPassNegotiationRequest([]byte(f.username), []byte(f.password)).WriteTo(c); err != nil {
			return fmt.Errorf("write userpass: %w", err)
		}
		rep, err := txsocks5.NewUserPassNegotiationReplyFrom(c)
		if err != nil {
			return fmt.Errorf("read userpass: %w", err)
		}
		if rep.Status != txsocks5.UserPassStatusSuccess {
			return errors.New("auth failed")
		}
	default:
		return fmt.Errorf("unsupported negotiation method: %d", neg.Method)
	}

	return connect(c, address)
}

func connect(c net.Conn, address string) error {
	atyp, dstAddr, dstPort, err := txsocks5.ParseAddress(address)
	if err != nil {
		return fmt.Errorf("parse address: %w", err)
	}
	if atyp == txsocks5.ATYPDomain {
		dstAddr = dstAddr[1:]
	}

	if _, err := txsocks5.NewRequest(txsocks5.CmdConnect, atyp, dstAddr, dstPort).WriteTo(c); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	rep, err := txsocks5.NewReplyFrom(c)
	if err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	if rep.Rep != txsocks5.RepSuccess {
		return fmt.Errorf("connect failed: reply %#02x", rep.Rep)
	}
	return nil
}
