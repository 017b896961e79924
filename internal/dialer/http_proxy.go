package dialer

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPProxyDialer dials outbound TCP connections via an HTTP or HTTPS proxy
// using the CONNECT method.
type HTTPProxyDialer struct {
	cfg      Config
	proxyURL *url.URL
	auth     string
	direct   Dialer
}

// NewHTTPProxyDialer constructs a CONNECT dialer for proxyURL. If username is
// non-empty, Proxy-Authorization is sent using HTTP Basic auth.
func NewHTTPProxyDialer(cfg Config, proxyURL *url.URL, username, password string) (*HTTPProxyDialer, error) {
	if proxyURL == nil || proxyURL.Hostname() == "" {
		return nil, errors.New("http proxy dialer: invalid proxy host")
	}
	if proxyURL.Scheme != "http" && proxyURL.Scheme != "https" {
		return nil, fmt.Errorf("http proxy dialer: unsupported scheme: %q", proxyURL.Scheme)
	}

	var auth string
	if username != "" {
		auth = "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
	}

	return &HTTPProxyDialer{
		cfg:      cfg,
		proxyURL: proxyURL,
		auth:     auth,
		direct:   NewDirectDialer(cfg),
	}, nil
}

// DialContext tunnels to address through the proxy. For HTTPS proxies the
// TLS handshake with the proxy happens before CONNECT is sent.
func (f *HTTPProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if !strings.HasPrefix(network, "tcp") {
		return nil, fmt.Errorf("http proxy dial %s %s: unsupported network", network, address)
	}

	c, err := f.direct.DialContext(ctx, network, f.proxyURL.Host)
	if err != nil {
		return nil, fmt.Errorf("http proxy: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.Close()
	})
	defer stop()

	if f.cfg.NegotiationTimeout > 0 {
		_ = c.SetDeadline(time.Now().Add(f.cfg.NegotiationTimeout))
	}

	if f.proxyURL.Scheme == "https" {
		tlsConn := tls.Client(c, &tls.Config{MinVersion: tls.VersionTLS12, ServerName: f.proxyURL.Hostname()})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = tlsConn.Close()
			return nil, fmt.Errorf("http proxy connect tls handshake: %w", err)
		}
		c = tlsConn
	}

	if err := f.connect(c, address); err != nil {
		_ = c.Close()
		return nil, err
	}

	if f.cfg.NegotiationTimeout > 0 {
		_ = c.SetDeadline(time.Time{})
	}
	return c, nil
}

func (f *HTTPProxyDialer) connect(c net.Conn, address string) error {
	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: address},
		Host:   address,
		Header: make(http.Header),
	}
	if f.auth != "" {
		req.Header.Set("Proxy-Authorization", f.auth)
	}

	if err := req.Write(c); err != nil {
		return fmt.Errorf("http proxy connect write: %w", err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(c), req)
	if err != nil {
		return fmt.Errorf("http proxy connect read: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("http proxy connect failed: %s", resp.Status)
	}
	return nil
}
