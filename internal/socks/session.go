package socks

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
)

const (
	socks4Version byte = 0x04
	socks5Version byte = 0x05

	cmdConnect      byte = 0x01
	cmdBind         byte = 0x02
	cmdUDPAssociate byte = 0x03

	// DefaultMaxUserIDLength bounds the SOCKS4 userid scan, terminator included.
	DefaultMaxUserIDLength = 1024
	// DefaultMaxSOCKS4Length bounds the combined userid and 4a domain scan.
	DefaultMaxSOCKS4Length = 2048
)

// ReadyFunc writes the success reply for a handed-off session. It is safe to
// call more than once; only the first call writes.
type ReadyFunc func() error

// AcceptFunc receives a negotiated CONNECT. It owns the session's connection
// from then on and must call ready once the outbound connection is up. host
// is the literal address for SOCKS4 and SOCKS5 IP requests, the resolved IPv4
// address for SOCKS4a and the unresolved name for SOCKS5 domain requests.
type AcceptFunc func(ctx context.Context, s *Session, port uint16, host string, ready ReadyFunc)

// Resolver resolves SOCKS4a destination names.
type Resolver interface {
	LookupIPv4(ctx context.Context, host string) (netip.Addr, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, host string) (netip.Addr, error)

func (f ResolverFunc) LookupIPv4(ctx context.Context, host string) (netip.Addr, error) {
	return f(ctx, host)
}

// Credentials is the username/password pair SOCKS5 clients must present. An
// empty Username disables authentication.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) enabled() bool {
	return c.Username != ""
}

// Config is shared read-only by every session of a server.
type Config struct {
	Credentials Credentials

	// SOCKS4UserID, if set, must match the userid of SOCKS4 requests.
	SOCKS4UserID string

	// Resolver resolves SOCKS4a names. Nil uses net.DefaultResolver.
	Resolver Resolver

	// Accept is invoked for every negotiated CONNECT. If nil, Negotiate
	// returns the session and the caller calls Session.Ready itself.
	Accept AcceptFunc

	MaxUserIDLength int
	MaxSOCKS4Length int

	Logger *slog.Logger
}

func (c *Config) maxUserIDLength() int {
	if c.MaxUserIDLength > 0 {
		return c.MaxUserIDLength
	}
	return DefaultMaxUserIDLength
}

func (c *Config) maxSOCKS4Length() int {
	if c.MaxSOCKS4Length > 0 {
		return c.MaxSOCKS4Length
	}
	return DefaultMaxSOCKS4Length
}

func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Config) resolver() Resolver {
	if c.Resolver != nil {
		return c.Resolver
	}
	return netResolver{r: net.DefaultResolver}
}

type state int

// States only move forward.
const (
	stateHandshake state = iota
	stateAuth
	stateRequest
	stateResolve
	stateHandedOff
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateHandshake:
		return "handshake"
	case stateAuth:
		return "auth"
	case stateRequest:
		return "request"
	case stateResolve:
		return "resolve"
	case stateHandedOff:
		return "handed-off"
	case stateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session is the negotiation state of one client connection. It is confined
// to the goroutine running Negotiate until handed off.
type Session struct {
	// Version is 4 or 5 once the first byte has been read.
	Version byte
	// Method is the negotiated SOCKS5 authentication method.
	Method Method
	// Request holds the raw request frame as received.
	Request []byte
	// Destination is the requested target.
	Destination Destination
	// Resolved is the address a SOCKS4a name resolved to.
	Resolved netip.Addr
	// UserID is the SOCKS4 userid field.
	UserID string

	conn  net.Conn
	br    *bufio.Reader
	cfg   *Config
	log   *slog.Logger
	state state

	replyOnce sync.Once
}

// Negotiate runs the handshake on conn until the session is handed off or
// fails. On failure the appropriate rejection (if the protocol has one) has
// been written and conn is closed. On success the session has been passed to
// cfg.Accept, and Negotiate returns once Accept returns.
//
// Canceling ctx closes conn while negotiation is still in progress.
func Negotiate(ctx context.Context, conn net.Conn, cfg *Config) (*Session, error) {
	s := &Session{
		conn: conn,
		br:   bufio.NewReader(conn),
		cfg:  cfg,
		log:  cfg.logger().With("remote", conn.RemoteAddr().String()),
	}

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})

	if err := s.run(ctx); err != nil {
		stop()
		s.state = stateClosed
		_ = conn.Close()
		return s, err
	}

	if !stop() {
		return s, fmt.Errorf("negotiate: %w", context.Cause(ctx))
	}

	if cfg.Accept != nil {
		cfg.Accept(ctx, s, s.Destination.Port, s.acceptHost(), s.Ready)
	}
	return s, nil
}

// run drives the state machine until the session is handed off.
func (s *Session) run(ctx context.Context) error {
	for s.state != stateHandedOff {
		var (
			next state
			err  error
		)
		switch s.state {
		case stateHandshake:
			next, err = s.handshake()
		case stateAuth:
			next, err = s.authenticate()
		case stateRequest:
			if s.Version == socks4Version {
				next, err = s.readSOCKS4Request()
			} else {
				next, err = s.readSOCKS5Request()
			}
		case stateResolve:
			next, err = s.resolve(ctx)
		default:
			return fmt.Errorf("socks: unexpected state %s", s.state)
		}
		if err != nil {
			return err
		}
		if next <= s.state {
			return fmt.Errorf("socks: invalid transition %s -> %s", s.state, next)
		}
		s.state = next
	}
	return nil
}

// handshake dispatches on the version byte without consuming it.
func (s *Session) handshake() (state, error) {
	b, err := s.br.Peek(1)
	if err != nil {
		return stateClosed, fmt.Errorf("%w: read version: %w", ErrMalformedFrame, err)
	}

	switch b[0] {
	case socks5Version:
		s.Version = socks5Version
		return s.negotiateMethod()
	case socks4Version:
		s.Version = socks4Version
		return stateRequest, nil
	default:
		s.log.Debug("wrong socks version", "version", b[0])
		return stateClosed, fmt.Errorf("%w: %d", ErrProtocolVersion, b[0])
	}
}

func (s *Session) acceptHost() string {
	if s.Resolved.IsValid() {
		return s.Resolved.String()
	}
	return s.Destination.Host
}

// Conn returns the client connection, including any bytes the client sent
// after its request that were already buffered during negotiation.
func (s *Session) Conn() net.Conn {
	if s.br.Buffered() == 0 {
		return s.conn
	}
	return &bufferedConn{Conn: s.conn, r: s.br}
}

// Ready writes the success reply. Only the first call to Ready or Refuse
// writes anything.
func (s *Session) Ready() error {
	err := errSessionAlreadyReplied
	s.replyOnce.Do(func() {
		var reply []byte
		if s.Version == socks4Version {
			ip := s.Resolved
			if !ip.IsValid() {
				ip = netip.MustParseAddr(s.Destination.Host)
			}
			reply = socks4Reply(socks4Granted, s.Destination.Port, ip.As4())
		} else {
			reply = socks5SuccessReply(s.Request)
		}
		if _, err = s.conn.Write(reply); err != nil {
			err = fmt.Errorf("success reply: %w", err)
			return
		}
		s.log.Debug("connected", "version", s.Version, "destination", s.Destination.String(), "userid", s.UserID)
	})
	return err
}

// Refuse writes a failure reply for a session whose outbound connection could
// not be established: 0x5b for SOCKS4 and "connection refused" for SOCKS5.
func (s *Session) Refuse() error {
	err := errSessionAlreadyReplied
	s.replyOnce.Do(func() {
		if s.Version == socks4Version {
			err = writeSOCKS4Failure(s.conn)
		} else {
			err = writeSOCKS5Failure(s.conn, repConnectionRefused)
		}
	})
	return err
}

type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

func (c *bufferedConn) CloseWrite() error {
	if cw, ok := c.Conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return c.Conn.Close()
}

type netResolver struct {
	r *net.Resolver
}

func (n netResolver) LookupIPv4(ctx context.Context, host string) (netip.Addr, error) {
	addrs, err := n.r.LookupNetIP(ctx, "ip4", host)
	if err != nil {
		return netip.Addr{}, err
	}
	if len(addrs) == 0 {
		return netip.Addr{}, fmt.Errorf("no IPv4 address for %q", host)
	}
	return addrs[0].Unmap(), nil
}
