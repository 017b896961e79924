package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/time/rate"

	"github.com/die-net/socksd/internal/dialer"
	"github.com/die-net/socksd/internal/socks"
)

// SOCKSServer accepts SOCKS 4, 4a and 5 clients and runs one negotiation per
// connection.
type SOCKSServer struct {
	ctx     context.Context
	cfg     Config
	socks   socks.Config
	next    socks.AcceptFunc
	limiter *rate.Limiter
	log     *slog.Logger
}

func NewSOCKSServer(ctx context.Context, cfg Config) *SOCKSServer {
	if ctx == nil {
		ctx = context.Background()
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &SOCKSServer{ctx: ctx, cfg: cfg, log: log}

	s.next = cfg.SOCKS.Accept
	if s.next == nil {
		d := cfg.Dialer
		if d == nil {
			d = dialer.NewDirectDialer(dialer.Config{KeepAlive: cfg.KeepAlive})
		}
		s.next = Forward(d, log)
	}

	s.socks = cfg.SOCKS
	s.socks.Accept = s.accept
	if s.socks.Logger == nil {
		s.socks.Logger = log
	}

	if cfg.AcceptRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.AcceptRate), max(cfg.AcceptBurst, 1))
	}
	return s
}

// Serve accepts connections on ln until it is closed. It returns nil if the
// server's context was canceled.
func (s *SOCKSServer) Serve(ln net.Listener) error {
	for {
		if s.limiter != nil {
			if err := s.limiter.Wait(s.ctx); err != nil {
				return s.serveErr(fmt.Errorf("accept limiter: %w", err))
			}
		}

		c, err := ln.Accept()
		if err != nil {
			return s.serveErr(fmt.Errorf("accept: %w", err))
		}
		go s.handle(c)
	}
}

func (s *SOCKSServer) serveErr(err error) error {
	if s.ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *SOCKSServer) handle(conn net.Conn) {
	activeSessions.Inc()
	defer activeSessions.Dec()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	if s.cfg.NegotiationTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.cfg.NegotiationTimeout))
	}

	sess, err := socks.Negotiate(ctx, conn, &s.socks)
	sessionsTotal.WithLabelValues(versionLabel(sess), resultLabel(err)).Inc()
	if err != nil {
		s.log.Debug("socks negotiation failed", "remote", conn.RemoteAddr().String(), "err", err)
	}
}

// accept clears the negotiation deadline before handing off.
func (s *SOCKSServer) accept(ctx context.Context, sess *socks.Session, port uint16, host string, ready socks.ReadyFunc) {
	_ = sess.Conn().SetDeadline(time.Time{})
	s.next(ctx, sess, port, host, ready)
}
