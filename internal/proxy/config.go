package proxy

import (
	"log/slog"
	"net"
	"time"

	"github.com/die-net/socksd/internal/dialer"
	"github.com/die-net/socksd/internal/socks"
)

type Config struct {
	// NegotiationTimeout bounds the SOCKS handshake of each connection.
	NegotiationTimeout time.Duration

	KeepAlive net.KeepAliveConfig

	// AcceptRate limits accepted connections per second when positive.
	AcceptRate  float64
	AcceptBurst int

	// Dialer reaches destinations for the default accept collaborator.
	Dialer dialer.Dialer

	// SOCKS is the negotiation config. If SOCKS.Accept is nil, sessions are
	// forwarded through Dialer.
	SOCKS socks.Config

	Logger *slog.Logger
}
