package proxy

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/die-net/socksd/internal/socks"
)

var (
	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socksd_sessions_total",
		Help: "SOCKS sessions by protocol version and negotiation result.",
	}, []string{"version", "result"})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "socksd_active_sessions",
		Help: "Sessions currently negotiating or relaying.",
	})

	dialFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "socksd_dial_failures_total",
		Help: "Negotiated sessions whose outbound connection could not be established.",
	})
)

func versionLabel(s *socks.Session) string {
	if s == nil || s.Version == 0 {
		return "unknown"
	}
	return strconv.Itoa(int(s.Version))
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, socks.ErrProtocolVersion):
		return "protocol_version"
	case errors.Is(err, socks.ErrUnsupportedCommand):
		return "unsupported_command"
	case errors.Is(err, socks.ErrAddressType):
		return "address_type"
	case errors.Is(err, socks.ErrAuthenticationMethod):
		return "auth_method"
	case errors.Is(err, socks.ErrCredential):
		return "credential"
	case errors.Is(err, socks.ErrResolution):
		return "resolution"
	case errors.Is(err, socks.ErrMalformedFrame):
		return "malformed"
	default:
		return "error"
	}
}
