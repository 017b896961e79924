package proxy

import (
	"context"
	"log/slog"
	"net"
	"strconv"

	"github.com/die-net/socksd/internal/dialer"
	"github.com/die-net/socksd/internal/socks"
)

// Forward returns the default accept collaborator. It dials the destination
// through d, answers the client with the session's success or failure reply
// and relays until either side closes.
func Forward(d dialer.Dialer, log *slog.Logger) socks.AcceptFunc {
	return func(ctx context.Context, s *socks.Session, port uint16, host string, ready socks.ReadyFunc) {
		client := s.Conn()
		defer client.Close()

		address := net.JoinHostPort(host, strconv.Itoa(int(port)))
		up, err := d.DialContext(ctx, "tcp", address)
		if err != nil {
			dialFailures.Inc()
			_ = s.Refuse()
			log.Debug("dial failed", "destination", address, "err", err)
			return
		}

		if err := ready(); err != nil {
			_ = up.Close()
			log.Debug("success reply failed", "destination", address, "err", err)
			return
		}

		if err := CopyBidirectional(ctx, client, up); err != nil {
			log.Debug("relay ended", "destination", address, "err", err)
		}
	}
}
