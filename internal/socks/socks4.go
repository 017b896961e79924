package socks

import (
	"context"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"io"
	"net/netip"
)

/*
SOCKS4 request:

	| VN 0x04 | CD | DSTPORT (2) | DSTIP (4) | USERID ... 0x00 |

SOCKS4a request, DSTIP = 0.0.0.x with x != 0:

	| VN 0x04 | CD | DSTPORT (2) | 0.0.0.x | USERID ... 0x00 | HOST ... 0x00 |

Reply:

	| VN 0x00 | CD 0x5a/0x5b | DSTPORT (2) | DSTIP (4) |
*/

func (s *Session) readSOCKS4Request() (state, error) {
	hdr := make([]byte, 8, 64)
	if _, err := io.ReadFull(s.br, hdr); err != nil {
		return stateClosed, fmt.Errorf("%w: socks4 header: %w", ErrMalformedFrame, err)
	}
	s.Request = hdr

	if hdr[0] != socks4Version {
		_ = writeSOCKS4Failure(s.conn)
		return stateClosed, fmt.Errorf("%w: socks4 request version %d", ErrProtocolVersion, hdr[0])
	}
	if cmd := hdr[1]; cmd != cmdConnect {
		_ = writeSOCKS4Failure(s.conn)
		return stateClosed, fmt.Errorf("%w: socks4 %s", ErrUnsupportedCommand, commandName(cmd))
	}

	port := binary.BigEndian.Uint16(hdr[2:4])
	ip := [4]byte(hdr[4:8])

	userID, err := s.readCString(s.cfg.maxUserIDLength())
	if err != nil {
		return stateClosed, fmt.Errorf("socks4 userid: %w", err)
	}
	s.UserID = string(userID)

	if want := s.cfg.SOCKS4UserID; want != "" && subtle.ConstantTimeCompare(userID, []byte(want)) != 1 {
		_ = writeSOCKS4Failure(s.conn)
		return stateClosed, fmt.Errorf("%w: socks4 userid %q", ErrCredential, s.UserID)
	}

	if !isSOCKS4a(ip) {
		s.Destination = Destination{Kind: AddrIPv4, Host: netip.AddrFrom4(ip).String(), Port: port}
		s.log.Debug("socks4 request", "destination", s.Destination.String(), "userid", s.UserID)
		return stateHandedOff, nil
	}

	// The 4a host shares the scan budget with the userid.
	host, err := s.readCString(s.cfg.maxSOCKS4Length() - len(userID) - 1)
	if err != nil {
		return stateClosed, fmt.Errorf("socks4a host: %w", err)
	}
	if len(host) == 0 {
		return stateClosed, fmt.Errorf("%w: socks4a empty host", ErrMalformedFrame)
	}
	s.Destination = Destination{Kind: AddrDomain, Host: string(host), Port: port}
	s.log.Debug("socks4a request", "destination", s.Destination.String(), "userid", s.UserID)
	return stateResolve, nil
}

// isSOCKS4a reports whether ip is the 0.0.0.x (x != 0) marker.
func isSOCKS4a(ip [4]byte) bool {
	return ip[0] == 0 && ip[1] == 0 && ip[2] == 0 && ip[3] != 0
}

// readCString reads a NUL-terminated string of at most limit bytes including
// the terminator and appends the raw bytes to s.Request.
func (s *Session) readCString(limit int) ([]byte, error) {
	start := len(s.Request)
	for i := 0; i < limit; i++ {
		c, err := s.br.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
		}
		s.Request = append(s.Request, c)
		if c == 0x00 {
			return s.Request[start : len(s.Request)-1], nil
		}
	}
	return nil, fmt.Errorf("%w: no terminator within %d bytes", ErrMalformedFrame, limit)
}

// resolve looks up the SOCKS4a host. The accept collaborator is never
// invoked for a name that fails to resolve.
func (s *Session) resolve(ctx context.Context) (state, error) {
	addr, err := s.cfg.resolver().LookupIPv4(ctx, s.Destination.Host)
	if err == nil && !addr.Unmap().Is4() {
		err = fmt.Errorf("%s is not an IPv4 address", addr)
	}
	if err != nil {
		s.log.Debug("socks4a lookup failed", "host", s.Destination.Host, "err", err)
		_ = writeSOCKS4Failure(s.conn)
		return stateClosed, fmt.Errorf("%w: %s: %w", ErrResolution, s.Destination.Host, err)
	}
	s.Resolved = addr.Unmap()
	return stateHandedOff, nil
}
