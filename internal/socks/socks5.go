package socks

import (
	"fmt"
	"io"
	"net"

	txsocks5 "github.com/txthinking/socks5"
)

const (
	repServerFailure     = txsocks5.RepServerFailure
	repConnectionRefused = txsocks5.RepConnectionRefused
)

func commandName(cmd byte) string {
	switch cmd {
	case cmdConnect:
		return "CONNECT"
	case cmdBind:
		return "BIND"
	case cmdUDPAssociate:
		return "UDP ASSOCIATE"
	default:
		return fmt.Sprintf("command %#02x", cmd)
	}
}

// readSOCKS5Request reads VER CMD RSV ATYP DST.ADDR DST.PORT and keeps the
// frame verbatim for the success reply.
func (s *Session) readSOCKS5Request() (state, error) {
	req := make([]byte, 4, 4+1+255+2)
	if _, err := io.ReadFull(s.br, req); err != nil {
		return stateClosed, fmt.Errorf("%w: socks5 request: %w", ErrMalformedFrame, err)
	}
	if req[0] != socks5Version {
		_ = writeSOCKS5Failure(s.conn, repServerFailure)
		return stateClosed, fmt.Errorf("%w: socks5 request version %d", ErrProtocolVersion, req[0])
	}

	var tail int
	switch AddrKind(req[3]) {
	case AddrIPv4:
		tail = net.IPv4len + 2
	case AddrIPv6:
		tail = net.IPv6len + 2
	case AddrDomain:
		n, err := s.br.ReadByte()
		if err != nil {
			return stateClosed, fmt.Errorf("%w: socks5 domain length: %w", ErrMalformedFrame, err)
		}
		req = append(req, n)
		tail = int(n) + 2
	default:
		return stateClosed, fmt.Errorf("%w: %#02x", ErrAddressType, req[3])
	}

	off := len(req)
	req = append(req, make([]byte, tail)...)
	if _, err := io.ReadFull(s.br, req[off:]); err != nil {
		return stateClosed, fmt.Errorf("%w: socks5 address: %w", ErrMalformedFrame, err)
	}
	s.Request = req

	dst, _, err := DecodeAddr(req, 3)
	if err != nil {
		return stateClosed, fmt.Errorf("socks5 request: %w", err)
	}
	s.Destination = dst

	if cmd := req[1]; cmd != cmdConnect {
		_ = writeSOCKS5Failure(s.conn, repServerFailure)
		return stateClosed, fmt.Errorf("%w: socks5 %s", ErrUnsupportedCommand, commandName(cmd))
	}

	s.log.Debug("socks5 request", "destination", dst.String(), "atyp", dst.Kind.String())
	return stateHandedOff, nil
}
