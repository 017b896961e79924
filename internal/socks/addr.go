package socks

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
	"strconv"

	txsocks5 "github.com/txthinking/socks5"
)

// AddrKind is the SOCKS5 address type (ATYP) of a destination.
type AddrKind byte

const (
	AddrIPv4   = AddrKind(txsocks5.ATYPIPv4)
	AddrDomain = AddrKind(txsocks5.ATYPDomain)
	AddrIPv6   = AddrKind(txsocks5.ATYPIPv6)
)

func (k AddrKind) String() string {
	switch k {
	case AddrIPv4:
		return "ipv4"
	case AddrDomain:
		return "domain"
	case AddrIPv6:
		return "ipv6"
	default:
		return "atyp(" + strconv.Itoa(int(k)) + ")"
	}
}

// Destination is a decoded request target. Host is dotted-decimal for IPv4,
// RFC 5952 text for IPv6 and the raw name for domains.
type Destination struct {
	Kind AddrKind
	Host string
	Port uint16
}

// String returns host:port.
func (d Destination) String() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(int(d.Port)))
}

// DecodeAddr decodes the ATYP-tagged address and port starting at b[off].
// It returns the destination and the number of bytes consumed, including the
// type byte and port.
func DecodeAddr(b []byte, off int) (Destination, int, error) {
	if off < 0 || off >= len(b) {
		return Destination{}, 0, fmt.Errorf("%w: missing address type", ErrMalformedFrame)
	}

	kind := AddrKind(b[off])
	var hostOff, hostLen int
	switch kind {
	case AddrIPv4:
		hostOff, hostLen = off+1, net.IPv4len
	case AddrIPv6:
		hostOff, hostLen = off+1, net.IPv6len
	case AddrDomain:
		if off+1 >= len(b) {
			return Destination{}, 0, fmt.Errorf("%w: missing domain length", ErrMalformedFrame)
		}
		hostOff, hostLen = off+2, int(b[off+1])
	default:
		return Destination{}, 0, fmt.Errorf("%w: %#02x", ErrAddressType, b[off])
	}

	portOff := hostOff + hostLen
	if portOff+2 > len(b) {
		return Destination{}, 0, fmt.Errorf("%w: %s address truncated", ErrMalformedFrame, kind)
	}

	d := Destination{Kind: kind, Port: binary.BigEndian.Uint16(b[portOff : portOff+2])}
	host := b[hostOff:portOff]
	switch kind {
	case AddrIPv4:
		d.Host = netip.AddrFrom4([4]byte(host)).String()
	case AddrIPv6:
		d.Host = netip.AddrFrom16([16]byte(host)).String()
	case AddrDomain:
		d.Host = string(host)
	}

	return d, portOff + 2 - off, nil
}

// AppendAddr appends the ATYP-tagged encoding of d to b.
func AppendAddr(b []byte, d Destination) ([]byte, error) {
	switch d.Kind {
	case AddrIPv4, AddrIPv6:
		ip, err := netip.ParseAddr(d.Host)
		if err != nil {
			return b, fmt.Errorf("%w: %w", ErrAddressType, err)
		}
		if d.Kind == AddrIPv4 {
			if !ip.Is4() {
				return b, fmt.Errorf("%w: %s is not an IPv4 address", ErrAddressType, d.Host)
			}
			a := ip.As4()
			b = append(append(b, byte(AddrIPv4)), a[:]...)
		} else {
			a := ip.As16()
			b = append(append(b, byte(AddrIPv6)), a[:]...)
		}
	case AddrDomain:
		if len(d.Host) > 255 {
			return b, fmt.Errorf("%w: domain longer than 255 bytes", ErrMalformedFrame)
		}
		b = append(b, byte(AddrDomain), byte(len(d.Host)))
		b = append(b, d.Host...)
	default:
		return b, fmt.Errorf("%w: %s", ErrAddressType, d.Kind)
	}
	return binary.BigEndian.AppendUint16(b, d.Port), nil
}
