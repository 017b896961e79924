package socks

import (
	"crypto/subtle"
	"fmt"
	"io"
	"slices"

	txsocks5 "github.com/txthinking/socks5"
)

// Method is a SOCKS5 authentication method identifier.
type Method byte

const (
	MethodNoAuth       = Method(txsocks5.MethodNone)
	MethodGSSAPI       = Method(txsocks5.MethodGSSAPI)
	MethodUserPass     = Method(txsocks5.MethodUsernamePassword)
	MethodNoAcceptable Method = 0xff

	userPassVersion byte = 0x01
)

func (m Method) String() string {
	switch m {
	case MethodNoAuth:
		return "no-auth"
	case MethodGSSAPI:
		return "gssapi"
	case MethodUserPass:
		return "username/password"
	case MethodNoAcceptable:
		return "no-acceptable"
	default:
		return fmt.Sprintf("method(%#02x)", byte(m))
	}
}

// negotiateMethod reads VER NMETHODS METHODS and selects a method. GSSAPI is
// never selected.
func (s *Session) negotiateMethod() (state, error) {
	hdr := make([]byte, 2)
	if _, err := io.ReadFull(s.br, hdr); err != nil {
		return stateClosed, fmt.Errorf("%w: method list: %w", ErrMalformedFrame, err)
	}
	methods := make([]byte, int(hdr[1]))
	if _, err := io.ReadFull(s.br, methods); err != nil {
		return stateClosed, fmt.Errorf("%w: method list: %w", ErrMalformedFrame, err)
	}
	s.log.Debug("offered auth methods", "methods", methods)

	switch {
	case s.cfg.Credentials.enabled() && slices.Contains(methods, byte(MethodUserPass)):
		s.Method = MethodUserPass
		if err := s.writeMethod(MethodUserPass); err != nil {
			return stateClosed, err
		}
		return stateAuth, nil
	case !s.cfg.Credentials.enabled() && slices.Contains(methods, byte(MethodNoAuth)):
		s.Method = MethodNoAuth
		if err := s.writeMethod(MethodNoAuth); err != nil {
			return stateClosed, err
		}
		return stateRequest, nil
	default:
		s.Method = MethodNoAcceptable
		// RFC 1928: 0xFF indicates no acceptable methods.
		_ = s.writeMethod(MethodNoAcceptable)
		return stateClosed, fmt.Errorf("%w: offered %v", ErrAuthenticationMethod, methods)
	}
}

func (s *Session) writeMethod(m Method) error {
	if _, err := txsocks5.NewNegotiationReply(byte(m)).WriteTo(s.conn); err != nil {
		return fmt.Errorf("negotiation reply: %w", err)
	}
	return nil
}

// authenticate reads the RFC 1929 frame VER ULEN UNAME PLEN PASSWD. Any
// failure, including a wrong sub-negotiation version, gets a 0x01 status.
func (s *Session) authenticate() (state, error) {
	username, password, err := readUserPass(s.br)
	if err == nil && !s.cfg.Credentials.match(username, password) {
		err = fmt.Errorf("%w: user %q", ErrCredential, username)
	}
	if err != nil {
		_, _ = txsocks5.NewUserPassNegotiationReply(txsocks5.UserPassStatusFailure).WriteTo(s.conn)
		return stateClosed, err
	}

	if _, err := txsocks5.NewUserPassNegotiationReply(txsocks5.UserPassStatusSuccess).WriteTo(s.conn); err != nil {
		return stateClosed, fmt.Errorf("write userpass: %w", err)
	}
	return stateRequest, nil
}

func readUserPass(r io.Reader) (username, password []byte, err error) {
	var ver [1]byte
	if _, err := io.ReadFull(r, ver[:]); err != nil {
		return nil, nil, fmt.Errorf("%w: userpass version: %w", ErrCredential, err)
	}
	if ver[0] != userPassVersion {
		return nil, nil, fmt.Errorf("%w: userpass version %d", ErrCredential, ver[0])
	}
	if username, err = readLengthPrefixed(r); err != nil {
		return nil, nil, fmt.Errorf("%w: username: %w", ErrCredential, err)
	}
	if password, err = readLengthPrefixed(r); err != nil {
		return nil, nil, fmt.Errorf("%w: password: %w", ErrCredential, err)
	}
	return username, password, nil
}

func readLengthPrefixed(r io.Reader) ([]byte, error) {
	var n [1]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return nil, err
	}
	b := make([]byte, int(n[0]))
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (c Credentials) match(username, password []byte) bool {
	u := subtle.ConstantTimeCompare(username, []byte(c.Username))
	p := subtle.ConstantTimeCompare(password, []byte(c.Password))
	return u&p == 1
}
