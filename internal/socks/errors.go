package socks

import "errors"

// Every error is terminal for the session that produced it. Negotiate wraps
// these with context; match them with errors.Is.
var (
	ErrProtocolVersion       = errors.New("socks: unsupported protocol version")
	ErrUnsupportedCommand    = errors.New("socks: unsupported command")
	ErrAddressType           = errors.New("socks: unsupported address type")
	ErrAuthenticationMethod  = errors.New("socks: no acceptable authentication method")
	ErrCredential            = errors.New("socks: invalid credentials")
	ErrResolution            = errors.New("socks: destination resolution failed")
	ErrMalformedFrame        = errors.New("socks: malformed frame")
	errSessionAlreadyReplied = errors.New("socks: reply already sent")
)
