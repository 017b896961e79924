// Package proxy implements the listening side of socksd.
//
// It owns the accept loop, per-connection negotiation deadlines and the
// default accept collaborator, which dials the negotiated destination through
// a dialer.Dialer and relays bytes in both directions.
package proxy
