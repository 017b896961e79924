// Package dialer provides the outbound dialers the default SOCKS accept
// collaborator uses to reach a destination, either directly or through an
// upstream SOCKS5 or HTTP CONNECT proxy.
package dialer
