// Package socks implements the server side of SOCKS 4, 4a and 5 negotiation.
//
// Negotiate reads from a freshly accepted connection, detects the protocol
// version from the first byte, runs SOCKS5 method and username/password
// sub-negotiation, decodes the requested destination and hands the session to
// an AcceptFunc. The accept collaborator establishes the outbound connection
// and calls the ReadyFunc it was given, which writes the success reply.
//
// Only CONNECT is supported. BIND, UDP ASSOCIATE and GSSAPI are recognized and
// rejected. Relaying bytes after hand-off is the collaborator's job.
package socks
