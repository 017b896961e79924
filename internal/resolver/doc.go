// Package resolver provides the name resolvers used for SOCKS4a requests.
//
// The system resolver defers to the Go resolver, the DNS resolver queries a
// fixed server for A records, and Cached memoizes either one for a TTL while
// collapsing concurrent lookups of the same name.
package resolver
