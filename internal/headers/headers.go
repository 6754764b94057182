// Package headers implements the RFC 7230 §6.1 hop-by-hop header filter
// shared by the client (before framing a request) and the server (before
// framing a response), grounded on go-rawhttp's header-copying conventions
// in pkg/client/client.go.
package headers

import (
	"net/http"
	"strings"

	"github.com/shipproxy/shipproxy/internal/frame"
)

// hopByHop is the RFC 7230 §6.1 connection-specific header set, matched
// case-insensitively.
var hopByHop = map[string]struct{}{
	"connection":          {},
	"proxy-connection":    {},
	"keep-alive":          {},
	"proxy-authenticate":  {},
	"proxy-authorization": {},
	"te":                  {},
	"trailer":             {},
	"transfer-encoding":   {},
	"upgrade":             {},
}

// IsHopByHop reports whether name (any case) is a hop-by-hop header.
func IsHopByHop(name string) bool {
	_, ok := hopByHop[strings.ToLower(name)]
	return ok
}

// CopyHeaders copies every header from src into dst whose name is not
// hop-by-hop, preserving value order and multiplicity. It is idempotent:
// CopyHeaders(CopyHeaders(x)) == CopyHeaders(x), since hop-by-hop headers
// are dropped rather than rewritten.
func CopyHeaders(dst, src frame.HeaderMap) {
	for k, vv := range src {
		if IsHopByHop(k) {
			continue
		}
		for _, v := range vv {
			dst[k] = append(dst[k], v)
		}
	}
}

// FromHTTPHeader converts a net/http.Header into a frame.HeaderMap,
// preserving value order and multiplicity but not filtering anything.
func FromHTTPHeader(h http.Header) frame.HeaderMap {
	out := make(frame.HeaderMap, len(h))
	for k, vv := range h {
		out[k] = append([]string(nil), vv...)
	}
	return out
}

// ApplyToHTTPHeader appends every value in hm to h, in order. Used on both
// the upstream request path (server) and the browser response path of HTTP
// jobs (client), so multi-valued headers such as Set-Cookie are never
// collapsed.
func ApplyToHTTPHeader(h http.Header, hm frame.HeaderMap) {
	for k, vv := range hm {
		for _, v := range vv {
			h.Add(k, v)
		}
	}
}
