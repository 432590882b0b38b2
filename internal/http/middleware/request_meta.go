package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the host part of RemoteAddr. The router only rewrites
// RemoteAddr from forwarding headers when TRUST_PROXY_HEADERS is set; by
// default it is the peer address and client-supplied headers are ignored.
func ClientIP(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return host
}
