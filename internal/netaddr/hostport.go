package netaddr

import (
	"strconv"
	"strings"
)

// SplitHostPort splits "host:port" on the last colon. When the suffix is not
// a port number the suffix is dropped and defaultPort is used. Bare IPv6
// literals are returned whole; bracketed ones are unwrapped.
func SplitHostPort(addr string, defaultPort int) (string, int) {
	addr = strings.TrimSpace(addr)
	if strings.HasPrefix(addr, "[") && strings.HasSuffix(addr, "]") {
		return addr[1 : len(addr)-1], defaultPort
	}

	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return addr, defaultPort
	}

	host, rest := addr[:i], addr[i+1:]
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		// Bare IPv6 literal without a port.
		return addr, defaultPort
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")

	port, err := strconv.Atoi(rest)
	if err != nil || port <= 0 || port > 65535 {
		return host, defaultPort
	}
	return host, port
}
