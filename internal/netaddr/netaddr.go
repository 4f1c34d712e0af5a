// Package netaddr lists the addresses a peer could use to reach this machine.
package netaddr

import (
	"net"
	"slices"
	"strings"
	"time"
)

// tailscaleProbe is Tailscale's MagicDNS address. "Connecting" a UDP socket to
// it sends nothing but selects the tailnet interface as the local address.
const tailscaleProbe = "100.100.100.100:80"

var (
	skippedPrefixes   = []string{"br-", "veth", "docker"}
	preferredPrefixes = []string{"wl", "eth", "en", "wlan", "wifi"}
)

// ListLocalAddresses returns this machine's IPv4 addresses, the Tailscale
// address first when there is one, then preferred interfaces. It is best
// effort and may return an empty slice.
func ListLocalAddresses() []string {
	ifaces, err := net.Interfaces()
	if err != nil {
		ifaces = nil
	}

	candidates := make([]candidate, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		candidates = append(candidates, interfaceAddresses(iface.Name, iface.Flags, addrs)...)
	}

	return orderAddresses(tailscaleAddress(), candidates)
}

type candidate struct {
	ip        string
	preferred bool
}

func interfaceAddresses(name string, flags net.Flags, addrs []net.Addr) []candidate {
	if flags&net.FlagUp == 0 || flags&net.FlagLoopback != 0 || skipped(name) {
		return nil
	}

	var out []candidate
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if ipv4 := ipnet.IP.To4(); ipv4 != nil {
			out = append(out, candidate{ip: ipv4.String(), preferred: preferred(name)})
		}
	}
	return out
}

// orderAddresses puts the Tailscale address first, then preferred
// interfaces, with private addresses ahead of public ones in each group.
func orderAddresses(tailscale string, candidates []candidate) []string {
	ranked := slices.Clone(candidates)
	rank := func(c candidate) int {
		r := 0
		if !c.preferred {
			r += 2
		}
		if !IsPrivate(net.ParseIP(c.ip)) {
			r++
		}
		return r
	}
	slices.SortStableFunc(ranked, func(a, b candidate) int {
		return rank(a) - rank(b)
	})

	seen := make(map[string]bool)
	out := make([]string, 0, len(candidates)+1)
	add := func(ip string) {
		if ip == "" || seen[ip] {
			return
		}
		seen[ip] = true
		out = append(out, ip)
	}

	add(tailscale)
	for _, c := range ranked {
		add(c.ip)
	}
	return out
}

func tailscaleAddress() string {
	conn, err := net.DialTimeout("udp", tailscaleProbe, 500*time.Millisecond)
	if err != nil {
		return ""
	}
	defer conn.Close() //nolint:errcheck

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || !IsTailscale(addr.IP) {
		return ""
	}
	return addr.IP.String()
}

// IsTailscale reports whether ip is in Tailscale's CGNAT range 100.64.0.0/10.
func IsTailscale(ip net.IP) bool {
	ipv4 := ip.To4()
	return ipv4 != nil && ipv4[0] == 100 && ipv4[1]&0xc0 == 64
}

// IsPrivate reports whether ip is an RFC 1918 address.
func IsPrivate(ip net.IP) bool {
	ipv4 := ip.To4()
	return ipv4 != nil && ipv4.IsPrivate()
}

func skipped(name string) bool {
	for _, p := range skippedPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func preferred(name string) bool {
	for _, p := range preferredPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
