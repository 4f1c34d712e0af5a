package netaddr

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func ipnet(s string) net.Addr {
	ip, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	n.IP = ip
	return n
}

func TestInterfaceAddresses(t *testing.T) {
	up := net.FlagUp | net.FlagBroadcast

	tests := []struct {
		name  string
		iface string
		flags net.Flags
		addrs []net.Addr
		want  []candidate
	}{
		{"down", "eth0", net.FlagBroadcast, []net.Addr{ipnet("192.168.1.2/24")}, nil},
		{"loopback", "lo", up | net.FlagLoopback, []net.Addr{ipnet("127.0.0.1/8")}, nil},
		{"docker bridge", "docker0", up, []net.Addr{ipnet("172.17.0.1/16")}, nil},
		{"veth", "veth12ab", up, []net.Addr{ipnet("172.18.0.1/16")}, nil},
		{"ipv6 only", "eth0", up, []net.Addr{ipnet("fe80::1/64")}, nil},
		{"preferred", "wlan0", up, []net.Addr{ipnet("192.168.1.2/24"), ipnet("fe80::1/64")},
			[]candidate{{ip: "192.168.1.2", preferred: true}}},
		{"other", "tailscale0", up, []net.Addr{ipnet("100.101.102.103/32")},
			[]candidate{{ip: "100.101.102.103"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, interfaceAddresses(tt.iface, tt.flags, tt.addrs))
		})
	}
}

func TestOrderAddresses(t *testing.T) {
	tests := []struct {
		name       string
		tailscale  string
		candidates []candidate
		want       []string
	}{
		{
			name:      "tailscale then preferred",
			tailscale: "100.101.102.103",
			candidates: []candidate{
				{ip: "10.0.0.5"},
				{ip: "192.168.1.2", preferred: true},
				{ip: "100.101.102.103"},
			},
			want: []string{"100.101.102.103", "192.168.1.2", "10.0.0.5"},
		},
		{
			name: "private ahead of public",
			candidates: []candidate{
				{ip: "203.0.113.7", preferred: true},
				{ip: "198.51.100.1"},
				{ip: "10.0.0.5"},
				{ip: "192.168.1.2", preferred: true},
			},
			want: []string{"192.168.1.2", "203.0.113.7", "10.0.0.5", "198.51.100.1"},
		},
		{name: "empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := orderAddresses(tt.tailscale, tt.candidates)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifiers(t *testing.T) {
	assert.True(t, IsTailscale(net.ParseIP("100.64.0.1")))
	assert.True(t, IsTailscale(net.ParseIP("100.127.255.254")))
	assert.False(t, IsTailscale(net.ParseIP("100.128.0.1")))
	assert.False(t, IsTailscale(net.ParseIP("::1")))

	assert.True(t, IsPrivate(net.ParseIP("192.168.0.10")))
	assert.True(t, IsPrivate(net.ParseIP("172.20.0.1")))
	assert.False(t, IsPrivate(net.ParseIP("8.8.8.8")))
}

func TestListLocalAddressesDoesNotPanic(t *testing.T) {
	for _, a := range ListLocalAddresses() {
		assert.NotNil(t, net.ParseIP(a).To4(), a)
	}
}
