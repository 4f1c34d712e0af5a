// Package discovery advertises a hosting peer over mDNS and finds hosts on
// the local network.
package discovery

import (
	"context"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"

	"github.com/grandcat/zeroconf"
)

const (
	ServiceType = "_peerpad._tcp"
	Domain      = "local."
)

// Service is one host found on the network.
type Service struct {
	Instance string
	Host     string
	Port     int
	Addrs    []string
}

// Addr returns the first IPv4 address joined with the port, which is what a
// peer passes to Connect.
func (s Service) Addr() string {
	if len(s.Addrs) == 0 {
		return ""
	}
	return net.JoinHostPort(s.Addrs[0], strconv.Itoa(s.Port))
}

// InstanceName is the default advertised name for this machine.
func InstanceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("PeerPad-%s", host)
}

// Advertise registers this machine as hosting on port. The returned func
// withdraws the registration.
func Advertise(instance string, port int, text []string) (func(), error) {
	server, err := zeroconf.Register(instance, ServiceType, Domain, port, text, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	return server.Shutdown, nil
}

// Browse collects hosts until ctx is done.
func Browse(ctx context.Context) ([]Service, error) {
	resolver, err := zeroconf.NewResolver()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(map[string]Service)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-entries:
				if !ok {
					return
				}
				svc := fromEntry(entry)
				found[svc.Instance] = svc
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, Domain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}
	<-ctx.Done()
	<-done

	out := make([]Service, 0, len(found))
	for _, svc := range found {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out, nil
}

func fromEntry(e *zeroconf.ServiceEntry) Service {
	addrs := make([]string, 0, len(e.AddrIPv4))
	for _, ip := range e.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	return Service{
		Instance: e.Instance,
		Host:     e.HostName,
		Port:     e.Port,
		Addrs:    addrs,
	}
}
