// Package netinfo finds the addresses a LAN client can use to reach this host.
package netinfo

import (
	"fmt"
	"net"
	"sort"
)

// EmulatorHost is the address an Android emulator uses for the host loopback.
const EmulatorHost = "10.0.2.2"

// LocalIPv4 returns every non-loopback IPv4 address on interfaces that are up.
func LocalIPv4() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	var ips []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		ips = append(ips, filterIPv4(addrs)...)
	}
	sort.Strings(ips)
	return dedupe(ips), nil
}

func filterIPv4(addrs []net.Addr) []string {
	var out []string
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
			continue
		}
		if v4 := ip.To4(); v4 != nil {
			out = append(out, v4.String())
		}
	}
	return out
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}

// URLs holds the base URLs a client can use to reach the server.
type URLs struct {
	Local    string
	Network  []string
	Emulator string
}

// ServerURLs builds the startup banner addresses for port.
func ServerURLs(port int) URLs {
	u := URLs{
		Local:    fmt.Sprintf("http://localhost:%d", port),
		Emulator: fmt.Sprintf("http://%s:%d", EmulatorHost, port),
	}
	ips, err := LocalIPv4()
	if err != nil {
		return u
	}
	for _, ip := range ips {
		u.Network = append(u.Network, fmt.Sprintf("http://%s:%d", ip, port))
	}
	return u
}
