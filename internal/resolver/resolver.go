// Package resolver translates origin hostnames to IPv4 addresses.
package resolver

import (
	"context"
	"fmt"
	"net"
)

// Resolver resolves a hostname to an IPv4 address.
type Resolver interface {
	ResolveIPv4(ctx context.Context, host string) (net.IP, error)
}

// System resolves via the platform resolver (net.DefaultResolver).
type System struct{}

// ResolveIPv4 looks up host and returns its first IPv4 address.
func (System) ResolveIPv4(ctx context.Context, host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolver: lookup %q: %w", host, err)
	}
	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			return v4, nil
		}
	}
	return nil, fmt.Errorf("resolver: no A record for %q", host)
}
