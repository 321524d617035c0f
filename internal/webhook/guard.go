package webhook

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrBlockedURL means a webhook target points at internal address space.
var ErrBlockedURL = errors.New("webhook URL resolves to a blocked address")

// Hostnames that are always refused regardless of what they resolve to.
var blockedHosts = map[string]bool{
	"localhost":                true,
	"metadata.google.internal": true,
	"metadata":                 true,
}

var blockedCIDRs = mustParseCIDRs(
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10", // carrier-grade NAT
	"127.0.0.0/8",
	"169.254.0.0/16", // link-local, cloud metadata
	"172.16.0.0/12",
	"192.168.0.0/16",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

// v6 prefixes that carry an IPv4 address inside them. The embedded
// address goes through the v4 blocklist too, so a private target cannot
// hide behind a routable-looking v6 form.
var (
	sixToFourNet = mustParseCIDRs("2002::/16")[0]    // v4 in bytes 2..5
	nat64Net     = mustParseCIDRs("64:ff9b::/96")[0] // v4 in bytes 12..15
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		out = append(out, n)
	}
	return out
}

// IsBlockedIP reports whether an address falls in private, loopback,
// link-local, or otherwise internal ranges.
func IsBlockedIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	for _, n := range blockedCIDRs {
		if n.Contains(ip) {
			return true
		}
	}
	if v4 := embeddedIPv4(ip); v4 != nil {
		return IsBlockedIP(v4)
	}
	return false
}

// embeddedIPv4 extracts the IPv4 address carried in a 6to4 or NAT64
// address. Returns nil for plain addresses.
func embeddedIPv4(ip net.IP) net.IP {
	if ip.To4() != nil {
		return nil
	}
	ip16 := ip.To16()
	if ip16 == nil {
		return nil
	}
	switch {
	case sixToFourNet.Contains(ip16):
		return net.IPv4(ip16[2], ip16[3], ip16[4], ip16[5])
	case nat64Net.Contains(ip16):
		return net.IPv4(ip16[12], ip16[13], ip16[14], ip16[15])
	}
	return nil
}

// ValidateURL performs the static checks on a webhook target: scheme,
// host shape, blocked hostnames, and literal IPs in blocked ranges.
// With requireTLS set, plain http targets are refused too; production
// deployments run in that mode so signed payloads never travel in the
// clear. DNS-based checks happen at dial time so a record changed
// between validation and delivery cannot slip through.
func ValidateURL(raw string, requireTLS bool) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("webhook: parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("webhook: scheme %q not allowed: %w", u.Scheme, ErrBlockedURL)
	}
	if requireTLS && u.Scheme != "https" {
		return fmt.Errorf("webhook: plain http not allowed: %w", ErrBlockedURL)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("webhook: empty host: %w", ErrBlockedURL)
	}
	if blockedHosts[strings.ToLower(host)] {
		return fmt.Errorf("webhook: host %q: %w", host, ErrBlockedURL)
	}
	if ip := net.ParseIP(host); ip != nil && IsBlockedIP(ip) {
		return fmt.Errorf("webhook: address %s: %w", ip, ErrBlockedURL)
	}
	return nil
}

// resolveAllowed resolves host through the resolver and returns only
// addresses outside the blocked ranges. All-blocked is an error.
func resolveAllowed(ctx context.Context, lookup func(ctx context.Context, host string) ([]string, error), host string) ([]string, error) {
	if blockedHosts[strings.ToLower(host)] {
		return nil, fmt.Errorf("webhook: host %q: %w", host, ErrBlockedURL)
	}
	if ip := net.ParseIP(host); ip != nil {
		if IsBlockedIP(ip) {
			return nil, fmt.Errorf("webhook: address %s: %w", ip, ErrBlockedURL)
		}
		return []string{host}, nil
	}

	addrs, err := lookup(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("webhook: resolve %q: %w", host, err)
	}
	allowed := addrs[:0]
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && !IsBlockedIP(ip) {
			allowed = append(allowed, a)
		}
	}
	if len(allowed) == 0 {
		return nil, fmt.Errorf("webhook: %q has no routable address: %w", host, ErrBlockedURL)
	}
	return allowed, nil
}
