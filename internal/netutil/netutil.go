package netutil

import (
	"net/http"
	"net/netip"
	"strings"
)

// NormalizeIP accepts a bare address or one with a port ("192.0.2.4:1234",
// "[2001:db8::1]:443") and returns the canonical IP without zone. IPv4-mapped
// IPv6 addresses collapse to their IPv4 form so one client has one key.
func NormalizeIP(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if ap, err := netip.ParseAddrPort(raw); err == nil {
		return canonical(ap.Addr()), true
	}
	if addr, err := netip.ParseAddr(raw); err == nil {
		return canonical(addr), true
	}
	// bracketed IPv6 with a non-numeric port, e.g. "[::1]:port"
	if strings.HasPrefix(raw, "[") {
		if end := strings.LastIndex(raw, "]"); end > 0 {
			if addr, err := netip.ParseAddr(raw[1:end]); err == nil {
				return canonical(addr), true
			}
		}
	}
	if idx := strings.LastIndex(raw, ":"); idx > 0 {
		if addr, err := netip.ParseAddr(raw[:idx]); err == nil {
			return canonical(addr), true
		}
	}
	return raw, false
}

func canonical(addr netip.Addr) string {
	return addr.WithZone("").Unmap().String()
}

// ClientIP is the rate-limit key for r. Proxy headers are applied earlier by
// chi's RealIP middleware when the deployment trusts them.
func ClientIP(r *http.Request) string {
	ip, _ := NormalizeIP(r.RemoteAddr)
	return ip
}
