package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// TrustedRealIP rewrites r.RemoteAddr from X-Real-IP or the first entry of
// X-Forwarded-For, but only when the connection comes from one of the trusted
// proxy prefixes. Entries may be CIDRs or single addresses.
func TrustedRealIP(trusted []string) func(http.Handler) http.Handler {
	var prefixes []netip.Prefix
	for _, entry := range trusted {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if p, err := netip.ParsePrefix(entry); err == nil {
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			slog.Warn("realip: invalid trusted proxy, skipping", "entry", entry, "error", err)
			continue
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isTrusted(r.RemoteAddr, prefixes) {
				if ip, ok := forwardedIP(r); ok {
					r.RemoteAddr = ip.String()
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the host part of r.RemoteAddr.
func ClientIP(r *http.Request) string {
	return hostOnly(r.RemoteAddr)
}

func forwardedIP(r *http.Request) (netip.Addr, bool) {
	candidate := r.Header.Get("X-Real-IP")
	if candidate == "" {
		candidate, _, _ = strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(candidate))
	return addr, err == nil
}

func isTrusted(remoteAddr string, prefixes []netip.Prefix) bool {
	if len(prefixes) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(hostOnly(remoteAddr))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
