package security

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// MatchesPattern reports whether ip matches pattern, which is either a
// single IP address or a CIDR block.
func MatchesPattern(ip, pattern string) bool {
	if !strings.Contains(pattern, "/") {
		return ip == pattern
	}
	_, network, err := net.ParseCIDR(pattern)
	if err != nil {
		return false
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	return network.Contains(parsed)
}

// ExtractClientIP resolves the client IP per spec §4.6: X-Forwarded-For
// (first entry) -> X-Real-IP -> the connection's own remote address.
func ExtractClientIP(forwardedFor, realIP, remoteAddr string) string {
	if forwardedFor != "" {
		first := strings.TrimSpace(strings.Split(forwardedFor, ",")[0])
		if first != "" {
			return first
		}
	}
	if realIP != "" {
		return strings.TrimSpace(realIP)
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

// BanMessage builds the exact "Access denied" message spec.md §8's
// end-to-end scenario 5 asserts literally: a timed ban always states
// both the hour and minute clause (even "0 hour(s)"), switching to a
// day count once the remaining time reaches 24 hours. The original
// source (ip_filter.rs) drops the hour clause entirely under an hour;
// that phrasing is not followed here since it does not satisfy the
// spec's literal assertion — see DESIGN.md.
func BanMessage(reason string, expiresAt *int64, now time.Time) string {
	banType := "Permanent ban."
	if expiresAt != nil {
		remaining := *expiresAt - now.Unix()
		if remaining > 0 {
			hours := remaining / 3600
			minutes := (remaining % 3600) / 60
			if hours >= 24 {
				days := hours / 24
				banType = fmt.Sprintf("Temporary ban. Please try again after %d day(s).", days)
			} else {
				banType = fmt.Sprintf("Temporary ban. Please try again after %d hour(s) and %d minute(s).", hours, minutes)
			}
		} else {
			banType = "Temporary ban (expired, will be removed soon)."
		}
	}
	if reason == "" {
		reason = "policy violation"
	}
	return fmt.Sprintf("Access denied. Reason: %s. %s", reason, banType)
}
