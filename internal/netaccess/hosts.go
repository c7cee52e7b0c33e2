package netaccess

import (
	"net/netip"
	"strconv"
	"strings"
)

// privatePrefixes mirror the textual checks applied before address
// parsing, so hostnames shaped like private addresses are caught too.
var privatePrefixes = []string{"127.", "10.", "192.168.", "169.254.", "0.", "fc00:", "fe80:"}

func normalizeHost(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	h = strings.TrimSuffix(h, ".")
	if strings.HasPrefix(h, "[") && strings.HasSuffix(h, "]") {
		h = h[1 : len(h)-1]
	}
	return h
}

// parseAddr accepts standard IPv4/IPv6 literals plus the numeric IPv4
// shorthands resolvers still honour ("2130706433", "0x7f000001",
// "0177.0.0.1", "127.1").
func parseAddr(host string) (netip.Addr, bool) {
	h := normalizeHost(host)
	if addr, err := netip.ParseAddr(h); err == nil {
		return addr.Unmap(), true
	}
	return parseInetAton(h)
}

// parseInetAton parses IPv4 in the inet_aton forms a, a.b, a.b.c and
// a.b.c.d, where each part is decimal, octal (leading 0) or hex (0x).
// The last part fills the remaining low-order bytes.
func parseInetAton(h string) (netip.Addr, bool) {
	parts := strings.Split(h, ".")
	if len(parts) > 4 {
		return netip.Addr{}, false
	}

	vals := make([]uint64, len(parts))
	for i, p := range parts {
		v, ok := parseAtonPart(p)
		if !ok {
			return netip.Addr{}, false
		}
		vals[i] = v
	}

	var ip uint64
	for i, v := range vals[:len(vals)-1] {
		if v > 0xff {
			return netip.Addr{}, false
		}
		ip |= v << (24 - 8*uint(i))
	}
	last := vals[len(vals)-1]
	if last >= 1<<(8*uint(5-len(vals))) {
		return netip.Addr{}, false
	}
	ip |= last

	return netip.AddrFrom4([4]byte{byte(ip >> 24), byte(ip >> 16), byte(ip >> 8), byte(ip)}), true
}

func parseAtonPart(p string) (uint64, bool) {
	base, digits := 10, p
	switch {
	case strings.HasPrefix(p, "0x"):
		base, digits = 16, p[2:]
	case len(p) > 1 && p[0] == '0':
		base, digits = 8, p[1:]
	}
	if digits == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(digits, base, 32)
	if err != nil {
		return 0, false
	}
	return v, true
}

// isPrivateNetwork reports whether host names a loopback, private,
// link-local or unspecified destination.
func isPrivateNetwork(host string) bool {
	h := normalizeHost(host)
	if h == "localhost" || strings.HasSuffix(h, ".localhost") {
		return true
	}
	for _, p := range privatePrefixes {
		if strings.HasPrefix(h, p) {
			return true
		}
	}
	if isRFC1918Class172(h) {
		return true
	}

	addr, ok := parseAddr(h)
	if !ok {
		return false
	}
	if addr.Is4() && addr.As4()[0] == 0 {
		return true
	}
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() || addr.IsUnspecified()
}

// isRFC1918Class172 matches the 172.16.0.0/12 prefix textually.
func isRFC1918Class172(h string) bool {
	rest, ok := strings.CutPrefix(h, "172.")
	if !ok {
		return false
	}
	octet, _, ok := strings.Cut(rest, ".")
	if !ok {
		return false
	}
	n, err := strconv.Atoi(octet)
	return err == nil && n >= 16 && n <= 31
}

// isRawIP reports whether host is an IPv4 or IPv6 literal, optionally
// bracketed or carrying a zone.
func isRawIP(host string) bool {
	_, ok := parseAddr(host)
	return ok
}

// matchesDomain reports whether host equals an entry or is a subdomain of
// one. Comparison ignores case and a trailing dot.
func matchesDomain(host string, domains []string) bool {
	h := normalizeHost(host)
	for _, d := range domains {
		d = normalizeHost(d)
		if d == "" {
			continue
		}
		if h == d || strings.HasSuffix(h, "."+d) {
			return true
		}
	}
	return false
}
