package capture

import "strings"

var filterNames = map[string]string{
	"tcp":   "tcp",
	"udp":   "udp",
	"icmp":  "icmp",
	"arp":   "arp",
	"dns":   "port 53",
	"http":  "port 80",
	"https": "port 443",
	"tls":   "port 443",
}

// BuildFilter turns friendly protocol names into a BPF expression that
// matches any of them. Tokens that are not known names pass through
// unchanged, so raw BPF fragments can be mixed in.
func BuildFilter(names []string) string {
	parts := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if expr, ok := filterNames[strings.ToLower(n)]; ok {
			n = expr
		}
		parts = append(parts, n)
	}
	return strings.Join(parts, " or ")
}
