package analysis

import "strconv"

var commonPorts = map[int]string{
	20:   "FTP-DATA",
	21:   "FTP",
	22:   "SSH",
	23:   "Telnet",
	25:   "SMTP",
	53:   "DNS",
	67:   "DHCP",
	80:   "HTTP",
	110:  "POP3",
	123:  "NTP",
	143:  "IMAP",
	443:  "HTTPS",
	853:  "DNS-over-TLS",
	3306: "MySQL",
	3389: "RDP",
	4444: "Metasploit",
	5353: "mDNS",
	5432: "PostgreSQL",
	6379: "Redis",
	8080: "HTTP-Alt",
	9001: "Tor",
}

// GetServiceName returns the common name for a port, or the port number as a string.
func GetServiceName(port int) string {
	if name, ok := commonPorts[port]; ok {
		return name
	}
	return strconv.Itoa(port)
}

// FlowService names the service a flow talks to. A known destination port
// wins, then a known source port, so replies are labelled by the server
// side as well.
func FlowService(k FlowKey) string {
	_, srcKnown := commonPorts[k.SrcPort]
	_, dstKnown := commonPorts[k.DstPort]
	switch {
	case k.DstPort == 0 && k.SrcPort == 0:
		return k.Proto
	case dstKnown:
		return GetServiceName(k.DstPort)
	case srcKnown:
		return GetServiceName(k.SrcPort)
	default:
		return GetServiceName(k.DstPort)
	}
}
