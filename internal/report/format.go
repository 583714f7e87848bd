package report

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	kib = 1024.0
	mib = kib * 1024
	gib = mib * 1024
)

var countPrinter = message.NewPrinter(language.English)

// FormatGB renders bytes in binary gigabytes, e.g. "1.50 GB".
func FormatGB(bytes uint64) string {
	return fmt.Sprintf("%.2f GB", float64(bytes)/gib)
}

// FormatMB renders bytes in binary megabytes, e.g. "100.00 MB".
func FormatMB(bytes uint64) string {
	return fmt.Sprintf("%.2f MB", float64(bytes)/mib)
}

// FormatKB renders a byte amount in binary kilobytes, e.g. "4.88 KB".
func FormatKB(bytes float64) string {
	return fmt.Sprintf("%.2f KB", bytes/kib)
}

// FormatCount renders a count with thousands grouping, e.g. "1,234,567".
func FormatCount[T ~int64 | ~uint64 | ~int](n T) string {
	return countPrinter.Sprintf("%d", n)
}

// FormatPercent renders a percentage with two decimals, e.g. "45.00%".
func FormatPercent(p float64) string {
	return fmt.Sprintf("%.2f%%", p)
}

var protocolNames = map[string]string{
	"1":   "ICMP",
	"2":   "IGMP",
	"6":   "TCP",
	"17":  "UDP",
	"47":  "GRE",
	"50":  "ESP",
	"58":  "ICMPv6",
	"132": "SCTP",
}

// ProtocolLabel renders an IP protocol number with its name when known.
func ProtocolLabel(protocol string) string {
	if name, ok := protocolNames[protocol]; ok {
		return fmt.Sprintf("%s (%s)", protocol, name)
	}
	return protocol
}
