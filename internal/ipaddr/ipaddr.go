// Package ipaddr provides the IPv4 parsing, formatting, and CIDR-to-range
// conversions shared by the blocklist builder and the egress filter.
package ipaddr

import (
	"strconv"
	"strings"

	"github.com/kestrelfaas/kestrel/internal/domain"
)

// Range is a closed, inclusive IPv4 range [First, Last].
type Range struct {
	First uint32
	Last  uint32
}

// ParseIPv4 parses a dotted-quad string into its 32-bit big-endian value.
// Each octet must be a decimal integer in [0, 255]; the string must have
// exactly four dot-separated parts.
func ParseIPv4(s string) (uint32, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return 0, &domain.InvalidAddressError{Input: s}
	}
	var v uint32
	for _, p := range parts {
		if p == "" || len(p) > 3 {
			return 0, &domain.InvalidAddressError{Input: s}
		}
		for _, c := range p {
			if c < '0' || c > '9' {
				return 0, &domain.InvalidAddressError{Input: s}
			}
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return 0, &domain.InvalidAddressError{Input: s}
		}
		v = (v << 8) | uint32(n)
	}
	return v, nil
}

// FormatIPv4 renders a 32-bit value as a dotted-quad string.
func FormatIPv4(v uint32) string {
	return strconv.Itoa(int(v>>24&0xff)) + "." +
		strconv.Itoa(int(v>>16&0xff)) + "." +
		strconv.Itoa(int(v>>8&0xff)) + "." +
		strconv.Itoa(int(v&0xff))
}

// ParseCIDR parses "a.b.c.d/n" into its closed, inclusive [network,
// broadcast] range, where network = ip & mask, broadcast = network | ^mask,
// and mask = ^uint32(0) << (32-n). n=0 yields the full address space.
func ParseCIDR(s string) (Range, error) {
	idx := strings.IndexByte(s, '/')
	if idx < 0 {
		return Range{}, &domain.InvalidAddressError{Input: s}
	}
	ip, err := ParseIPv4(s[:idx])
	if err != nil {
		return Range{}, &domain.InvalidAddressError{Input: s}
	}
	nStr := s[idx+1:]
	n, err := strconv.Atoi(nStr)
	if err != nil || n < 0 || n > 32 {
		return Range{}, &domain.InvalidAddressError{Input: s}
	}
	var mask uint32
	if n == 0 {
		mask = 0
	} else {
		mask = ^uint32(0) << uint(32-n)
	}
	network := ip & mask
	broadcast := network | ^mask
	return Range{First: network, Last: broadcast}, nil
}

// IsCIDR reports whether s contains a slash, a cheap way to decide between
// ParseIPv4 and ParseCIDR.
func IsCIDR(s string) bool {
	return strings.IndexByte(s, '/') >= 0
}
