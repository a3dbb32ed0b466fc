package cmd

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

// ParseAddr expands one target argument into IPv4 prefixes. It accepts a
// prefix, an address, a last-octet range such as 192.168.1.1-28, or a host
// name.
func ParseAddr(s string) ([]netip.Prefix, error) {
	if prefix, err := netip.ParsePrefix(s); err == nil {
		if !prefix.Addr().Is4() {
			return nil, fmt.Errorf("unsupported IP format: %s", s)
		}
		return []netip.Prefix{prefix}, nil
	}
	if ip, err := netip.ParseAddr(s); err == nil {
		if !ip.Is4() {
			return nil, fmt.Errorf("unsupported IP format: %s", s)
		}
		return []netip.Prefix{netip.PrefixFrom(ip, 32)}, nil
	}
	if i := strings.IndexByte(s, '-'); i != -1 {
		ip, err := netip.ParseAddr(s[:i])
		if err == nil && ip.Is4() {
			end, err := strconv.ParseUint(s[i+1:], 10, 8)
			start := uint64(ip.As4()[3])
			if err != nil || end < start {
				return nil, fmt.Errorf("unsupported IP format: %s", s)
			}
			ret := []netip.Prefix{}
			for ; start <= end; start++ {
				ret = append(ret, netip.PrefixFrom(ip, 32))
				ip = ip.Next()
			}
			return ret, nil
		}
	}
	ips, err := net.LookupIP(s)
	if err != nil {
		return nil, fmt.Errorf("unsupported IP format: %s", s)
	}
	ret := []netip.Prefix{}
	for _, ip := range ips {
		if ipv4 := ip.To4(); ipv4 != nil {
			addr, _ := netip.AddrFromSlice(ipv4)
			ret = append(ret, netip.PrefixFrom(addr, 32))
		}
	}
	if len(ret) == 0 {
		return nil, fmt.Errorf("no IPv4 address for %s", s)
	}
	return ret, nil
}

// ParsePortRange reads "first-last" or a single port.
func ParsePortRange(s string) (uint16, uint16, error) {
	if i := strings.IndexByte(s, '-'); i != -1 {
		start, err := strconv.ParseUint(s[:i], 10, 16)
		if err != nil {
			return 0, 0, fmt.Errorf("unsupported PORT format: %s", s)
		}
		end, err := strconv.ParseUint(s[i+1:], 10, 16)
		if err != nil || end < start {
			return 0, 0, fmt.Errorf("unsupported PORT format: %s", s)
		}
		return uint16(start), uint16(end), nil
	} else if p, err := strconv.ParseUint(s, 10, 16); err == nil {
		return uint16(p), uint16(p), nil
	}
	return 0, 0, fmt.Errorf("unsupported PORT format: %s", s)
}
