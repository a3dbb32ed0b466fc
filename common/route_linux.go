//go:build linux

package common

import (
	"net/netip"
	"syscall"

	"go.uber.org/zap"
)

// Gways reads the IPv4 routing table and returns every gateway in it.
func Gways() ([]netip.Addr, error) {
	ret := []netip.Addr{}
	netlinks, err := syscall.NetlinkRIB(syscall.RTM_GETROUTE, syscall.AF_INET)
	if err != nil {
		logger.Error("NetlinkRIB failed", zap.Error(err))
		return nil, err
	}
	nmsg, err := syscall.ParseNetlinkMessage(netlinks)
	if err != nil {
		logger.Error("ParseNetlinkMsg failed", zap.Error(err))
		return nil, err
	}
	for _, m := range nmsg {
		if m.Header.Type != syscall.RTM_NEWROUTE {
			continue
		}
		attrs, err := syscall.ParseNetlinkRouteAttr(&m)
		if err != nil {
			logger.Debug("ParseNetlinkRouteAttr failed", zap.Error(err))
			continue
		}
		for _, attr := range attrs {
			if attr.Attr.Type == syscall.RTA_GATEWAY {
				if g, ok := netip.AddrFromSlice(attr.Value); ok {
					ret = appendUnique(ret, g)
				}
			}
		}
	}
	return ret, nil
}

func appendUnique(addrs []netip.Addr, addr netip.Addr) []netip.Addr {
	for _, a := range addrs {
		if a == addr {
			return addrs
		}
	}
	return append(addrs, addr)
}
