package common

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/google/gopacket/pcap"
	"go.uber.org/zap"
)

// Iface is an IPv4 capture device that has a default gateway on its link.
type Iface struct {
	Name    string           // 接口名称
	Gateway netip.Addr       // 接口网关IP
	Prefix  netip.Prefix     // 接口网段
	HWAddr  net.HardwareAddr // 接口物理地址
	IP      netip.Addr       // 接口IP
}

var localhost = netip.MustParseAddr("127.0.0.1")

// ActiveIfaces lists the devices that can reach a gateway.
func ActiveIfaces() ([]Iface, error) {
	gateways, err := Gways()
	if err != nil {
		return nil, fmt.Errorf("list gateways: %w", err)
	}
	devs, err := pcap.FindAllDevs()
	if err != nil {
		logger.Error("FindAllDevs failed", zap.Error(err))
		return nil, err
	}
	ifs, err := net.Interfaces()
	if err != nil {
		logger.Error("Net Interfaces failed", zap.Error(err))
		return nil, err
	}
	return MatchIfaces(gateways, devs, ifs), nil
}

// MatchIfaces pairs every gateway with the capture devices whose IPv4
// network contains it.
func MatchIfaces(gateways []netip.Addr, devs []pcap.Interface, ifs []net.Interface) []Iface {
	ret := make([]Iface, 0)
	for _, gateway := range gateways {
		if !gateway.Is4() {
			continue
		}
		for _, dev := range devs {
			for _, addr := range dev.Addresses {
				if addr.IP == nil || addr.Netmask == nil {
					continue
				}
				ip, ok := netip.AddrFromSlice(addr.IP.To4())
				if !ok || ip == localhost {
					continue
				}
				ones, bits := addr.Netmask.Size()
				if bits != 32 {
					continue
				}
				ipPrefix, err := ip.Prefix(ones)
				if err != nil || !ipPrefix.Contains(gateway) {
					continue
				}
				for _, i := range ifs {
					if i.Name != dev.Name {
						continue
					}
					iface := Iface{
						Name:    i.Name,
						Gateway: gateway,
						Prefix:  ipPrefix,
						HWAddr:  i.HardwareAddr,
						IP:      ip,
					}
					logger.Debug("Get gs iface", zap.Any("iface", iface))
					ret = append(ret, iface)
				}
			}
		}
	}
	return ret
}

// SelectIface picks the named interface, or the first one when name is
// empty.
func SelectIface(ifaces []Iface, name string) (Iface, error) {
	for _, iface := range ifaces {
		if name == "" || iface.Name == name {
			return iface, nil
		}
	}
	if name == "" {
		return Iface{}, fmt.Errorf("no interface with a default gateway")
	}
	return Iface{}, fmt.Errorf("interface %s not found or has no gateway", name)
}
