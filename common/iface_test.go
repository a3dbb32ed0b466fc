package common_test

import (
	"net"
	"net/netip"
	"testing"

	"github.com/LanXuage/gzmap/common"
	"github.com/google/gopacket/pcap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchIfaces(t *testing.T) {
	hw := net.HardwareAddr{2, 0, 0, 0, 0, 1}
	devs := []pcap.Interface{
		{Name: "lo", Addresses: []pcap.InterfaceAddress{{IP: net.IPv4(127, 0, 0, 1), Netmask: net.CIDRMask(8, 32)}}},
		{Name: "eth0", Addresses: []pcap.InterfaceAddress{
			{IP: net.ParseIP("fe80::1"), Netmask: net.CIDRMask(64, 128)},
			{IP: net.IPv4(192, 168, 1, 20), Netmask: net.CIDRMask(24, 32)},
		}},
		{Name: "eth1", Addresses: []pcap.InterfaceAddress{{IP: net.IPv4(10, 9, 0, 2), Netmask: net.CIDRMask(16, 32)}}},
	}
	ifs := []net.Interface{{Name: "eth0", HardwareAddr: hw}, {Name: "lo"}}
	gateways := []netip.Addr{netip.MustParseAddr("192.168.1.1"), netip.MustParseAddr("fe80::2")}

	got := common.MatchIfaces(gateways, devs, ifs)
	require.Len(t, got, 1)
	assert.Equal(t, "eth0", got[0].Name)
	assert.Equal(t, netip.MustParseAddr("192.168.1.1"), got[0].Gateway)
	assert.Equal(t, netip.MustParseAddr("192.168.1.20"), got[0].IP)
	assert.Equal(t, netip.MustParsePrefix("192.168.1.0/24"), got[0].Prefix)
	assert.Equal(t, hw, got[0].HWAddr)
}

func TestSelectIface(t *testing.T) {
	ifaces := []common.Iface{{Name: "eth0"}, {Name: "eth1"}}
	iface, err := common.SelectIface(ifaces, "")
	require.NoError(t, err)
	assert.Equal(t, "eth0", iface.Name)
	iface, err = common.SelectIface(ifaces, "eth1")
	require.NoError(t, err)
	assert.Equal(t, "eth1", iface.Name)
	_, err = common.SelectIface(ifaces, "wlan0")
	assert.Error(t, err)
	_, err = common.SelectIface(nil, "")
	assert.Error(t, err)
}
