// Package arp resolves the hardware address of the next hop so probes can
// be framed without going through the kernel.
package arp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/LanXuage/gzmap/common"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	cmap "github.com/orcaman/concurrent-map/v2"
	"go.uber.org/zap"
)

const (
	BPF_FILTER     = "arp"
	RETRY_INTERVAL = time.Second
)

var ETH_BROADCAST = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
var ARP_BROADCAST = net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x00}

var ErrNotIPv4 = errors.New("arp: only IPv4 addresses can be resolved")

var logger = common.GetLogger()

// PacketIO is a link-layer handle; *pcap.Handle satisfies it.
type PacketIO interface {
	gopacket.PacketDataSource
	WritePacketData(data []byte) error
}

type Resolver struct {
	opts   gopacket.SerializeOptions
	ahMap  cmap.ConcurrentMap[netip.Addr, net.HardwareAddr] // 获取到的IP <-> Mac 映射表
	io     PacketIO
	srcMac net.HardwareAddr
	srcIP  netip.Addr
}

func NewResolver(io PacketIO, srcMac net.HardwareAddr, srcIP netip.Addr) *Resolver {
	return &Resolver{
		opts: gopacket.SerializeOptions{
			FixLengths:       true,
			ComputeChecksums: true,
		},
		ahMap:  cmap.NewWithCustomShardingFunction[netip.Addr, net.HardwareAddr](common.Fnv32),
		io:     io,
		srcMac: srcMac,
		srcIP:  srcIP,
	}
}

// Get returns an address learned earlier.
func (r *Resolver) Get(ip netip.Addr) (net.HardwareAddr, bool) {
	return r.ahMap.Get(ip)
}

// Resolve broadcasts a request for ip, repeating it every RETRY_INTERVAL,
// until a reply arrives or ctx is done.
func (r *Resolver) Resolve(ctx context.Context, ip netip.Addr) (net.HardwareAddr, error) {
	if !ip.Is4() || !r.srcIP.Is4() {
		return nil, ErrNotIPv4
	}
	if mac, ok := r.ahMap.Get(ip); ok {
		return mac, nil
	}
	packets := gopacket.NewPacketSource(r.io, layers.LayerTypeEthernet).Packets()
	ticker := time.NewTicker(RETRY_INTERVAL)
	defer ticker.Stop()
	if err := r.send(ip); err != nil {
		return nil, err
	}
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("arp: resolve %s: %w", ip, ctx.Err())
		case <-ticker.C:
			if err := r.send(ip); err != nil {
				return nil, err
			}
		case packet, ok := <-packets:
			if !ok {
				return nil, fmt.Errorf("arp: resolve %s: capture closed", ip)
			}
			r.Receive(packet)
			if mac, ok := r.ahMap.Get(ip); ok {
				return mac, nil
			}
		}
	}
}

// ARP发包
func (r *Resolver) send(ip netip.Addr) error {
	ethLayer := &layers.Ethernet{
		SrcMAC:       r.srcMac,
		DstMAC:       ETH_BROADCAST,
		EthernetType: layers.EthernetTypeARP,
	}
	arpLayer := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     0x6,
		ProtAddressSize:   0x4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   r.srcMac,
		SourceProtAddress: r.srcIP.AsSlice(),
		DstHwAddress:      ARP_BROADCAST,
		DstProtAddress:    ip.AsSlice(),
	}
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, r.opts, ethLayer, arpLayer); err != nil {
		logger.Error("SerializeLayers Failed", zap.Error(err))
		return err
	}
	if err := r.io.WritePacketData(buf.Bytes()); err != nil {
		logger.Error("WritePacketData Failed", zap.Error(err))
		return err
	}
	return nil
}

// Receive learns the sender of every ARP reply.
func (r *Resolver) Receive(packet gopacket.Packet) {
	arpLayer := packet.Layer(layers.LayerTypeARP)
	if arpLayer == nil {
		return
	}
	arp, ok := arpLayer.(*layers.ARP)
	if !ok || arp.Operation != layers.ARPReply {
		return
	}
	srcMac := net.HardwareAddr(append([]byte(nil), arp.SourceHwAddress...))
	srcIP, ok := netip.AddrFromSlice(arp.SourceProtAddress)
	if !ok {
		return
	}
	if r.ahMap.SetIfAbsent(srcIP, srcMac) {
		logger.Debug("Learned hardware address", zap.String("ip", srcIP.String()), zap.String("mac", srcMac.String()))
	}
}
