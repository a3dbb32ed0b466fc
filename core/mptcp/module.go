// Package mptcp implements the mptcp_synscan probe module: a TCP SYN
// carrying an MP_CAPABLE option, answered by SYN-ACK (success) or RST.
package mptcp

import (
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/LanXuage/gzmap/common"
	"github.com/LanXuage/gzmap/common/constant"
	"github.com/LanXuage/gzmap/probe"
	"github.com/LanXuage/gzmap/validation"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"go.uber.org/zap"
)

const (
	Name         = "mptcp_synscan"
	PacketLength = probe.EthernetHeaderLen + probe.IPv4HeaderLen + probe.TCPHeaderLen + int(constant.MPTCPSubLenCapableSYN)
	PcapFilter   = "tcp && tcp[13] & 4 != 0 || tcp[13] == 18"
	PcapSnaplen  = 96
)

var ErrPacketLength = errors.New("mptcp: packet length does not match descriptor")

var logger = common.GetLogger()

var fields = []probe.FieldDef{
	{Name: "sport", Type: probe.FieldTypeInt, Desc: "TCP source port"},
	{Name: "dport", Type: probe.FieldTypeInt, Desc: "TCP destination port"},
	{Name: "seqnum", Type: probe.FieldTypeInt, Desc: "TCP sequence number"},
	{Name: "acknum", Type: probe.FieldTypeInt, Desc: "TCP acknowledgement number"},
	{Name: "window", Type: probe.FieldTypeInt, Desc: "TCP window"},
	{Name: "classification", Type: probe.FieldTypeString, Desc: "packet classification"},
	{Name: "success", Type: probe.FieldTypeInt, Desc: "is response considered success"},
}

type Module struct {
	desc probe.Descriptor
	cfg  probe.Config
}

var _ probe.Module = (*Module)(nil)

func New() *Module {
	return &Module{
		desc: probe.Descriptor{
			Name:         Name,
			PacketLength: PacketLength,
			PcapFilter:   PcapFilter,
			PcapSnaplen:  PcapSnaplen,
			PortArgs:     1,
			HelpText: "Probe module that sends a TCP SYN packet with an MP_CAPABLE " +
				"MP-TCP option to a specific port. Possible classifications are: " +
				"synack and rst. A SYN-ACK packet is considered a success and a " +
				"reset packet is considered a failed response.",
			Fields: fields,
		},
	}
}

func (m *Module) Descriptor() *probe.Descriptor {
	return &m.desc
}

func (m *Module) Init(cfg *probe.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("mptcp: %w", err)
	}
	m.cfg = *cfg
	logger.Debug("mptcp_synscan initialized",
		zap.Uint16("targetPort", cfg.TargetPort),
		zap.Int("sourcePorts", cfg.NumSourcePorts()),
		zap.Int("packetStreams", cfg.PacketStreams))
	return nil
}

// InitWorker serializes the Ethernet/IPv4/TCP SYN skeleton once, reserves
// room for the option behind the TCP header and widens the data offset over
// it.
func (m *Module) InitWorker(buf *probe.PacketBuffer, src, gw net.HardwareAddr, dstPort uint16) (any, error) {
	optLen := int(constant.MPTCPSubLenCapableSYN)
	ethLayer := &layers.Ethernet{
		SrcMAC:       src,
		DstMAC:       gw,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ipLayer := &layers.IPv4{
		Version:  4,
		Id:       constant.IPv4Id,
		TTL:      constant.IPv4TTL,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IPv4zero.To4(),
		DstIP:    net.IPv4zero.To4(),
	}
	tcpLayer := &layers.TCP{
		DstPort: layers.TCPPort(dstPort),
		SYN:     true,
		Window:  constant.TCPWindow,
	}
	sb := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(sb, opts, ethLayer, ipLayer, tcpLayer, gopacket.Payload(make([]byte, optLen))); err != nil {
		return nil, fmt.Errorf("mptcp: serialize skeleton: %w", err)
	}
	if err := buf.Load(sb.Bytes()); err != nil {
		return nil, err
	}
	tcp := buf.TCP()
	tcp.SetDataOffset(tcp.DataOffset() + optLen)
	if buf.Len() != m.desc.PacketLength || len(tcp.Options()) != optLen {
		return nil, fmt.Errorf("%w: wrote %d, declared %d", ErrPacketLength, buf.Len(), m.desc.PacketLength)
	}
	placeholder.encode(tcp.Options())
	return nil, nil
}

func (m *Module) Build(buf *probe.PacketBuffer, src, dst uint32, v validation.Vector, probeIdx int, _ any) error {
	if buf.Len() != m.desc.PacketLength {
		return ErrPacketLength
	}
	ip := buf.IPv4()
	tcp := buf.TCP()

	ip.SetSrc(src)
	ip.SetDst(dst)
	tcp.SetSrcPort(probe.SourcePort(&m.cfg, probeIdx, v))
	tcp.SetSeq(v[0])
	tcp.SetChecksum(0)
	placeholder.encode(tcp.Options())
	tcp.SetChecksum(probe.TCPChecksum(src, dst, tcp))

	ip.SetChecksum(0)
	ip.SetChecksum(probe.IPChecksum(ip))
	return nil
}

// Validate proves a response belongs to one of our probes by arithmetic
// alone: the peer must acknowledge validation word 0 plus one on a port the
// vector maps back to an issued probe.
func (m *Module) Validate(ip []byte, v validation.Vector) bool {
	if len(ip) < probe.IPv4HeaderLen {
		return false
	}
	hdr := probe.IPv4Header(ip)
	if hdr.Protocol() != probe.IPProtocolTCP {
		return false
	}
	ihl := hdr.HeaderLen()
	if ihl < probe.IPv4HeaderLen || ihl+probe.TCPHeaderLen > len(ip) {
		return false
	}
	tcp := probe.TCPHeader(ip[ihl:])
	if tcp.SrcPort() != m.cfg.TargetPort {
		return false
	}
	if !probe.CheckDstPort(&m.cfg, tcp.DstPort(), v) {
		return false
	}
	return tcp.Ack() == v[0]+1
}

func (m *Module) Classify(frame []byte, fs *probe.FieldSet) {
	tcp, ok := tcpFromFrame(frame)
	if !ok {
		return
	}
	fs.AddUint64("sport", uint64(tcp.SrcPort()))
	fs.AddUint64("dport", uint64(tcp.DstPort()))
	fs.AddUint64("seqnum", uint64(tcp.Seq()))
	fs.AddUint64("acknum", uint64(tcp.Ack()))
	fs.AddUint64("window", uint64(tcp.Window()))
	if tcp.Flags()&probe.TCPFlagRST != 0 {
		fs.AddString("classification", "rst")
		fs.AddUint64("success", 0)
	} else {
		fs.AddString("classification", "synack")
		fs.AddUint64("success", 1)
	}
}

func (m *Module) Print(w io.Writer, frame []byte) {
	tcp, ok := tcpFromFrame(frame)
	if !ok {
		fmt.Fprintf(w, "truncated packet (%d bytes)\n", len(frame))
		return
	}
	eth := probe.EthernetHeader(frame)
	ip := probe.IPv4Header(frame[probe.EthernetHeaderLen:])
	fmt.Fprintf(w, "tcp { source: %d | dest: %d | seq: %d | checksum: %#04X }\n",
		tcp.SrcPort(), tcp.DstPort(), tcp.Seq(), tcp.Checksum())
	if opt, ok := decodeMPCapable(tcp.Options()); ok {
		fmt.Fprintf(w, "mp_capable { version: %d | subtype: %d | a: %t | b: %t | h: %t | sender_key: %#016x }\n",
			opt.Version, opt.Subtype, opt.A, opt.B, opt.H, opt.SenderKey)
	}
	fmt.Fprintf(w, "ip { saddr: %s | daddr: %s | checksum: %#04X }\n",
		common.Uint322Addr(ip.Src()), common.Uint322Addr(ip.Dst()), ip.Checksum())
	fmt.Fprintf(w, "eth { shost: %s | dhost: %s }\n", eth.Src(), eth.Dst())
	fmt.Fprintln(w, "------------------------------------------------------")
}

func tcpFromFrame(frame []byte) (probe.TCPHeader, bool) {
	if len(frame) < probe.EthernetHeaderLen+probe.IPv4HeaderLen {
		return nil, false
	}
	ip := frame[probe.EthernetHeaderLen:]
	ihl := probe.IPv4Header(ip).HeaderLen()
	if ihl < probe.IPv4HeaderLen || ihl+probe.TCPHeaderLen > len(ip) {
		return nil, false
	}
	return probe.TCPHeader(ip[ihl:]), true
}
