package probe

import (
	"encoding/binary"
	"fmt"
	"net"
)

const (
	MaxPacketSize     = 4096
	EthernetHeaderLen = 14
	IPv4HeaderLen     = 20
	TCPHeaderLen      = 20

	IPProtocolTCP uint8 = 6
)

const (
	TCPFlagFIN uint8 = 0x01
	TCPFlagSYN uint8 = 0x02
	TCPFlagRST uint8 = 0x04
	TCPFlagPSH uint8 = 0x08
	TCPFlagACK uint8 = 0x10
)

// PacketBuffer is the fixed-capacity packet template owned by one send
// worker. Header views returned by its accessors alias the buffer, so
// mutating a probe in place costs no allocation.
type PacketBuffer struct {
	data [MaxPacketSize]byte
	n    int
}

func (b *PacketBuffer) Reset() {
	b.data = [MaxPacketSize]byte{}
	b.n = 0
}

func (b *PacketBuffer) Len() int {
	return b.n
}

func (b *PacketBuffer) SetLen(n int) error {
	if n < 0 || n > MaxPacketSize {
		return fmt.Errorf("%w: %d > %d", ErrBufferTooSmall, n, MaxPacketSize)
	}
	b.n = n
	return nil
}

// Bytes returns the current frame.
func (b *PacketBuffer) Bytes() []byte {
	return b.data[:b.n]
}

// Load replaces the frame with a copy of p.
func (b *PacketBuffer) Load(p []byte) error {
	if len(p) > MaxPacketSize {
		return fmt.Errorf("%w: %d > %d", ErrBufferTooSmall, len(p), MaxPacketSize)
	}
	b.Reset()
	b.n = copy(b.data[:], p)
	return nil
}

func (b *PacketBuffer) Ethernet() EthernetHeader {
	return EthernetHeader(b.data[:EthernetHeaderLen])
}

// IPv4 returns the network header following the Ethernet header. The
// skeleton decides its length through the IHL field.
func (b *PacketBuffer) IPv4() IPv4Header {
	ip := IPv4Header(b.data[EthernetHeaderLen:])
	return ip[:ip.HeaderLen()]
}

// TCP returns the transport segment, options and payload included, up to
// the current frame length.
func (b *PacketBuffer) TCP() TCPHeader {
	start := EthernetHeaderLen + b.IPv4().HeaderLen()
	if start > b.n {
		return TCPHeader(b.data[start:start])
	}
	return TCPHeader(b.data[start:b.n])
}

type EthernetHeader []byte

func (h EthernetHeader) Dst() net.HardwareAddr { return net.HardwareAddr(h[0:6]) }
func (h EthernetHeader) Src() net.HardwareAddr { return net.HardwareAddr(h[6:12]) }
func (h EthernetHeader) EtherType() uint16     { return binary.BigEndian.Uint16(h[12:14]) }

// IPv4Header is a view on an IPv4 header. Callers check the length first.
type IPv4Header []byte

func (h IPv4Header) Version() uint8       { return h[0] >> 4 }
func (h IPv4Header) HeaderLen() int       { return int(h[0]&0x0f) * 4 }
func (h IPv4Header) TotalLen() uint16     { return binary.BigEndian.Uint16(h[2:4]) }
func (h IPv4Header) ID() uint16           { return binary.BigEndian.Uint16(h[4:6]) }
func (h IPv4Header) TTL() uint8           { return h[8] }
func (h IPv4Header) Protocol() uint8      { return h[9] }
func (h IPv4Header) Checksum() uint16     { return binary.BigEndian.Uint16(h[10:12]) }
func (h IPv4Header) Src() uint32          { return binary.BigEndian.Uint32(h[12:16]) }
func (h IPv4Header) Dst() uint32          { return binary.BigEndian.Uint32(h[16:20]) }
func (h IPv4Header) SetSrc(v uint32)      { binary.BigEndian.PutUint32(h[12:16], v) }
func (h IPv4Header) SetDst(v uint32)      { binary.BigEndian.PutUint32(h[16:20], v) }
func (h IPv4Header) SetChecksum(v uint16) { binary.BigEndian.PutUint16(h[10:12], v) }

// TCPHeader is a view on a TCP segment.
type TCPHeader []byte

func (h TCPHeader) SrcPort() uint16  { return binary.BigEndian.Uint16(h[0:2]) }
func (h TCPHeader) DstPort() uint16  { return binary.BigEndian.Uint16(h[2:4]) }
func (h TCPHeader) Seq() uint32      { return binary.BigEndian.Uint32(h[4:8]) }
func (h TCPHeader) Ack() uint32      { return binary.BigEndian.Uint32(h[8:12]) }
func (h TCPHeader) DataOffset() int  { return int(h[12]>>4) * 4 }
func (h TCPHeader) Flags() uint8     { return h[13] }
func (h TCPHeader) Window() uint16   { return binary.BigEndian.Uint16(h[14:16]) }
func (h TCPHeader) Checksum() uint16 { return binary.BigEndian.Uint16(h[16:18]) }

// Options returns the option bytes between the fixed header and the data
// offset.
func (h TCPHeader) Options() []byte {
	off := h.DataOffset()
	if off < TCPHeaderLen || off > len(h) {
		return nil
	}
	return h[TCPHeaderLen:off]
}

func (h TCPHeader) SetSrcPort(v uint16)  { binary.BigEndian.PutUint16(h[0:2], v) }
func (h TCPHeader) SetDstPort(v uint16)  { binary.BigEndian.PutUint16(h[2:4], v) }
func (h TCPHeader) SetSeq(v uint32)      { binary.BigEndian.PutUint32(h[4:8], v) }
func (h TCPHeader) SetAck(v uint32)      { binary.BigEndian.PutUint32(h[8:12], v) }
func (h TCPHeader) SetChecksum(v uint16) { binary.BigEndian.PutUint16(h[16:18], v) }

// SetDataOffset stores the header length in bytes, rounded down to words.
func (h TCPHeader) SetDataOffset(n int) {
	h[12] = byte(n/4)<<4 | h[12]&0x0f
}

func onesComplementSum(sum uint32, b []byte) uint32 {
	for len(b) >= 2 {
		sum += uint32(b[0])<<8 | uint32(b[1])
		b = b[2:]
	}
	if len(b) == 1 {
		sum += uint32(b[0]) << 8
	}
	return sum
}

func foldChecksum(sum uint32) uint16 {
	for sum>>16 != 0 {
		sum = sum&0xffff + sum>>16
	}
	return ^uint16(sum)
}

// IPChecksum is the RFC 1071 checksum of hdr. The checksum field must be
// zero when computing a fresh value.
func IPChecksum(hdr []byte) uint16 {
	return foldChecksum(onesComplementSum(0, hdr))
}

// TCPChecksum covers the IPv4 pseudo header and seg. The checksum field
// must be zero when computing a fresh value.
func TCPChecksum(src, dst uint32, seg []byte) uint16 {
	sum := src>>16 + src&0xffff + dst>>16 + dst&0xffff
	sum += uint32(IPProtocolTCP) + uint32(len(seg))
	return foldChecksum(onesComplementSum(sum, seg))
}

func VerifyIPChecksum(hdr []byte) bool {
	return IPChecksum(hdr) == 0
}

func VerifyTCPChecksum(src, dst uint32, seg []byte) bool {
	return TCPChecksum(src, dst, seg) == 0
}
