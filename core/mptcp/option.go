package mptcp

import (
	"encoding/binary"

	"github.com/LanXuage/gzmap/common/constant"
)

// mpCapable is the SYN form of the MP_CAPABLE option: kind, length,
// subtype|version, flags, sender key.
type mpCapable struct {
	Subtype   uint8
	Version   uint8
	A         bool // checksum required
	B         bool // extensibility
	H         bool // HMAC-SHA1
	SenderKey uint64
}

// placeholder is the fixed option every probe carries. No key exchange ever
// follows it: a SYN-ACK is all the scan looks for.
var placeholder = mpCapable{
	Subtype:   constant.MPTCPSubCapable,
	Version:   0,
	H:         true,
	SenderKey: constant.MPTCPSenderKey,
}

func (o *mpCapable) encode(b []byte) {
	_ = b[constant.MPTCPSubLenCapableSYN-1]
	b[0] = constant.TCPOptionKindMPTCP
	b[1] = constant.MPTCPSubLenCapableSYN
	b[2] = o.Subtype<<4 | o.Version&0x0f
	var flags uint8
	if o.A {
		flags |= 0x80
	}
	if o.B {
		flags |= 0x40
	}
	if o.H {
		flags |= 0x01
	}
	b[3] = flags
	// network byte order; little-endian hosts of the C scanner emit the key
	// byte-reversed
	binary.BigEndian.PutUint64(b[4:12], o.SenderKey)
}

func decodeMPCapable(b []byte) (mpCapable, bool) {
	if len(b) < int(constant.MPTCPSubLenCapableSYN) ||
		b[0] != constant.TCPOptionKindMPTCP || b[1] != constant.MPTCPSubLenCapableSYN {
		return mpCapable{}, false
	}
	return mpCapable{
		Subtype:   b[2] >> 4,
		Version:   b[2] & 0x0f,
		A:         b[3]&0x80 != 0,
		B:         b[3]&0x40 != 0,
		H:         b[3]&0x01 != 0,
		SenderKey: binary.BigEndian.Uint64(b[4:12]),
	}, true
}
