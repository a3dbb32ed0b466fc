package common

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/netip"
)

func Fnv32(key netip.Addr) uint32 {
	hash := uint32(2166136261)
	const prime32 = uint32(16777619)
	d := key.AsSlice()
	keyLength := len(d)
	for i := 0; i < keyLength; i++ {
		hash *= prime32
		hash ^= uint32(d[i])
	}
	return hash
}

func ToJSON(data interface{}) string {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprintf("%+v", data)
	}
	var out bytes.Buffer
	err = json.Indent(&out, b, "", "    ")
	if err != nil {
		return fmt.Sprintf("%+v", data)
	}
	return out.String()
}

// IP2Uint32 packs the first four bytes of ip, most significant first.
func IP2Uint32(ip net.IP) uint32 {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	var sum uint32
	sum += uint32(ip[0]) << 24
	sum += uint32(ip[1]) << 16
	sum += uint32(ip[2]) << 8
	return sum + uint32(ip[3])
}

func Uint322IP(ipUint32 uint32) net.IP {
	return net.IPv4(byte((ipUint32>>24)&0xff), byte((ipUint32>>16)&0xff), byte((ipUint32>>8)&0xff), byte(ipUint32&0xff)).To4()
}

// Addr2Uint32 converts an IPv4 (or IPv4-mapped) address. ok is false for
// anything else.
func Addr2Uint32(addr netip.Addr) (uint32, bool) {
	if !addr.Is4() && !addr.Is4In6() {
		return 0, false
	}
	b := addr.As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), true
}

func Uint322Addr(ipUint32 uint32) netip.Addr {
	return netip.AddrFrom4([4]byte{byte(ipUint32 >> 24), byte(ipUint32 >> 16), byte(ipUint32 >> 8), byte(ipUint32)})
}
