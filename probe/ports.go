package probe

import "github.com/LanXuage/gzmap/validation"

// SourcePort maps a probe index onto one configured source port. Over probe
// indexes [0, NumSourcePorts) the mapping is a bijection onto the range, and
// ProbeIndex is its exact inverse.
func SourcePort(cfg *Config, probeIdx int, v validation.Vector) uint16 {
	n := uint64(cfg.NumSourcePorts())
	off := (uint64(v[1])%n + uint64(probeIdx)%n) % n
	return cfg.SourcePortFirst + uint16(off)
}

// ProbeIndex recovers the probe index that SourcePort turned into port.
func ProbeIndex(cfg *Config, port uint16, v validation.Vector) (int, bool) {
	if port < cfg.SourcePortFirst || port > cfg.SourcePortLast {
		return 0, false
	}
	n := uint64(cfg.NumSourcePorts())
	off := uint64(port - cfg.SourcePortFirst)
	return int((off + n - uint64(v[1])%n) % n), true
}

// CheckDstPort reports whether port, the destination port of a response,
// belongs to one of the PacketStreams probes sent to the target.
func CheckDstPort(cfg *Config, port uint16, v validation.Vector) bool {
	idx, ok := ProbeIndex(cfg, port, v)
	return ok && idx < cfg.PacketStreams
}
