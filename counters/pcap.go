package counters

import "github.com/google/gopacket/pcap"

// PcapStats adapts a live pcap handle to CaptureStats.
type PcapStats struct {
	Handle *pcap.Handle
}

func (p PcapStats) Stats() (uint64, uint64, error) {
	stats, err := p.Handle.Stats()
	if err != nil {
		return 0, 0, err
	}
	return uint64(stats.PacketsDropped), uint64(stats.PacketsIfDropped), nil
}
