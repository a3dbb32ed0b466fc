package probe

import "fmt"

// Config is the scan-wide configuration a module reads. It must not change
// after Module.Init.
type Config struct {
	TargetPort      uint16
	SourcePortFirst uint16
	SourcePortLast  uint16
	PacketStreams   int // probes sent to every target
}

// NumSourcePorts is the size of the inclusive source port range, 0 when the
// range is empty.
func (c *Config) NumSourcePorts() int {
	if c.SourcePortLast < c.SourcePortFirst {
		return 0
	}
	return int(c.SourcePortLast) - int(c.SourcePortFirst) + 1
}

func (c *Config) Validate() error {
	n := c.NumSourcePorts()
	if n == 0 {
		return fmt.Errorf("probe: empty source port range %d-%d", c.SourcePortFirst, c.SourcePortLast)
	}
	if c.PacketStreams < 1 {
		return fmt.Errorf("probe: packet streams must be positive, got %d", c.PacketStreams)
	}
	if c.PacketStreams > n {
		return fmt.Errorf("probe: %d probes per target exceed %d source ports", c.PacketStreams, n)
	}
	return nil
}
