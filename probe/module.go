// Package probe defines the contract every wire-protocol scanner implements
// and the packet primitives they share.
//
// A Module builds probes into a worker-owned PacketBuffer and recognises
// responses purely from the bytes on the wire plus the validation vector, so
// every method except Init is safe to call from any number of goroutines
// once Init has returned.
package probe

import (
	"errors"
	"io"
	"net"

	"github.com/LanXuage/gzmap/validation"
)

var (
	ErrUnknownModule   = errors.New("probe: unknown module")
	ErrDuplicateModule = errors.New("probe: duplicate module name")
	ErrBufferTooSmall  = errors.New("probe: packet buffer too small")
)

// FieldDef describes one entry of a module's output schema.
type FieldDef struct {
	Name string
	Type FieldType
	Desc string
}

// Descriptor is the immutable metadata of a module.
type Descriptor struct {
	Name         string
	PacketLength int    // exact bytes on the wire, link header included
	PcapFilter   string // capture filter matching candidate responses
	PcapSnaplen  int
	PortArgs     int // source ports consumed per target
	HelpText     string
	Fields       []FieldDef
}

// HasField reports whether name is part of the schema.
func (d *Descriptor) HasField(name string) bool {
	for _, f := range d.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Module is a stateless probe implementation.
type Module interface {
	Descriptor() *Descriptor

	// Init runs once before any worker starts. An error aborts the scan.
	Init(cfg *Config) error

	// InitWorker writes the packet skeleton into buf. The returned value is
	// handed back to Build for every probe of that worker.
	InitWorker(buf *PacketBuffer, src, gw net.HardwareAddr, dstPort uint16) (any, error)

	// Build turns the skeleton into one complete probe. It must not allocate
	// and must leave buf.Len() == Descriptor().PacketLength.
	Build(buf *PacketBuffer, src, dst uint32, v validation.Vector, probeIdx int, wctx any) error

	// Validate reports whether ip, a received packet starting at its IPv4
	// header, answers a probe carrying v. It never reads past len(ip).
	Validate(ip []byte, v validation.Vector) bool

	// Classify fills fs from a full frame that Validate accepted.
	Classify(frame []byte, fs *FieldSet)

	// Print writes a human readable dump of a probe frame.
	Print(w io.Writer, frame []byte)
}

// Finalizer is implemented by modules that report summary fields at the end
// of a scan.
type Finalizer interface {
	Finalize() (*FieldSet, error)
}
