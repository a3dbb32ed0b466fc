package probe_test

import (
	"io"
	"net"
	"testing"

	"github.com/LanXuage/gzmap/probe"
	"github.com/LanXuage/gzmap/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubModule struct {
	desc probe.Descriptor
}

func (s *stubModule) Descriptor() *probe.Descriptor { return &s.desc }
func (s *stubModule) Init(*probe.Config) error      { return nil }
func (s *stubModule) InitWorker(*probe.PacketBuffer, net.HardwareAddr, net.HardwareAddr, uint16) (any, error) {
	return nil, nil
}
func (s *stubModule) Build(*probe.PacketBuffer, uint32, uint32, validation.Vector, int, any) error {
	return nil
}
func (s *stubModule) Validate([]byte, validation.Vector) bool { return false }
func (s *stubModule) Classify([]byte, *probe.FieldSet)        {}
func (s *stubModule) Print(io.Writer, []byte)                 {}

func TestRegistry(t *testing.T) {
	a := &stubModule{desc: probe.Descriptor{Name: "b_scan"}}
	b := &stubModule{desc: probe.Descriptor{Name: "a_scan", Fields: []probe.FieldDef{{Name: "success"}}}}
	r, err := probe.NewRegistry(a, b)
	require.NoError(t, err)
	assert.Equal(t, []string{"a_scan", "b_scan"}, r.Names())

	m, err := r.Get("a_scan")
	require.NoError(t, err)
	assert.Same(t, b, m)
	assert.True(t, m.Descriptor().HasField("success"))
	assert.False(t, m.Descriptor().HasField("app_success"))

	_, err = r.Get("udp")
	assert.ErrorIs(t, err, probe.ErrUnknownModule)

	_, err = probe.NewRegistry(a, a)
	assert.ErrorIs(t, err, probe.ErrDuplicateModule)
}
