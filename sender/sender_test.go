package sender_test

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync"
	"testing"

	"github.com/LanXuage/gzmap/common"
	"github.com/LanXuage/gzmap/core/mptcp"
	"github.com/LanXuage/gzmap/counters"
	"github.com/LanXuage/gzmap/probe"
	"github.com/LanXuage/gzmap/sender"
	"github.com/LanXuage/gzmap/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu     sync.Mutex
	frames [][]byte
	fail   bool
	cancel context.CancelFunc
}

func (f *fakeWriter) WritePacketData(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		f.cancel()
	}
	if f.fail {
		return errors.New("no buffer space available")
	}
	f.frames = append(f.frames, append([]byte(nil), data...))
	return nil
}

var sendCfg = sender.Config{
	Workers:    3,
	SrcIP:      netip.MustParseAddr("10.0.0.1"),
	SrcMAC:     net.HardwareAddr{2, 0, 0, 0, 0, 1},
	GatewayMAC: net.HardwareAddr{2, 0, 0, 0, 0, 2},
}

func newSender(t *testing.T, cfg sender.Config, w sender.PacketWriter, prefix string) (*sender.Sender, *counters.Send, probe.Config, *validation.Codec) {
	t.Helper()
	probeCfg := probe.Config{TargetPort: 443, SourcePortFirst: 40000, SourcePortLast: 40009, PacketStreams: 2}
	module := mptcp.New()
	require.NoError(t, module.Init(&probeCfg))
	codec, err := validation.New([]byte("sender test seed"))
	require.NoError(t, err)
	targets, err := sender.ParseTargets(prefix)
	require.NoError(t, err)
	send := counters.NewSend()
	s, err := sender.New(cfg, module, probeCfg, codec, targets, w, send)
	require.NoError(t, err)
	return s, send, probeCfg, codec
}

func TestSenderSendsEveryProbe(t *testing.T) {
	w := &fakeWriter{}
	s, send, probeCfg, codec := newSender(t, sendCfg, w, "192.0.2.0/28")
	require.NoError(t, s.Run(context.Background()))

	snap := send.Snapshot()
	assert.Equal(t, uint64(32), snap.Targets)
	assert.Equal(t, uint64(32), snap.Sent)
	assert.Equal(t, uint64(32), s.Sent())
	assert.Zero(t, snap.Failures)
	assert.True(t, snap.Complete)
	assert.False(t, snap.Finish.Before(snap.Start))
	assert.Zero(t, s.SendWorkers())

	ports := map[uint32]map[uint16]bool{}
	for _, frame := range w.frames {
		require.Len(t, frame, mptcp.PacketLength)
		ip := probe.IPv4Header(frame[probe.EthernetHeaderLen:])
		tcp := probe.TCPHeader(frame[probe.EthernetHeaderLen+probe.IPv4HeaderLen:])
		assert.Equal(t, common.IP2Uint32(net.IPv4(10, 0, 0, 1)), ip.Src())
		assert.True(t, probe.VerifyIPChecksum(ip[:probe.IPv4HeaderLen]))

		v := codec.Encode(validation.Identity{Src: ip.Src(), Dst: ip.Dst(), Port: 443})
		assert.True(t, probe.CheckDstPort(&probeCfg, tcp.SrcPort(), v))
		assert.Equal(t, v[0], tcp.Seq())
		if ports[ip.Dst()] == nil {
			ports[ip.Dst()] = map[uint16]bool{}
		}
		ports[ip.Dst()][tcp.SrcPort()] = true
	}
	assert.Len(t, ports, 16)
	for _, p := range ports {
		assert.Len(t, p, 2, "each probe of a target uses its own source port")
	}
}

func TestSenderCountsFailures(t *testing.T) {
	s, send, _, _ := newSender(t, sendCfg, &fakeWriter{fail: true}, "192.0.2.0/30")
	require.NoError(t, s.Run(context.Background()))
	snap := send.Snapshot()
	assert.Zero(t, snap.Sent)
	assert.Equal(t, uint64(8), snap.Failures)
	assert.True(t, snap.Complete)
}

func TestSenderStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := &fakeWriter{cancel: cancel}
	cfg := sendCfg
	cfg.Workers = 1
	s, send, _, _ := newSender(t, cfg, w, "10.0.0.0/16")
	require.NoError(t, s.Run(ctx))
	snap := send.Snapshot()
	assert.Less(t, snap.Sent, uint64(4))
	assert.True(t, snap.Complete)
}

func TestSenderRejectsIPv6Source(t *testing.T) {
	cfg := sendCfg
	cfg.SrcIP = netip.MustParseAddr("2001:db8::1")
	_, err := sender.New(cfg, mptcp.New(), probe.Config{}, nil, nil, &fakeWriter{}, counters.NewSend())
	assert.Error(t, err)
}

func TestSenderWorkerInitFailure(t *testing.T) {
	cfg := sendCfg
	cfg.GatewayMAC = nil
	s, send, _, _ := newSender(t, cfg, &fakeWriter{}, "192.0.2.0/30")
	assert.Error(t, s.Run(context.Background()))
	assert.Zero(t, send.Sent())
	assert.True(t, send.Complete())
}
