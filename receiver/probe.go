package receiver

import (
	"net/netip"
	"sync"

	"github.com/LanXuage/gzmap/common"
	"github.com/LanXuage/gzmap/common/constant"
	"github.com/LanXuage/gzmap/counters"
	"github.com/LanXuage/gzmap/probe"
	"github.com/LanXuage/gzmap/validation"
	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/google/gopacket"
	"go.uber.org/zap"
)

const etherTypeIPv4 = 0x0800

// Fields every result carries in addition to the module schema.
const (
	FieldSaddr  = "saddr"
	FieldDaddr  = "daddr"
	FieldRepeat = "repeat"
)

// Filter decides whether a classified response is published.
type Filter func(fs *probe.FieldSet) bool

// SuccessFilter keeps first-seen successes only.
func SuccessFilter(fs *probe.FieldSet) bool {
	success, _ := fs.Get("success")
	repeat, _ := fs.Get(FieldRepeat)
	return success.Int == 1 && repeat.Int == 0
}

type ProbeReceiverOption func(*ProbeReceiver)

func WithFilter(f Filter) ProbeReceiverOption {
	return func(r *ProbeReceiver) {
		r.filter = f
	}
}

func WithResultBuffer(n int) ProbeReceiverOption {
	return func(r *ProbeReceiver) {
		r.results = make(chan *probe.FieldSet, n)
	}
}

// ProbeReceiver turns captured frames into counted, deduplicated results.
// Frames that fail validation are dropped without a trace.
type ProbeReceiver struct {
	module     probe.Module
	cfg        probe.Config
	codec      *validation.Codec
	recv       *counters.Recv
	filter     Filter
	appSuccess bool
	seen       cmap.ConcurrentMap[netip.Addr, struct{}]
	results    chan *probe.FieldSet
	stop       chan struct{}
	closeOnce  sync.Once
	stopOnce   sync.Once
}

var _ PacketReceiver = (*ProbeReceiver)(nil)

// NewProbeReceiver expects module to be initialized with cfg.
func NewProbeReceiver(module probe.Module, cfg probe.Config, codec *validation.Codec, recv *counters.Recv, opts ...ProbeReceiverOption) *ProbeReceiver {
	r := &ProbeReceiver{
		module:     module,
		cfg:        cfg,
		codec:      codec,
		recv:       recv,
		appSuccess: module.Descriptor().HasField("app_success"),
		seen:       cmap.NewWithCustomShardingFunction[netip.Addr, struct{}](common.Fnv32),
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.results == nil {
		r.results = make(chan *probe.FieldSet, constant.CHANNEL_SIZE)
	}
	return r
}

// Results is closed by Close.
func (r *ProbeReceiver) Results() <-chan *probe.FieldSet {
	return r.results
}

// Close must only be called once no more frames are being handled.
func (r *ProbeReceiver) Close() {
	r.closeOnce.Do(func() { close(r.results) })
}

// Stop makes Handle discard results instead of waiting for a reader.
// Counting goes on.
func (r *ProbeReceiver) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *ProbeReceiver) Receive(packet gopacket.Packet) {
	r.Handle(packet.Data())
}

// Handle processes one Ethernet frame and reports whether it answered one
// of our probes.
func (r *ProbeReceiver) Handle(frame []byte) bool {
	if len(frame) < probe.EthernetHeaderLen+probe.IPv4HeaderLen {
		return false
	}
	if probe.EthernetHeader(frame).EtherType() != etherTypeIPv4 {
		return false
	}
	ip := frame[probe.EthernetHeaderLen:]
	hdr := probe.IPv4Header(ip)
	// the responder is the probe's destination
	v := r.codec.Encode(validation.Identity{Src: hdr.Dst(), Dst: hdr.Src(), Port: r.cfg.TargetPort})
	if !r.module.Validate(ip, v) {
		return false
	}
	r.recv.AddTotal(1)

	saddr := common.Uint322Addr(hdr.Src())
	fs := probe.NewFieldSet(len(r.module.Descriptor().Fields) + 3)
	fs.AddString(FieldSaddr, saddr.String())
	fs.AddString(FieldDaddr, common.Uint322Addr(hdr.Dst()).String())
	r.module.Classify(frame, fs)

	var repeat uint64
	if success, ok := fs.Get("success"); ok && success.Int == 1 {
		if r.seen.SetIfAbsent(saddr, struct{}{}) {
			r.recv.AddSuccessUnique(1)
			if app, ok := fs.Get("app_success"); r.appSuccess && ok && app.Int == 1 {
				r.recv.AddAppSuccessUnique(1)
			}
		} else {
			repeat = 1
		}
	}
	fs.AddUint64(FieldRepeat, repeat)

	if r.filter != nil && !r.filter(fs) {
		return true
	}
	select {
	case r.results <- fs:
		logger.Debug("Publish result", zap.String("saddr", saddr.String()))
	case <-r.stop:
	}
	return true
}
