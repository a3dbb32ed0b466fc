package sender

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/LanXuage/gzmap/common"
	"github.com/LanXuage/gzmap/common/constant"
	"github.com/LanXuage/gzmap/counters"
	"github.com/LanXuage/gzmap/monitor"
	"github.com/LanXuage/gzmap/probe"
	"github.com/LanXuage/gzmap/validation"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var logger = common.GetLogger()

// PacketWriter puts a frame on the wire. *pcap.Handle satisfies it.
type PacketWriter interface {
	WritePacketData(data []byte) error
}

type Config struct {
	Workers    int
	Rate       int // packets per second, 0 for unlimited
	SrcIP      netip.Addr
	SrcMAC     net.HardwareAddr
	GatewayMAC net.HardwareAddr
}

// Sender drives the send workers. It implements monitor.Iterator.
type Sender struct {
	cfg      Config
	probeCfg probe.Config
	module   probe.Module
	codec    *validation.Codec
	targets  *Targets
	writer   PacketWriter
	send     *counters.Send
	limiter  *rate.Limiter
	src      uint32
	workers  atomic.Int64
	now      func() time.Time
}

var _ monitor.Iterator = (*Sender)(nil)

// New expects module to be initialized with probeCfg.
func New(cfg Config, module probe.Module, probeCfg probe.Config, codec *validation.Codec, targets *Targets, writer PacketWriter, send *counters.Send) (*Sender, error) {
	src, ok := common.Addr2Uint32(cfg.SrcIP)
	if !ok {
		return nil, fmt.Errorf("sender: source %s is not IPv4", cfg.SrcIP)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = constant.DefaultSendWorkers
	}
	limit := rate.Inf
	burst := cfg.Workers
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	return &Sender{
		cfg:      cfg,
		probeCfg: probeCfg,
		module:   module,
		codec:    codec,
		targets:  targets,
		writer:   writer,
		send:     send,
		limiter:  rate.NewLimiter(limit, burst),
		src:      src,
		now:      time.Now,
	}, nil
}

func (s *Sender) Sent() uint64 {
	return s.send.Sent()
}

func (s *Sender) SendWorkers() int {
	return int(s.workers.Load())
}

type workerArgs struct {
	ctx context.Context
	id  int
	wg  *sync.WaitGroup
	err *errorOnce
}

type errorOnce struct {
	once sync.Once
	err  error
}

func (e *errorOnce) set(err error) {
	e.once.Do(func() { e.err = err })
}

// Run sends every probe, or stops early when ctx is done, and stamps the
// send phase complete on the way out. A worker that cannot build its
// skeleton fails the run.
func (s *Sender) Run(ctx context.Context) error {
	s.send.SetTargets(s.targets.Size() * uint64(s.probeCfg.PacketStreams))
	s.send.Start(s.now())
	defer func() { s.send.Finish(s.now()) }()

	pool, err := ants.NewPoolWithFunc(s.cfg.Workers, s.work)
	if err != nil {
		logger.Error("Create send pool failed", zap.Error(err))
		return err
	}
	defer pool.Release()

	var wg sync.WaitGroup
	failed := &errorOnce{}
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		s.workers.Inc()
		if err := pool.Invoke(&workerArgs{ctx: ctx, id: i, wg: &wg, err: failed}); err != nil {
			s.workers.Dec()
			wg.Done()
			failed.set(err)
		}
	}
	wg.Wait()
	return failed.err
}

func (s *Sender) work(iArgs interface{}) {
	args := iArgs.(*workerArgs)
	defer args.wg.Done()
	defer s.workers.Dec()

	buf := &probe.PacketBuffer{}
	wctx, err := s.module.InitWorker(buf, s.cfg.SrcMAC, s.cfg.GatewayMAC, s.probeCfg.TargetPort)
	if err != nil {
		args.err.set(fmt.Errorf("sender: worker %d: %w", args.id, err))
		return
	}
	logger.Debug("Send worker started", zap.Int("worker", args.id))
	for args.ctx.Err() == nil {
		addr, ok := s.targets.Next()
		if !ok {
			break
		}
		dst, _ := common.Addr2Uint32(addr)
		v := s.codec.Encode(validation.Identity{Src: s.src, Dst: dst, Port: s.probeCfg.TargetPort})
		for i := 0; i < s.probeCfg.PacketStreams; i++ {
			if err := s.limiter.Wait(args.ctx); err != nil {
				if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
					logger.Debug("Rate limiter stopped", zap.Error(err))
				}
				return
			}
			if err := s.module.Build(buf, s.src, dst, v, i, wctx); err != nil {
				args.err.set(fmt.Errorf("sender: build probe for %s: %w", addr, err))
				return
			}
			if err := s.writer.WritePacketData(buf.Bytes()); err != nil {
				s.send.AddFailure(1)
				logger.Debug("Send probe failed", zap.String("dst", addr.String()), zap.Error(err))
				continue
			}
			s.send.AddSent(1)
		}
	}
	logger.Debug("Send worker finished", zap.Int("worker", args.id))
}
