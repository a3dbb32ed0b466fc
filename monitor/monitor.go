package monitor

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/LanXuage/gzmap/common"
	"github.com/LanXuage/gzmap/common/constant"
	"github.com/LanXuage/gzmap/counters"
	"go.uber.org/zap"
)

// Iterator is the view of the send side the monitor needs.
type Iterator interface {
	Sent() uint64
	SendWorkers() int
}

// Sink consumes one Status per tick.
type Sink interface {
	Update(st *Status) error
	Close() error
}

type Config struct {
	MaxResults        uint64
	MaxRuntime        time.Duration
	Cooldown          time.Duration
	Quiet             bool
	StatusUpdatesFile string
	// AppSuccess is set when the active module reports app_success.
	AppSuccess         bool
	DropWarnRatio      float64
	FailWarnRatio      float64
	Interval           time.Duration
	RemainingShowAfter time.Duration
}

func (c *Config) applyDefaults() {
	if c.DropWarnRatio == 0 {
		c.DropWarnRatio = constant.DropWarnRatio
	}
	if c.FailWarnRatio == 0 {
		c.FailWarnRatio = constant.FailWarnRatio
	}
	if c.Interval <= 0 {
		c.Interval = constant.UpdateInterval
	}
	if c.RemainingShowAfter == 0 {
		c.RemainingShowAfter = constant.RemainingShowAfter
	}
}

type Option func(*Monitor)

// WithConsole prints the status line to w while holding mu, the lock shared
// with every other writer of w.
func WithConsole(w io.Writer, mu sync.Locker) Option {
	return func(m *Monitor) {
		m.console = &ConsoleSink{w: w, mu: mu}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Monitor) {
		m.logger = l
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// WithSink adds a sink after the console and CSV ones.
func WithSink(s Sink) Option {
	return func(m *Monitor) {
		m.extra = append(m.extra, s)
	}
}

type Monitor struct {
	cfg     Config
	send    *counters.Send
	recv    *counters.Recv
	it      Iterator
	logger  *zap.Logger
	now     func() time.Time
	console *ConsoleSink
	extra   []Sink
	sinks   []Sink
	last    lastStatus
}

// New builds a monitor. A configured status file that cannot be created is
// an error; nothing else is.
func New(cfg Config, send *counters.Send, recv *counters.Recv, it Iterator, opts ...Option) (*Monitor, error) {
	cfg.applyDefaults()
	m := &Monitor{
		cfg:    cfg,
		send:   send,
		recv:   recv,
		it:     it,
		logger: common.GetLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.console != nil && !cfg.Quiet {
		m.console.appSuccess = cfg.AppSuccess
		m.sinks = append(m.sinks, m.console)
	}
	if cfg.StatusUpdatesFile != "" {
		csvSink, err := OpenCSVSink(cfg.StatusUpdatesFile)
		if err != nil {
			return nil, fmt.Errorf("monitor: unable to open status updates file %s: %w", cfg.StatusUpdatesFile, err)
		}
		m.sinks = append(m.sinks, csvSink)
	}
	m.sinks = append(m.sinks, m.extra...)
	return m, nil
}

// Run waits for the gate, then ticks once per interval until both the send
// and receive phases report completion or ctx is cancelled. Every sink is
// closed before it returns.
func (m *Monitor) Run(ctx context.Context, gate *Gate) error {
	defer m.close()
	m.logger.Debug("monitor waiting for receive side")
	select {
	case <-gate.Done():
	case <-ctx.Done():
		return nil
	}
	m.logger.Debug("monitor started")
	timer := time.NewTimer(m.cfg.Interval)
	defer timer.Stop()
	for !(m.send.Complete() && m.recv.Complete()) {
		if ctx.Err() != nil {
			break
		}
		m.Tick()
		timer.Reset(m.cfg.Interval)
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
	}
	m.logger.Debug("monitor stopped")
	return nil
}

// Tick runs one update: refresh capture stats, derive the status, raise
// warnings and hand the status to every sink.
func (m *Monitor) Tick() *Status {
	if err := m.recv.RefreshCaptureStats(); err != nil {
		m.logger.Debug("capture stats unavailable", zap.Error(err))
	}
	st := m.derive(m.now(), m.send.Snapshot(), m.recv.Snapshot())
	m.warn(st)
	for _, s := range m.sinks {
		if err := s.Update(st); err != nil {
			m.logger.Error("status sink update failed", zap.Error(err))
		}
	}
	return st
}

func (m *Monitor) warn(st *Status) {
	if st.DropLast/st.RecvRate > m.cfg.DropWarnRatio {
		m.logger.Warn("dropped packets in the last second",
			zap.Float64("dropLast", st.DropLast),
			zap.Uint64("dropTotal", st.DropTotal),
			zap.Uint64("pcapDrop", st.Drop),
			zap.Uint64("ifaceDrop", st.IfDrop),
		)
	}
	if st.FailLast/st.SendRate > m.cfg.FailWarnRatio {
		m.logger.Warn("failed to send packets in the last second",
			zap.Float64("failLast", st.FailLast),
			zap.Uint64("failTotal", st.FailTotal),
		)
	}
}

func (m *Monitor) close() {
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			m.logger.Error("status sink close failed", zap.Error(err))
		}
	}
}
