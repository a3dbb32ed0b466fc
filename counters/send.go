// Package counters holds the live scan counters shared by the send and
// receive workers and read by the monitor. Increments are lock-free; a
// snapshot reads each field atomically but not the set as a whole.
package counters

import (
	"time"

	"go.uber.org/atomic"
)

// Send is updated by send workers.
type Send struct {
	targets  atomic.Uint64
	sent     atomic.Uint64
	failures atomic.Uint64
	complete atomic.Bool
	start    atomic.Time
	finish   atomic.Time
}

type SendSnapshot struct {
	Targets  uint64
	Sent     uint64
	Failures uint64
	Complete bool
	Start    time.Time
	Finish   time.Time
}

func NewSend() *Send {
	return &Send{}
}

// SetTargets records the size of the probe space, 0 when unbounded.
func (s *Send) SetTargets(n uint64) { s.targets.Store(n) }
func (s *Send) AddSent(n uint64)    { s.sent.Add(n) }
func (s *Send) AddFailure(n uint64) { s.failures.Add(n) }
func (s *Send) Sent() uint64        { return s.sent.Load() }
func (s *Send) Complete() bool      { return s.complete.Load() }

func (s *Send) Start(t time.Time) {
	s.start.Store(t)
}

// Finish stamps the end of the send phase and marks it complete.
func (s *Send) Finish(t time.Time) {
	s.finish.Store(t)
	s.complete.Store(true)
}

func (s *Send) Snapshot() SendSnapshot {
	return SendSnapshot{
		Targets:  s.targets.Load(),
		Sent:     s.sent.Load(),
		Failures: s.failures.Load(),
		Complete: s.complete.Load(),
		Start:    s.start.Load(),
		Finish:   s.finish.Load(),
	}
}
