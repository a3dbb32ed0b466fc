package counters

import (
	"sync"

	"go.uber.org/atomic"
)

// CaptureStats reports capture-layer drop counters.
type CaptureStats interface {
	Stats() (drop, ifDrop uint64, err error)
}

// Recv is updated by receive workers. Drop counters come from the capture
// layer and are only refreshed under the capture lock, which the receive
// path also holds while it touches the capture handle.
type Recv struct {
	total            atomic.Uint64
	successUnique    atomic.Uint64
	appSuccessUnique atomic.Uint64
	complete         atomic.Bool

	mu      sync.Mutex
	capture CaptureStats
	drop    uint64
	ifDrop  uint64
}

type RecvSnapshot struct {
	Total            uint64
	SuccessUnique    uint64
	AppSuccessUnique uint64
	Drop             uint64
	IfDrop           uint64
	Complete         bool
}

func NewRecv(capture CaptureStats) *Recv {
	return &Recv{capture: capture}
}

func (r *Recv) AddTotal(n uint64)            { r.total.Add(n) }
func (r *Recv) AddSuccessUnique(n uint64)    { r.successUnique.Add(n) }
func (r *Recv) AddAppSuccessUnique(n uint64) { r.appSuccessUnique.Add(n) }
func (r *Recv) SuccessUnique() uint64        { return r.successUnique.Load() }
func (r *Recv) SetComplete()                 { r.complete.Store(true) }
func (r *Recv) Complete() bool               { return r.complete.Load() }

// CaptureLock is the lock guarding the capture handle and drop counters.
func (r *Recv) CaptureLock() sync.Locker {
	return &r.mu
}

// RefreshCaptureStats asks the capture layer for fresh drop counters.
// Without a capture source it is a no-op.
func (r *Recv) RefreshCaptureStats() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.capture == nil {
		return nil
	}
	drop, ifDrop, err := r.capture.Stats()
	if err != nil {
		return err
	}
	r.drop, r.ifDrop = drop, ifDrop
	return nil
}

// DetachCapture drops the capture source, typically right before its handle
// is closed.
func (r *Recv) DetachCapture() {
	r.mu.Lock()
	r.capture = nil
	r.mu.Unlock()
}

func (r *Recv) Snapshot() RecvSnapshot {
	r.mu.Lock()
	drop, ifDrop := r.drop, r.ifDrop
	r.mu.Unlock()
	return RecvSnapshot{
		Total:            r.total.Load(),
		SuccessUnique:    r.successUnique.Load(),
		AppSuccessUnique: r.appSuccessUnique.Load(),
		Drop:             drop,
		IfDrop:           ifDrop,
		Complete:         r.complete.Load(),
	}
}
