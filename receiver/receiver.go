package receiver

import (
	"context"
	"sync"

	"github.com/LanXuage/gzmap/common"
	mapset "github.com/deckarep/golang-set"
	"github.com/google/gopacket"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

const (
	MAX_NOTIFY_FUNC_POOL_SIZE = 512
)

var logger = common.GetLogger()

type PacketReceiver interface {
	Receive(packet gopacket.Packet)
}

type PacketReceiverObserver interface {
	AddPacketReceiver(packetReceiver PacketReceiver)
	RemovePacketReceiver(packetReceiver PacketReceiver)
}

type PacketReceiverAndPacket struct {
	Receiver PacketReceiver
	Packet   gopacket.Packet
}

// PacketReceiverObserverImpl fans every captured packet out to the
// registered receivers on a bounded worker pool.
type PacketReceiverObserverImpl struct {
	PacketReceivers mapset.Set
	NotifyWorkers   *ants.PoolWithFunc
	inflight        sync.WaitGroup
}

func (p *PacketReceiverObserverImpl) AddPacketReceiver(packetReceiver PacketReceiver) {
	p.PacketReceivers.Add(packetReceiver)
}

func (p *PacketReceiverObserverImpl) RemovePacketReceiver(packetReceiver PacketReceiver) {
	p.PacketReceivers.Remove(packetReceiver)
}

// Serve dispatches packets until the channel closes or ctx is done, then
// waits for every dispatched notification to finish.
func (p *PacketReceiverObserverImpl) Serve(ctx context.Context, packets <-chan gopacket.Packet) {
	defer p.inflight.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case packet, ok := <-packets:
			if !ok {
				return
			}
			p.dispatch(packet)
		}
	}
}

func (p *PacketReceiverObserverImpl) dispatch(packet gopacket.Packet) {
	p.PacketReceivers.Each(func(item interface{}) bool {
		p.inflight.Add(1)
		if err := p.NotifyWorkers.Invoke(&PacketReceiverAndPacket{
			Receiver: item.(PacketReceiver),
			Packet:   packet,
		}); err != nil {
			p.inflight.Done()
			logger.Warn("Notify packet receiver failed", zap.Error(err))
		}
		return false
	})
}

func (p *PacketReceiverObserverImpl) notifyPacketReceivers(iPacketReceiverAndArgs interface{}) {
	defer p.inflight.Done()
	packetReceiverAndPacket := iPacketReceiverAndArgs.(*PacketReceiverAndPacket)
	packetReceiverAndPacket.Receiver.Receive(packetReceiverAndPacket.Packet)
}

// Release frees the notify pool. Call it after Serve returned.
func (p *PacketReceiverObserverImpl) Release() {
	p.NotifyWorkers.Release()
}

func NewPacketReceiverObserver(poolSize int) (*PacketReceiverObserverImpl, error) {
	if poolSize <= 0 {
		poolSize = MAX_NOTIFY_FUNC_POOL_SIZE
	}
	packetReceiverObserverImpl := &PacketReceiverObserverImpl{
		PacketReceivers: mapset.NewSet(),
	}
	workers, err := ants.NewPoolWithFunc(poolSize, packetReceiverObserverImpl.notifyPacketReceivers)
	if err != nil {
		logger.Error("Create notify func pool failed", zap.Error(err))
		return nil, err
	}
	packetReceiverObserverImpl.NotifyWorkers = workers
	return packetReceiverObserverImpl, nil
}

// LockedSource holds lock around every read so capture statistics are never
// queried while a read is in progress.
type LockedSource struct {
	Source gopacket.PacketDataSource
	Lock   sync.Locker
}

func (l *LockedSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	l.Lock.Lock()
	defer l.Lock.Unlock()
	return l.Source.ReadPacketData()
}
