package monitor

import "sync"

// Gate is a one-shot signal the receive side opens once capture is live.
type Gate struct {
	once sync.Once
	ch   chan struct{}
}

func NewGate() *Gate {
	return &Gate{ch: make(chan struct{})}
}

// Open releases every waiter. Later calls do nothing.
func (g *Gate) Open() {
	g.once.Do(func() { close(g.ch) })
}

func (g *Gate) Done() <-chan struct{} {
	return g.ch
}
