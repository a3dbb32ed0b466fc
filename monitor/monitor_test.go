package monitor_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/LanXuage/gzmap/counters"
	"github.com/LanXuage/gzmap/monitor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeIterator struct {
	sent    uint64
	workers int
}

func (f *fakeIterator) Sent() uint64     { return f.sent }
func (f *fakeIterator) SendWorkers() int { return f.workers }

type fakeCapture struct {
	drop, ifDrop uint64
}

func (f *fakeCapture) Stats() (uint64, uint64, error) { return f.drop, f.ifDrop, nil }

type recordingSink struct {
	mu       sync.Mutex
	statuses []monitor.Status
	closed   bool
}

func (r *recordingSink) Update(st *monitor.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, *st)
	return nil
}

func (r *recordingSink) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.statuses)
}

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

type fixture struct {
	send    *counters.Send
	recv    *counters.Recv
	it      *fakeIterator
	capture *fakeCapture
	now     time.Time
	logs    *observer.ObservedLogs
	logger  *zap.Logger
}

func newFixture() *fixture {
	core, logs := observer.New(zap.WarnLevel)
	f := &fixture{
		send:    counters.NewSend(),
		it:      &fakeIterator{workers: 2},
		capture: &fakeCapture{},
		now:     t0,
		logs:    logs,
		logger:  zap.New(core),
	}
	f.recv = counters.NewRecv(f.capture)
	f.send.Start(t0)
	return f
}

func (f *fixture) monitor(t *testing.T, cfg monitor.Config, opts ...monitor.Option) *monitor.Monitor {
	t.Helper()
	opts = append([]monitor.Option{
		monitor.WithLogger(f.logger),
		monitor.WithClock(func() time.Time { return f.now }),
	}, opts...)
	m, err := monitor.New(cfg, f.send, f.recv, f.it, opts...)
	require.NoError(t, err)
	return m
}

func TestTickEndToEnd(t *testing.T) {
	f := newFixture()
	f.send.SetTargets(200)
	f.it.sent = 100
	f.recv.AddTotal(80)
	f.recv.AddSuccessUnique(60)
	f.capture.drop, f.capture.ifDrop = 3, 2
	f.now = t0.Add(10 * time.Second)

	var console, csvOut bytes.Buffer
	csvSink, err := monitor.NewCSVSink(&csvOut)
	require.NoError(t, err)
	m := f.monitor(t, monitor.Config{}, monitor.WithConsole(&console, &sync.Mutex{}), monitor.WithSink(csvSink))

	st := m.Tick()
	assert.Equal(t, uint64(100), st.TotalSent)
	assert.Equal(t, 60.0, st.HitRate)
	assert.Equal(t, 10.0, st.SendRate)
	assert.Equal(t, 10.0, st.SendRateAvg)
	assert.Equal(t, 6.0, st.RecvRate)
	assert.Equal(t, 6.0, st.RecvAvg)
	assert.Equal(t, 8.0, st.RecvTotalRate)
	assert.Equal(t, 8.0, st.RecvTotalAvg)
	assert.Equal(t, uint64(5), st.DropTotal)
	assert.Equal(t, 0.5, st.DropLast)
	assert.Equal(t, 0.5, st.DropAvg)
	assert.Equal(t, 10.0, st.TimeRemaining)
	assert.Equal(t, 50.0, st.PercentComplete)
	assert.Equal(t, " (10s left)", st.TimeRemainingStr)

	assert.Equal(t,
		" 0:10 50% (10s left); send: 100 10 p/s (10 p/s avg); recv: 60 6 p/s (6 p/s avg); drops: 0 p/s (0 p/s avg); hitrate: 60.00%\n",
		console.String())

	lines := strings.Split(strings.TrimSpace(csvOut.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "real-time,time-elapsed,time-remaining,percent-complete,active-send-threads,"+
		"sent-total,sent-last-one-sec,sent-avg-per-sec,"+
		"recv-success-total,recv-success-last-one-sec,recv-success-avg-per-sec,"+
		"recv-total,recv-total-last-one-sec,recv-total-avg-per-sec,"+
		"pcap-drop-total,drop-last-one-sec,drop-avg-per-sec,"+
		"sendto-fail-total,sendto-fail-last-one-sec,sendto-fail-avg-per-sec", lines[0])
	assert.Equal(t, "2026-01-02 03:04:15,10,10,50.000000,2,100,10,10,60,6,6,80,8,8,5,0,0,0,0,0", lines[1])
}

func TestTickRatesUseLastTick(t *testing.T) {
	f := newFixture()
	m := f.monitor(t, monitor.Config{})

	f.it.sent = 1000
	f.now = t0.Add(time.Second)
	st := m.Tick()
	assert.Equal(t, 1000.0, st.SendRate)

	f.it.sent = 1500
	f.now = t0.Add(3 * time.Second)
	st = m.Tick()
	assert.Equal(t, 250.0, st.SendRate)
	assert.Equal(t, 500.0, st.SendRateAvg)
}

func TestTickZeroDeltaHasNoRates(t *testing.T) {
	f := newFixture()
	m := f.monitor(t, monitor.Config{})
	f.it.sent = 10
	st := m.Tick()
	assert.Zero(t, st.SendRate)
	assert.Zero(t, st.SendRateAvg)
	assert.Zero(t, st.PercentComplete)
	assert.Empty(t, st.TimeRemainingStr)
}

func TestTickHitRateWithNothingSent(t *testing.T) {
	f := newFixture()
	f.recv.AddSuccessUnique(3)
	f.now = t0.Add(time.Second)
	st := f.monitor(t, monitor.Config{}).Tick()
	assert.Zero(t, st.HitRate)
}

func TestTickAfterSendComplete(t *testing.T) {
	f := newFixture()
	f.it.sent = 400
	f.send.Finish(t0.Add(20 * time.Second))
	f.now = t0.Add(25 * time.Second)
	st := f.monitor(t, monitor.Config{Cooldown: 8 * time.Second}).Tick()
	assert.True(t, st.Complete)
	assert.Equal(t, 3.0, st.TimeRemaining)
	assert.Equal(t, 20.0, st.SendRateAvg)
}

func TestTickAppSuccess(t *testing.T) {
	f := newFixture()
	f.it.sent = 100
	f.recv.AddSuccessUnique(50)
	f.recv.AddAppSuccessUnique(25)
	f.now = t0.Add(5 * time.Second)

	var console bytes.Buffer
	st := f.monitor(t, monitor.Config{AppSuccess: true}, monitor.WithConsole(&console, &sync.Mutex{})).Tick()
	assert.Equal(t, 25.0, st.AppHitRate)
	assert.Equal(t, 5.0, st.AppSuccessRate)
	assert.Equal(t, 5.0, st.AppSuccessAvg)
	assert.Contains(t, console.String(), "; sent: 100 20 p/s")
	assert.Contains(t, console.String(), "app success: 25 5 p/s (5 p/s avg)")
	assert.Contains(t, console.String(), "app hitrate: 25.00%")
}

func TestTickAppSuccessDisabled(t *testing.T) {
	f := newFixture()
	f.it.sent = 100
	f.recv.AddAppSuccessUnique(25)
	f.now = t0.Add(5 * time.Second)
	st := f.monitor(t, monitor.Config{}).Tick()
	assert.Zero(t, st.AppHitRate)
	assert.Zero(t, st.AppSuccessRate)
}

func TestConsoleSendCompleteTemplate(t *testing.T) {
	f := newFixture()
	f.it.sent = 100
	f.send.Finish(t0.Add(10 * time.Second))
	f.now = t0.Add(12 * time.Second)
	var console bytes.Buffer
	f.monitor(t, monitor.Config{Cooldown: 8 * time.Second}, monitor.WithConsole(&console, &sync.Mutex{})).Tick()
	assert.True(t, strings.HasPrefix(console.String(), " 0:12 "))
	assert.Contains(t, console.String(), "(6s left); send: 100 done (10 p/s avg)")
}

func TestDropWarningBoundary(t *testing.T) {
	for _, tc := range []struct {
		name  string
		drops uint64
		warn  int
	}{
		{"above", 6, 1},
		{"below", 4, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			f.it.sent = 100
			f.recv.AddSuccessUnique(100)
			f.capture.drop = tc.drops
			f.now = t0.Add(time.Second)
			f.monitor(t, monitor.Config{}).Tick()
			assert.Equal(t, tc.warn, f.logs.FilterMessage("dropped packets in the last second").Len())
			assert.Zero(t, f.logs.FilterMessage("failed to send packets in the last second").Len())
		})
	}
}

func TestFailWarning(t *testing.T) {
	f := newFixture()
	f.it.sent = 100
	f.send.AddFailure(2)
	f.now = t0.Add(time.Second)
	m := f.monitor(t, monitor.Config{})
	m.Tick()
	assert.Equal(t, 1, f.logs.FilterMessage("failed to send packets in the last second").Len())

	// no new failures, so the next tick stays quiet
	f.it.sent = 200
	f.now = t0.Add(2 * time.Second)
	m.Tick()
	assert.Equal(t, 1, f.logs.FilterMessage("failed to send packets in the last second").Len())
}

func TestQuietKeepsCSV(t *testing.T) {
	f := newFixture()
	f.it.sent = 10
	f.now = t0.Add(time.Second)
	path := filepath.Join(t.TempDir(), "status.csv")
	var console bytes.Buffer
	m := f.monitor(t, monitor.Config{Quiet: true, StatusUpdatesFile: path}, monitor.WithConsole(&console, &sync.Mutex{}))
	m.Tick()
	f.now = t0.Add(2 * time.Second)
	m.Tick()

	assert.Empty(t, console.String())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "real-time,"))
	assert.True(t, strings.HasPrefix(lines[2], "2026-01-02 03:04:07,2,"))
}

func TestNewStatusFileError(t *testing.T) {
	f := newFixture()
	_, err := monitor.New(monitor.Config{StatusUpdatesFile: filepath.Join(t.TempDir(), "missing", "status.csv")},
		f.send, f.recv, f.it, monitor.WithLogger(f.logger))
	assert.Error(t, err)
}

func TestRunStopsWhenBothSidesComplete(t *testing.T) {
	f := newFixture()
	sink := &recordingSink{}
	m, err := monitor.New(monitor.Config{Interval: time.Millisecond}, f.send, f.recv, f.it,
		monitor.WithLogger(f.logger), monitor.WithSink(sink))
	require.NoError(t, err)

	gate := monitor.NewGate()
	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background(), gate) }()

	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, sink.count(), "ticked before the gate opened")
	gate.Open()
	gate.Open()
	require.Eventually(t, func() bool { return sink.count() >= 2 }, time.Second, time.Millisecond)

	f.send.Finish(time.Now())
	f.recv.SetComplete()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
	assert.True(t, sink.closed)
}

func TestRunCancelledBeforeGate(t *testing.T) {
	f := newFixture()
	sink := &recordingSink{}
	m, err := monitor.New(monitor.Config{}, f.send, f.recv, f.it, monitor.WithLogger(f.logger), monitor.WithSink(sink))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, m.Run(ctx, monitor.NewGate()))
	assert.Zero(t, sink.count())
	assert.True(t, sink.closed)
}
