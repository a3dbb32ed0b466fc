package monitor

import (
	"math"
	"time"

	"github.com/LanXuage/gzmap/counters"
)

// Status is everything derived for one tick. Sinks receive it and must not
// keep it past Update.
type Status struct {
	Time        time.Time
	Complete    bool // send phase finished
	SendWorkers int

	TotalSent            uint64
	RecvSuccessUnique    uint64
	AppRecvSuccessUnique uint64
	TotalRecv            uint64

	TimePast        float64 // seconds since the scan started
	TimeRemaining   float64 // seconds, may be +Inf when nothing bounds the scan
	PercentComplete float64

	HitRate    float64 // network level, SYN-ACK vs RST
	AppHitRate float64 // application level

	SendRate       float64
	SendRateAvg    float64
	RecvRate       float64
	RecvAvg        float64
	RecvTotalRate  float64
	RecvTotalAvg   float64
	AppSuccessRate float64
	AppSuccessAvg  float64

	Drop      uint64 // capture layer
	IfDrop    uint64 // interface
	DropTotal uint64
	DropLast  float64
	DropAvg   float64

	FailTotal uint64
	FailLast  float64
	FailAvg   float64

	TimePastStr       string
	TimeRemainingStr  string
	SendRateStr       string
	SendRateAvgStr    string
	RecvRateStr       string
	RecvAvgStr        string
	AppSuccessRateStr string
	AppSuccessAvgStr  string
	DropTotalStr      string
	DropLastStr       string
	DropAvgStr        string
}

// lastStatus keeps the previous tick's totals for the next tick's deltas.
type lastStatus struct {
	now            time.Time
	sent           uint64
	sendFailures   uint64
	recvNetSuccess uint64
	recvAppSuccess uint64
	recvTotal      uint64
	dropTotal      uint64
}

// Estimate carries the inputs of RemainingTime.
type Estimate struct {
	Age           time.Duration
	Sent          uint64
	Targets       uint64 // 0 when the probe space is unbounded
	SuccessUnique uint64
	MaxResults    uint64 // 0 disables the results projection
	MaxRuntime    time.Duration
	Cooldown      time.Duration
	SendComplete  bool
	SinceFinish   time.Duration // time since the send phase ended
}

// RemainingTime estimates the seconds left in the scan. While sending it is
// the smallest of three projections (probe space, runtime cap, results cap),
// each +Inf when not configured; once sending is done it counts the cooldown
// down.
func RemainingTime(e Estimate) float64 {
	if e.SendComplete {
		return (e.Cooldown - e.SinceFinish).Seconds()
	}
	age := e.Age.Seconds()
	cooldown := e.Cooldown.Seconds()
	remaining := math.Inf(1)
	if e.Targets > 0 {
		done := float64(e.Sent) / float64(e.Targets)
		remaining = minFloat(remaining, (1-done)*(age/done)+cooldown)
	}
	if e.MaxRuntime > 0 {
		remaining = minFloat(remaining, e.MaxRuntime.Seconds()-age+cooldown)
	}
	if e.MaxResults > 0 {
		done := float64(e.SuccessUnique) / float64(e.MaxResults)
		remaining = minFloat(remaining, (1-done)*(age/done))
	}
	return remaining
}

// minFloat ignores NaN candidates, which come out of 0/0 projections.
func minFloat(cur, candidate float64) float64 {
	if candidate < cur {
		return candidate
	}
	return cur
}

func rate(cur, prev uint64, delta float64) float64 {
	if delta <= 0 || cur <= prev {
		return 0
	}
	return float64(cur-prev) / delta
}

func average(total uint64, secs float64) float64 {
	if secs <= 0 {
		return 0
	}
	return float64(total) / secs
}

func percent(part, whole uint64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) * 100 / float64(whole)
}

// derive computes the tick at now and rolls last forward.
func (m *Monitor) derive(now time.Time, send counters.SendSnapshot, recv counters.RecvSnapshot) *Status {
	start := send.Start
	if start.IsZero() {
		start = now
	}
	if m.last.now.IsZero() {
		m.last.now = start
	}
	age := now.Sub(start)
	ageSecs := age.Seconds()
	delta := now.Sub(m.last.now).Seconds()
	totalSent := m.it.Sent()

	remaining := RemainingTime(Estimate{
		Age:           age,
		Sent:          totalSent,
		Targets:       send.Targets,
		SuccessUnique: recv.SuccessUnique,
		MaxResults:    m.cfg.MaxResults,
		MaxRuntime:    m.cfg.MaxRuntime,
		Cooldown:      m.cfg.Cooldown,
		SendComplete:  send.Complete,
		SinceFinish:   now.Sub(send.Finish),
	})

	st := &Status{
		Time:                 now,
		Complete:             send.Complete,
		SendWorkers:          m.it.SendWorkers(),
		TotalSent:            totalSent,
		RecvSuccessUnique:    recv.SuccessUnique,
		AppRecvSuccessUnique: recv.AppSuccessUnique,
		TotalRecv:            recv.Total,
		TimePast:             ageSecs,
		TimeRemaining:        remaining,
		PercentComplete:      100 * ageSecs / (ageSecs + remaining),
		HitRate:              percent(recv.SuccessUnique, totalSent),
		SendRate:             rate(totalSent, m.last.sent, delta),
		RecvRate:             rate(recv.SuccessUnique, m.last.recvNetSuccess, delta),
		RecvAvg:              average(recv.SuccessUnique, ageSecs),
		RecvTotalRate:        rate(recv.Total, m.last.recvTotal, delta),
		RecvTotalAvg:         average(recv.Total, ageSecs),
		Drop:                 recv.Drop,
		IfDrop:               recv.IfDrop,
		DropTotal:            recv.Drop + recv.IfDrop,
		FailTotal:            send.Failures,
		FailLast:             rate(send.Failures, m.last.sendFailures, delta),
		FailAvg:              average(send.Failures, ageSecs),
	}
	if math.IsNaN(st.PercentComplete) {
		st.PercentComplete = 0
	}
	if m.cfg.AppSuccess {
		st.AppHitRate = percent(recv.AppSuccessUnique, totalSent)
		st.AppSuccessRate = rate(recv.AppSuccessUnique, m.last.recvAppSuccess, delta)
		st.AppSuccessAvg = average(recv.AppSuccessUnique, ageSecs)
	}
	if send.Complete {
		st.SendRateAvg = average(totalSent, send.Finish.Sub(send.Start).Seconds())
	} else {
		st.SendRateAvg = average(totalSent, ageSecs)
	}
	st.DropLast = rate(st.DropTotal, m.last.dropTotal, delta)
	st.DropAvg = average(st.DropTotal, ageSecs)
	st.format(m.cfg.RemainingShowAfter)

	m.last = lastStatus{
		now:            now,
		sent:           st.TotalSent,
		sendFailures:   st.FailTotal,
		recvNetSuccess: st.RecvSuccessUnique,
		recvAppSuccess: st.AppRecvSuccessUnique,
		recvTotal:      st.TotalRecv,
		dropTotal:      st.DropTotal,
	}
	return st
}

func (st *Status) format(showRemainingAfter time.Duration) {
	st.TimePastStr = timeString(int64(st.TimePast), false)
	if st.TimePast >= showRemainingAfter.Seconds() && !math.IsInf(st.TimeRemaining, 0) && !math.IsNaN(st.TimeRemaining) {
		st.TimeRemainingStr = " (" + timeString(int64(math.Ceil(st.TimeRemaining)), true) + " left)"
	}
	st.SendRateStr = numberString(st.SendRate)
	st.SendRateAvgStr = numberString(st.SendRateAvg)
	st.RecvRateStr = numberString(st.RecvRate)
	st.RecvAvgStr = numberString(st.RecvAvg)
	st.AppSuccessRateStr = numberString(st.AppSuccessRate)
	st.AppSuccessAvgStr = numberString(st.AppSuccessAvg)
	st.DropTotalStr = numberString(float64(st.DropTotal))
	st.DropLastStr = numberString(st.DropLast)
	st.DropAvgStr = numberString(st.DropAvg)
}
