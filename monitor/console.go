package monitor

import (
	"fmt"
	"io"
	"sync"
)

// ConsoleSink prints the one-line status. Use WithConsole to attach it.
type ConsoleSink struct {
	w          io.Writer
	mu         sync.Locker
	appSuccess bool
}

func (c *ConsoleSink) Update(st *Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	switch {
	case c.appSuccess && !st.Complete:
		_, err = fmt.Fprintf(c.w,
			"%5s %.0f%%%s; sent: %d %sp/s (%sp/s avg); recv: %d %sp/s (%sp/s avg); app success: %d %sp/s (%sp/s avg); drops: %sp/s (%sp/s avg); hitrate: %0.2f%% app hitrate: %0.2f%%\n",
			st.TimePastStr, st.PercentComplete, st.TimeRemainingStr,
			st.TotalSent, st.SendRateStr, st.SendRateAvgStr,
			st.RecvSuccessUnique, st.RecvRateStr, st.RecvAvgStr,
			st.AppRecvSuccessUnique, st.AppSuccessRateStr, st.AppSuccessAvgStr,
			st.DropLastStr, st.DropAvgStr, st.HitRate, st.AppHitRate)
	case c.appSuccess:
		_, err = fmt.Fprintf(c.w,
			"%5s %.0f%%%s; sent: %d done (%sp/s avg); recv: %d %sp/s (%sp/s avg); app success: %d %sp/s (%sp/s avg); drops: %sp/s (%sp/s avg); hitrate: %0.2f%% app hitrate: %0.2f%%\n",
			st.TimePastStr, st.PercentComplete, st.TimeRemainingStr,
			st.TotalSent, st.SendRateAvgStr,
			st.RecvSuccessUnique, st.RecvRateStr, st.RecvAvgStr,
			st.AppRecvSuccessUnique, st.AppSuccessRateStr, st.AppSuccessAvgStr,
			st.DropLastStr, st.DropAvgStr, st.HitRate, st.AppHitRate)
	case !st.Complete:
		_, err = fmt.Fprintf(c.w,
			"%5s %.0f%%%s; send: %d %sp/s (%sp/s avg); recv: %d %sp/s (%sp/s avg); drops: %sp/s (%sp/s avg); hitrate: %0.2f%%\n",
			st.TimePastStr, st.PercentComplete, st.TimeRemainingStr,
			st.TotalSent, st.SendRateStr, st.SendRateAvgStr,
			st.RecvSuccessUnique, st.RecvRateStr, st.RecvAvgStr,
			st.DropLastStr, st.DropAvgStr, st.HitRate)
	default:
		_, err = fmt.Fprintf(c.w,
			"%5s %.0f%%%s; send: %d done (%sp/s avg); recv: %d %sp/s (%sp/s avg); drops: %sp/s (%sp/s avg); hitrate: %0.2f%%\n",
			st.TimePastStr, st.PercentComplete, st.TimeRemainingStr,
			st.TotalSent, st.SendRateAvgStr,
			st.RecvSuccessUnique, st.RecvRateStr, st.RecvAvgStr,
			st.DropLastStr, st.DropAvgStr, st.HitRate)
	}
	return err
}

func (c *ConsoleSink) Close() error {
	return nil
}
