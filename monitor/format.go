package monitor

import (
	"fmt"
	"math"
)

// numberString renders a count or rate the way the status line shows it:
// plain below a thousand, then K or M with up to two decimals.
func numberString(f float64) string {
	n := clampUint(f)
	switch {
	case n < 1000:
		return fmt.Sprintf("%d ", n)
	case n < 1000000:
		figs := 0
		if n < 10000 {
			figs = 2
		} else if n < 100000 {
			figs = 1
		}
		return fmt.Sprintf("%.*f K", figs, float64(n)/1000)
	default:
		figs := 0
		if n < 10000000 {
			figs = 2
		} else if n < 100000000 {
			figs = 1
		}
		return fmt.Sprintf("%.*f M", figs, float64(n)/1000000)
	}
}

// timeString renders seconds either as a clock (0:05, 1:02:03, 2:1:02:03)
// or, for estimates, as the two most significant units (4m05s, 3h, 12d).
func timeString(secs int64, estimate bool) string {
	if secs < 0 {
		secs = 0
	}
	y := secs / 31556736
	d := (secs % 31556736) / 86400
	h := (secs % 86400) / 3600
	m := (secs % 3600) / 60
	s := secs % 60

	if estimate {
		switch {
		case y > 0:
			return fmt.Sprintf("%d years", y)
		case d > 9:
			return fmt.Sprintf("%dd", d)
		case d > 0:
			return fmt.Sprintf("%dd%02dh", d, h)
		case h > 9:
			return fmt.Sprintf("%dh", h)
		case h > 0:
			return fmt.Sprintf("%dh%02dm", h, m)
		case m > 9:
			return fmt.Sprintf("%dm", m)
		case m > 0:
			return fmt.Sprintf("%dm%02ds", m, s)
		default:
			return fmt.Sprintf("%ds", s)
		}
	}
	switch {
	case d > 0:
		return fmt.Sprintf("%d:%d:%02d:%02d", d, h, m, s)
	case h > 0:
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	default:
		return fmt.Sprintf("%d:%02d", m, s)
	}
}

// clampUint truncates f into [0, MaxUint32], mapping NaN to 0.
func clampUint(f float64) uint64 {
	switch {
	case math.IsNaN(f) || f <= 0:
		return 0
	case f >= math.MaxUint32:
		return math.MaxUint32
	}
	return uint64(f)
}
