package monitor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNumberString(t *testing.T) {
	for in, want := range map[float64]string{
		0:         "0 ",
		999.9:     "999 ",
		1234:      "1.23 K",
		12345:     "12.3 K",
		123456:    "123 K",
		1234567:   "1.23 M",
		12345678:  "12.3 M",
		123456789: "123 M",
		-3:        "0 ",
	} {
		assert.Equal(t, want, numberString(in), "%v", in)
	}
	assert.Equal(t, "0 ", numberString(math.NaN()))
}

func TestTimeString(t *testing.T) {
	for _, tc := range []struct {
		secs     int64
		estimate bool
		want     string
	}{
		{5, false, "0:05"},
		{245, false, "4:05"},
		{3723, false, "1:02:03"},
		{90061, false, "1:1:01:01"},
		{5, true, "5s"},
		{245, true, "4m05s"},
		{900, true, "15m"},
		{3723, true, "1h02m"},
		{10800, true, "3h"},
		{90061, true, "1d01h"},
		{12 * 86400, true, "12d"},
		{2 * 31556736, true, "2 years"},
	} {
		assert.Equal(t, tc.want, timeString(tc.secs, tc.estimate), "%d %v", tc.secs, tc.estimate)
	}
}
