package monitor

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
)

var csvHeader = []string{
	"real-time", "time-elapsed", "time-remaining", "percent-complete",
	"active-send-threads",
	"sent-total", "sent-last-one-sec", "sent-avg-per-sec",
	"recv-success-total", "recv-success-last-one-sec", "recv-success-avg-per-sec",
	"recv-total", "recv-total-last-one-sec", "recv-total-avg-per-sec",
	"pcap-drop-total", "drop-last-one-sec", "drop-avg-per-sec",
	"sendto-fail-total", "sendto-fail-last-one-sec", "sendto-fail-avg-per-sec",
}

const csvTimeLayout = "2006-01-02 15:04:05"

// CSVSink appends one row per tick after a fixed header.
type CSVSink struct {
	w      *csv.Writer
	closer io.Closer
}

// OpenCSVSink truncates or creates path and writes the header.
func OpenCSVSink(path string) (*CSVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	s, err := NewCSVSink(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.closer = f
	return s, nil
}

func NewCSVSink(w io.Writer) (*CSVSink, error) {
	s := &CSVSink{w: csv.NewWriter(w)}
	if err := s.w.Write(csvHeader); err != nil {
		return nil, err
	}
	s.w.Flush()
	return s, s.w.Error()
}

func (s *CSVSink) Update(st *Status) error {
	row := []string{
		st.Time.Format(csvTimeLayout),
		strconv.FormatUint(clampUint(st.TimePast), 10),
		strconv.FormatUint(clampUint(st.TimeRemaining), 10),
		strconv.FormatFloat(st.PercentComplete, 'f', 6, 64),
		strconv.Itoa(st.SendWorkers),
		strconv.FormatUint(st.TotalSent, 10),
		whole(st.SendRate),
		whole(st.SendRateAvg),
		strconv.FormatUint(st.RecvSuccessUnique, 10),
		whole(st.RecvRate),
		whole(st.RecvAvg),
		strconv.FormatUint(st.TotalRecv, 10),
		whole(st.RecvTotalRate),
		whole(st.RecvTotalAvg),
		strconv.FormatUint(st.DropTotal, 10),
		whole(st.DropLast),
		whole(st.DropAvg),
		strconv.FormatUint(st.FailTotal, 10),
		whole(st.FailLast),
		whole(st.FailAvg),
	}
	if err := s.w.Write(row); err != nil {
		return err
	}
	s.w.Flush()
	return s.w.Error()
}

func (s *CSVSink) Close() error {
	s.w.Flush()
	err := s.w.Error()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func whole(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "0"
	}
	return strconv.FormatFloat(f, 'f', 0, 64)
}
